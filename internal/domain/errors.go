package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Validation errors
	ErrInvalidSchedule      = errors.New("invalid installment schedule")
	ErrAmountMismatch       = errors.New("amount does not match installment")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidEntryType     = errors.New("invalid cash entry type")
	ErrInvalidInput         = errors.New("invalid input")

	// State conflict errors
	ErrAlreadyPaid             = errors.New("installment already paid")
	ErrSessionNotOpen          = errors.New("cash session is not open")
	ErrSessionAlreadyOpen      = errors.New("cash register already has an open session")
	ErrSessionClosed           = errors.New("owning cash session is closed")
	ErrSaleVoided              = errors.New("sale is voided")
	ErrSaleHasPaidInstallments = errors.New("sale has paid installments")
	ErrPaymentNotPaid          = errors.New("installment is not paid")
	ErrPaymentHasResidual      = errors.New("installment has a residual installment")
	ErrSaleNotCredit           = errors.New("sale is not a credit sale")
	ErrSaleAlreadySettled      = errors.New("sale already settled")
	ErrSaleExists              = errors.New("sale already registered")

	// Lookup errors
	ErrSaleNotFound    = errors.New("sale not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrSessionNotFound = errors.New("cash session not found")

	// Consistency errors
	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// ErrorCategory groups errors by how a caller should react to them.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryForbidden  ErrorCategory = "forbidden"
	CategoryInternal   ErrorCategory = "internal"
)

var categories = []struct {
	err      error
	category ErrorCategory
}{
	{ErrInvalidSchedule, CategoryValidation},
	{ErrAmountMismatch, CategoryValidation},
	{ErrInvalidAmount, CategoryValidation},
	{ErrInvalidPaymentMethod, CategoryValidation},
	{ErrInvalidEntryType, CategoryValidation},
	{ErrInvalidInput, CategoryValidation},
	{ErrAlreadyPaid, CategoryConflict},
	{ErrSessionNotOpen, CategoryConflict},
	{ErrSessionAlreadyOpen, CategoryConflict},
	{ErrSessionClosed, CategoryConflict},
	{ErrSaleVoided, CategoryConflict},
	{ErrSaleHasPaidInstallments, CategoryConflict},
	{ErrPaymentNotPaid, CategoryConflict},
	{ErrPaymentHasResidual, CategoryConflict},
	{ErrSaleNotCredit, CategoryConflict},
	{ErrSaleAlreadySettled, CategoryConflict},
	{ErrSaleExists, CategoryConflict},
	{ErrInsufficientRole, CategoryForbidden},
	{ErrSaleNotFound, CategoryNotFound},
	{ErrPaymentNotFound, CategoryNotFound},
	{ErrSessionNotFound, CategoryNotFound},
}

// Classify returns the category of err. Unknown errors and invariant
// violations are internal.
func Classify(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInvariantViolation) {
		return CategoryInternal
	}
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.category
		}
	}
	return CategoryInternal
}

// ScheduleError reports which schedule input was rejected.
type ScheduleError struct {
	Field  string
	Reason string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("invalid installment schedule: %s: %s", e.Field, e.Reason)
}

func (e *ScheduleError) Unwrap() error { return ErrInvalidSchedule }

// PaymentError carries the installment a ledger operation was rejected for.
// Kind is one of the ledger sentinels and is what errors.Is matches.
type PaymentError struct {
	Kind      error
	PaymentID string
	SaleID    string
	Expected  string
	Got       string
	Detail    string
}

func (e *PaymentError) Error() string {
	var ids []string
	if e.PaymentID != "" {
		ids = append(ids, "payment "+e.PaymentID)
	}
	if e.SaleID != "" {
		ids = append(ids, "sale "+e.SaleID)
	}
	msg := e.Kind.Error()
	if len(ids) > 0 {
		msg += " (" + strings.Join(ids, ", ") + ")"
	}
	if e.Expected != "" || e.Got != "" {
		msg += fmt.Sprintf(": expected %s, got %s", e.Expected, e.Got)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *PaymentError) Unwrap() error { return e.Kind }

// AmountMismatchError builds the error returned when a collected amount
// differs from the installment amount.
func AmountMismatchError(p *Payment, got Money) error {
	return &PaymentError{
		Kind:      ErrAmountMismatch,
		PaymentID: p.ID,
		SaleID:    p.SaleID,
		Expected:  p.Amount.String(),
		Got:       got.String(),
	}
}

// AlreadyPaidError builds the error returned when a settled installment is
// paid again with different arguments.
func AlreadyPaidError(p *Payment, detail string) error {
	return &PaymentError{
		Kind:      ErrAlreadyPaid,
		PaymentID: p.ID,
		SaleID:    p.SaleID,
		Detail:    detail,
	}
}

// SessionError identifies the session or register a cash operation failed on.
type SessionError struct {
	Kind       error
	SessionID  string
	RegisterID string
}

func (e *SessionError) Error() string {
	switch {
	case e.SessionID != "" && e.RegisterID != "":
		return fmt.Sprintf("%s (session %s, register %s)", e.Kind, e.SessionID, e.RegisterID)
	case e.SessionID != "":
		return fmt.Sprintf("%s (session %s)", e.Kind, e.SessionID)
	default:
		return fmt.Sprintf("%s (register %s)", e.Kind, e.RegisterID)
	}
}

func (e *SessionError) Unwrap() error { return e.Kind }

// InvariantError is a consistency violation detected at a persistence
// boundary. The enclosing transaction must be rolled back.
type InvariantError struct {
	Invariant string
	Entity    string
	EntityID  string
	Expected  string
	Actual    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant %q violated on %s %s: expected %s, actual %s",
		e.Invariant, e.Entity, e.EntityID, e.Expected, e.Actual)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// Invariant names used in InvariantError.
const (
	InvariantScheduleSum    = "schedule_sum"
	InvariantRemainingBal   = "remaining_balance"
	InvariantExpectedClose  = "expected_closing"
	InvariantPositiveAmount = "positive_entry_amount"
)

// BatchError reports the first item that failed in an all-or-nothing batch.
type BatchError struct {
	Index     int
	PaymentID string
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch item %d (payment %s): %v", e.Index, e.PaymentID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

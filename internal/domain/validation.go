package domain

import (
	"fmt"
	"strings"
)

// Limits on free-form input.
const (
	MaxReferenceLength = 120
	MaxNotesLength     = 500
	MaxAmount          = "100000000"
)

var maxAmount = MustMoney(MaxAmount)

// ValidateAmount checks that a collected or recorded amount is positive and
// within bounds.
func ValidateAmount(amount Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, amount, MaxAmount)
	}
	return nil
}

// ValidateNonNegative accepts zero amounts such as an empty opening float.
func ValidateNonNegative(amount Money) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, amount, MaxAmount)
	}
	return nil
}

// ValidateMethod rejects unknown payment methods.
func ValidateMethod(m PaymentMethod) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, m)
	}
	return nil
}

// NormalizeReference trims a transaction reference and maps blank to nil.
func NormalizeReference(ref *string) (*string, error) {
	if ref == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*ref)
	if s == "" {
		return nil, nil
	}
	if len(s) > MaxReferenceLength {
		return nil, fmt.Errorf("%w: transaction reference exceeds %d characters", ErrInvalidInput, MaxReferenceLength)
	}
	return &s, nil
}

// ValidateNotes bounds the free-form notes attached to a collection.
func ValidateNotes(notes *string) error {
	if notes != nil && len(*notes) > MaxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidInput, MaxNotesLength)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}

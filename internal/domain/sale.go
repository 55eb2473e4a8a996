package domain

import (
	"fmt"
	"time"
)

// PaymentType is how a sale is paid for.
type PaymentType string

const (
	PaymentTypeCash   PaymentType = "cash"
	PaymentTypeCredit PaymentType = "credit"
)

// SaleStatus tells whether a sale still carries obligations.
type SaleStatus string

const (
	SaleActive SaleStatus = "activa"
	SaleVoided SaleStatus = "anulada"
)

// Sale is the ledger's view of a finalized sale. Total and terms are
// inputs; balances are owned by the ledger.
type Sale struct {
	ID                   string
	CustomerID           string
	CashRegisterID       string
	PaymentType          PaymentType
	Total                Money
	InitialPayment       Money
	InitialPaymentMethod *PaymentMethod
	CreditDays           int
	InstallmentsCount    int
	RemainingBalance     Money
	AmountPaid           Money
	ChangeAmount         Money
	Status               SaleStatus
	CreatedBy            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsVoided reports whether the sale was voided.
func (s *Sale) IsVoided() bool {
	switch s.Status {
	case SaleActive:
		return false
	case SaleVoided:
		return true
	default:
		panic(fmt.Sprintf("domain: unhandled sale status %q", s.Status))
	}
}

// EnsureCollectable returns an error when installments of the sale can no
// longer be collected or reversed.
func (s *Sale) EnsureCollectable() error {
	if s.IsVoided() {
		return fmt.Errorf("%w: %s", ErrSaleVoided, s.ID)
	}
	if s.PaymentType != PaymentTypeCredit {
		return fmt.Errorf("%w: %s", ErrSaleNotCredit, s.ID)
	}
	return nil
}

// ApplyCollection records amount as collected against the sale.
func (s *Sale) ApplyCollection(amount Money, remaining Money, at time.Time) {
	s.AmountPaid = s.AmountPaid.Add(amount)
	s.RemainingBalance = remaining
	s.UpdatedAt = at
}

// RevertCollection undoes a previous ApplyCollection.
func (s *Sale) RevertCollection(amount Money, remaining Money, at time.Time) {
	s.AmountPaid = s.AmountPaid.Sub(amount)
	s.RemainingBalance = remaining
	s.UpdatedAt = at
}

// Void marks the sale voided. Paid installments must be reversed first.
func (s *Sale) Void(payments []*Payment, at time.Time) error {
	if s.IsVoided() {
		return fmt.Errorf("%w: %s", ErrSaleVoided, s.ID)
	}
	for _, p := range payments {
		if !p.Outstanding() {
			return &PaymentError{Kind: ErrSaleHasPaidInstallments, PaymentID: p.ID, SaleID: s.ID}
		}
	}
	s.Status = SaleVoided
	s.RemainingBalance = ZeroMoney
	s.UpdatedAt = at
	return nil
}

// VerifyBalance checks the cached remaining balance against the sum of
// unpaid installments as stored.
func (s *Sale) VerifyBalance(unpaid Money) error {
	expected := unpaid
	if s.IsVoided() {
		expected = ZeroMoney
	}
	if !s.RemainingBalance.Equal(expected) {
		return &InvariantError{
			Invariant: InvariantRemainingBal,
			Entity:    "sale",
			EntityID:  s.ID,
			Expected:  expected.String(),
			Actual:    s.RemainingBalance.String(),
		}
	}
	return nil
}

// VerifySchedule checks that the installments plus the initial payment add
// up to the sale total.
func (s *Sale) VerifySchedule(payments []*Payment) error {
	sum := s.InitialPayment
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(s.Total) {
		return &InvariantError{
			Invariant: InvariantScheduleSum,
			Entity:    "sale",
			EntityID:  s.ID,
			Expected:  s.Total.String(),
			Actual:    sum.String(),
		}
	}
	return nil
}

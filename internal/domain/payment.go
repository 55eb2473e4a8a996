package domain

import (
	"fmt"
	"time"
)

// PaymentStatus is the lifecycle state of an installment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pendiente"
	PaymentOverdue PaymentStatus = "vencido"
	PaymentPaid    PaymentStatus = "pagado"
)

// ParsePaymentStatus converts a stored status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentPending, PaymentOverdue, PaymentPaid:
		return st, nil
	default:
		return "", fmt.Errorf("unknown payment status %q", s)
	}
}

// PaymentMethod is how an installment was collected.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "efectivo"
	MethodCard     PaymentMethod = "tarjeta"
	MethodTransfer PaymentMethod = "transferencia"
	MethodYape     PaymentMethod = "yape"
	MethodPlin     PaymentMethod = "plin"
	MethodDeposit  PaymentMethod = "deposito"
)

var validMethods = map[PaymentMethod]bool{
	MethodCash:     true,
	MethodCard:     true,
	MethodTransfer: true,
	MethodYape:     true,
	MethodPlin:     true,
	MethodDeposit:  true,
}

func (m PaymentMethod) Valid() bool { return validMethods[m] }

// IsCash reports whether money collected this way lands in the drawer.
func (m PaymentMethod) IsCash() bool { return m == MethodCash }

// Payment is one scheduled installment of a credit sale.
type Payment struct {
	ID              string
	SaleID          string
	ParentPaymentID *string
	PaymentNumber   int
	Amount          Money
	DueDate         time.Time
	Status          PaymentStatus

	// Set when the installment is collected.
	PaidDate             *time.Time
	PaidAmount           *Money
	BalanceAfter         *Money
	PaymentMethod        *PaymentMethod
	TransactionReference *string
	Notes                *string
	UpdatedBy            *string
	CashEntryID          *string
	CashSessionID        *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outstanding reports whether the installment still counts toward the
// sale's remaining balance.
func (p *Payment) Outstanding() bool {
	switch p.Status {
	case PaymentPending, PaymentOverdue:
		return true
	case PaymentPaid:
		return false
	default:
		panic(fmt.Sprintf("domain: unhandled payment status %q", p.Status))
	}
}

// MarkOverdue moves a pending installment whose due date is before asOf to
// overdue. It reports whether the status changed.
func (p *Payment) MarkOverdue(asOf time.Time) bool {
	switch p.Status {
	case PaymentPending:
		if p.DueDate.Before(TruncateToDay(asOf)) {
			p.Status = PaymentOverdue
			return true
		}
		return false
	case PaymentOverdue, PaymentPaid:
		return false
	default:
		panic(fmt.Sprintf("domain: unhandled payment status %q", p.Status))
	}
}

// Settlement describes one collection of an installment.
type Settlement struct {
	Amount       Money
	Method       PaymentMethod
	Reference    *string
	Notes        *string
	Actor        string
	PaidAt       time.Time
	BalanceAfter Money
}

// Settle marks the installment paid.
func (p *Payment) Settle(s Settlement) error {
	switch p.Status {
	case PaymentPending, PaymentOverdue:
	case PaymentPaid:
		return AlreadyPaidError(p, "installment is settled")
	default:
		panic(fmt.Sprintf("domain: unhandled payment status %q", p.Status))
	}

	paidAt := s.PaidAt
	amount := s.Amount
	balance := s.BalanceAfter
	method := s.Method
	actor := s.Actor

	p.Status = PaymentPaid
	p.PaidDate = &paidAt
	p.PaidAmount = &amount
	p.BalanceAfter = &balance
	p.PaymentMethod = &method
	p.TransactionReference = s.Reference
	p.Notes = s.Notes
	p.UpdatedBy = &actor
	p.UpdatedAt = paidAt
	return nil
}

// Unsettle reverts a paid installment. It returns to overdue when its due
// date is before today, otherwise to pending.
func (p *Payment) Unsettle(now time.Time, actor string) error {
	switch p.Status {
	case PaymentPaid:
	case PaymentPending, PaymentOverdue:
		return &PaymentError{Kind: ErrPaymentNotPaid, PaymentID: p.ID, SaleID: p.SaleID}
	default:
		panic(fmt.Sprintf("domain: unhandled payment status %q", p.Status))
	}

	if p.DueDate.Before(TruncateToDay(now)) {
		p.Status = PaymentOverdue
	} else {
		p.Status = PaymentPending
	}
	p.PaidDate = nil
	p.PaidAmount = nil
	p.BalanceAfter = nil
	p.PaymentMethod = nil
	p.TransactionReference = nil
	p.CashEntryID = nil
	p.CashSessionID = nil
	p.UpdatedBy = &actor
	p.UpdatedAt = now
	return nil
}

// SameCollection reports whether a repeated request matches how the
// installment was settled: same amount and same reference, where two
// missing references are equal.
func (p *Payment) SameCollection(amount Money, reference *string) bool {
	if p.Status != PaymentPaid || p.PaidAmount == nil {
		return false
	}
	if !p.PaidAmount.Equal(amount) {
		return false
	}
	switch {
	case p.TransactionReference == nil && reference == nil:
		return true
	case p.TransactionReference == nil || reference == nil:
		return false
	default:
		return *p.TransactionReference == *reference
	}
}

// Receipt is the value handed to voucher renderers after a collection.
type Receipt struct {
	PaymentID        string        `json:"payment_id"`
	SaleID           string        `json:"sale_id"`
	PaymentNumber    int           `json:"payment_number"`
	Amount           Money         `json:"amount"`
	AmountPaid       Money         `json:"amount_paid"`
	PaidDate         time.Time     `json:"paid_date"`
	Method           PaymentMethod `json:"payment_method"`
	Reference        *string       `json:"transaction_reference,omitempty"`
	RemainingBalance Money         `json:"remaining_balance"`
	CashEntryID      *string       `json:"cash_entry_id,omitempty"`
	CollectedBy      string        `json:"collected_by"`
}

// Receipt rebuilds the receipt from the stored settlement columns.
func (p *Payment) Receipt() (*Receipt, error) {
	if p.Status != PaymentPaid || p.PaidDate == nil || p.PaidAmount == nil ||
		p.BalanceAfter == nil || p.PaymentMethod == nil {
		return nil, &PaymentError{Kind: ErrPaymentNotPaid, PaymentID: p.ID, SaleID: p.SaleID}
	}
	r := &Receipt{
		PaymentID:        p.ID,
		SaleID:           p.SaleID,
		PaymentNumber:    p.PaymentNumber,
		Amount:           p.Amount,
		AmountPaid:       *p.PaidAmount,
		PaidDate:         *p.PaidDate,
		Method:           *p.PaymentMethod,
		Reference:        p.TransactionReference,
		RemainingBalance: *p.BalanceAfter,
		CashEntryID:      p.CashEntryID,
	}
	if p.UpdatedBy != nil {
		r.CollectedBy = *p.UpdatedBy
	}
	return r, nil
}

// OutstandingBalance sums the amounts of installments that are not paid.
func OutstandingBalance(payments []*Payment) Money {
	total := ZeroMoney
	for _, p := range payments {
		if p.Outstanding() {
			total = total.Add(p.Amount)
		}
	}
	return total
}

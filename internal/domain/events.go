package domain

import "time"

// Event types
const (
	EventTypeSaleRegistered      = "sale.registered"
	EventTypeSaleSettled         = "sale.settled"
	EventTypeSaleVoided          = "sale.voided"
	EventTypePaymentApplied      = "payment.applied"
	EventTypePaymentVoided       = "payment.voided"
	EventTypePaymentOverdue      = "payment.overdue"
	EventTypeCashSessionOpened   = "cash_session.opened"
	EventTypeCashEntryRecorded   = "cash_entry.recorded"
	EventTypeCashSessionClosed   = "cash_session.closed"
	EventTypeCashSessionReopened = "cash_session.reopened"
)

// Aggregate types
const (
	AggregateTypeSale        = "sale"
	AggregateTypePayment     = "payment"
	AggregateTypeCashSession = "cash_session"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// SaleRegisteredEvent payload
type SaleRegisteredEvent struct {
	SaleID            string `json:"sale_id"`
	CustomerID        string `json:"customer_id"`
	PaymentType       string `json:"payment_type"`
	Total             string `json:"total"`
	InitialPayment    string `json:"initial_payment"`
	InstallmentsCount int    `json:"installments_count"`
	RemainingBalance  string `json:"remaining_balance"`
}

// SaleVoidedEvent payload
type SaleVoidedEvent struct {
	SaleID   string `json:"sale_id"`
	VoidedBy string `json:"voided_by"`
}

// PaymentAppliedEvent payload
type PaymentAppliedEvent struct {
	PaymentID        string  `json:"payment_id"`
	SaleID           string  `json:"sale_id"`
	PaymentNumber    int     `json:"payment_number"`
	AmountPaid       string  `json:"amount_paid"`
	Method           string  `json:"payment_method"`
	RemainingBalance string  `json:"remaining_balance"`
	CashEntryID      *string `json:"cash_entry_id,omitempty"`
	ResidualID       *string `json:"residual_payment_id,omitempty"`
}

// PaymentVoidedEvent payload
type PaymentVoidedEvent struct {
	PaymentID        string  `json:"payment_id"`
	SaleID           string  `json:"sale_id"`
	Status           string  `json:"status"`
	RemainingBalance string  `json:"remaining_balance"`
	ReversalEntryID  *string `json:"reversal_entry_id,omitempty"`
}

// PaymentOverdueEvent payload
type PaymentOverdueEvent struct {
	PaymentID string `json:"payment_id"`
	SaleID    string `json:"sale_id"`
	DueDate   string `json:"due_date"`
}

// CashSessionEvent payload, shared by open, close and reopen.
type CashSessionEvent struct {
	SessionID  string  `json:"session_id"`
	RegisterID string  `json:"cash_register_id"`
	Actor      string  `json:"actor"`
	Opening    string  `json:"opening_amount"`
	Expected   *string `json:"expected_amount,omitempty"`
	Counted    *string `json:"counted_amount,omitempty"`
	Variance   *string `json:"variance,omitempty"`
}

// CashEntryRecordedEvent payload
type CashEntryRecordedEvent struct {
	EntryID   string `json:"entry_id"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

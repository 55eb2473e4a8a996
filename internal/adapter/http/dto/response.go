package dto

import (
	"time"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// SaleResponse represents a sale in API responses.
type SaleResponse struct {
	ID                   string                `json:"id"`
	CustomerID           string                `json:"customer_id"`
	CashRegisterID       string                `json:"cash_register_id,omitempty"`
	PaymentType          domain.PaymentType    `json:"payment_type"`
	Total                domain.Money          `json:"total"`
	InitialPayment       domain.Money          `json:"initial_payment"`
	InitialPaymentMethod *domain.PaymentMethod `json:"initial_payment_method,omitempty"`
	CreditDays           int                   `json:"credit_days,omitempty"`
	InstallmentsCount    int                   `json:"installments_count,omitempty"`
	AmountPaid           domain.Money          `json:"amount_paid"`
	RemainingBalance     domain.Money          `json:"remaining_balance"`
	ChangeAmount         domain.Money          `json:"change_amount"`
	Status               domain.SaleStatus     `json:"status"`
	CreatedBy            string                `json:"created_by"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// SaleFromDomain converts domain sale to response.
func SaleFromDomain(s *domain.Sale) *SaleResponse {
	return &SaleResponse{
		ID:                   s.ID,
		CustomerID:           s.CustomerID,
		CashRegisterID:       s.CashRegisterID,
		PaymentType:          s.PaymentType,
		Total:                s.Total,
		InitialPayment:       s.InitialPayment,
		InitialPaymentMethod: s.InitialPaymentMethod,
		CreditDays:           s.CreditDays,
		InstallmentsCount:    s.InstallmentsCount,
		AmountPaid:           s.AmountPaid,
		RemainingBalance:     s.RemainingBalance,
		ChangeAmount:         s.ChangeAmount,
		Status:               s.Status,
		CreatedBy:            s.CreatedBy,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// PaymentResponse represents an installment in API responses.
type PaymentResponse struct {
	ID                   string                `json:"id"`
	SaleID               string                `json:"sale_id"`
	ParentPaymentID      *string               `json:"parent_payment_id,omitempty"`
	PaymentNumber        int                   `json:"payment_number"`
	Amount               domain.Money          `json:"amount"`
	DueDate              string                `json:"due_date"`
	Status               domain.PaymentStatus  `json:"status"`
	PaidDate             *time.Time            `json:"paid_date,omitempty"`
	PaidAmount           *domain.Money         `json:"paid_amount,omitempty"`
	PaymentMethod        *domain.PaymentMethod `json:"payment_method,omitempty"`
	TransactionReference *string               `json:"transaction_reference,omitempty"`
	Notes                *string               `json:"notes,omitempty"`
	UpdatedBy            *string               `json:"updated_by,omitempty"`
	CashSessionID        *string               `json:"cash_session_id,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// PaymentFromDomain converts domain payment to response. Due dates are
// calendar days and are rendered without a time.
func PaymentFromDomain(p *domain.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                   p.ID,
		SaleID:               p.SaleID,
		ParentPaymentID:      p.ParentPaymentID,
		PaymentNumber:        p.PaymentNumber,
		Amount:               p.Amount,
		DueDate:              p.DueDate.Format(time.DateOnly),
		Status:               p.Status,
		PaidDate:             p.PaidDate,
		PaidAmount:           p.PaidAmount,
		PaymentMethod:        p.PaymentMethod,
		TransactionReference: p.TransactionReference,
		Notes:                p.Notes,
		UpdatedBy:            p.UpdatedBy,
		CashSessionID:        p.CashSessionID,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// PaymentsFromDomain converts domain payments to responses.
func PaymentsFromDomain(payments []*domain.Payment) []*PaymentResponse {
	result := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		result[i] = PaymentFromDomain(p)
	}
	return result
}

// CreditSaleResponse is a registered credit sale with its schedule.
type CreditSaleResponse struct {
	Sale     *SaleResponse      `json:"sale"`
	Payments []*PaymentResponse `json:"payments"`
}

// ReceiptsResponse wraps the receipts of a pay-multiple request.
type ReceiptsResponse struct {
	Receipts []*domain.Receipt `json:"receipts"`
}

// SessionResponse represents a cash session in API responses.
type SessionResponse struct {
	ID             string               `json:"id"`
	CashRegisterID string               `json:"cash_register_id"`
	Status         domain.SessionStatus `json:"status"`
	OpenedBy       string               `json:"opened_by"`
	OpeningAmount  domain.Money         `json:"opening_amount"`
	OpenedAt       time.Time            `json:"opened_at"`
	ClosedBy       *string              `json:"closed_by,omitempty"`
	CountedAmount  *domain.Money        `json:"closing_counted_amount,omitempty"`
	ExpectedAmount *domain.Money        `json:"closing_expected_amount,omitempty"`
	Variance       *domain.Money        `json:"closing_variance,omitempty"`
	ClosedAt       *time.Time           `json:"closed_at,omitempty"`
	ReopenCount    int                  `json:"reopen_count"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// SessionFromDomain converts domain session to response.
func SessionFromDomain(s *domain.CashSession) *SessionResponse {
	return &SessionResponse{
		ID:             s.ID,
		CashRegisterID: s.CashRegisterID,
		Status:         s.Status,
		OpenedBy:       s.OpenedBy,
		OpeningAmount:  s.OpeningAmount,
		OpenedAt:       s.OpenedAt,
		ClosedBy:       s.ClosedBy,
		CountedAmount:  s.ClosingCountedAmount,
		ExpectedAmount: s.ClosingExpectedAmount,
		Variance:       s.ClosingVariance,
		ClosedAt:       s.ClosedAt,
		ReopenCount:    s.ReopenCount,
		UpdatedAt:      s.UpdatedAt,
	}
}

// SessionsFromDomain converts domain sessions to responses.
func SessionsFromDomain(sessions []*domain.CashSession) []*SessionResponse {
	result := make([]*SessionResponse, len(sessions))
	for i, s := range sessions {
		result[i] = SessionFromDomain(s)
	}
	return result
}

// EntryResponse represents a drawer movement in API responses.
type EntryResponse struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Seq       int64            `json:"seq"`
	Type      domain.EntryType `json:"type"`
	Amount    domain.Money     `json:"amount"`
	Reference string           `json:"reference,omitempty"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
}

// EntryFromDomain converts domain entry to response.
func EntryFromDomain(e *domain.CashEntry) *EntryResponse {
	return &EntryResponse{
		ID:        e.ID,
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Type:      e.Type,
		Amount:    e.Amount,
		Reference: e.Reference,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.CashEntry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// SessionReportResponse is a closing report with the entries behind it.
type SessionReportResponse struct {
	Report  *domain.ClosingReport `json:"report"`
	Entries []*EntryResponse      `json:"entries"`
}

// SweepResponse reports one sweep run.
type SweepResponse struct {
	AsOf         string `json:"as_of"`
	Scanned      int    `json:"scanned"`
	Transitioned int    `json:"transitioned"`
	Failed       int    `json:"failed"`
}

// SweepFromResult converts a sweep result to response.
func SweepFromResult(r *usecase.SweepResult) *SweepResponse {
	return &SweepResponse{
		AsOf:         r.AsOf.Format(time.DateOnly),
		Scanned:      r.Scanned,
		Transitioned: r.Transitioned,
		Failed:       r.Failed,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Batch   *BatchFailure     `json:"batch,omitempty"`
}

// BatchFailure names the item that sank a pay-multiple request.
type BatchFailure struct {
	Index     int    `json:"index"`
	PaymentID string `json:"payment_id"`
}

package dto

import (
	"time"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = time.DateOnly

// RegisterCreditSaleRequest represents a finalized credit sale.
type RegisterCreditSaleRequest struct {
	SaleID               string                `json:"sale_id"                          validate:"omitempty,max=64"`
	CustomerID           string                `json:"customer_id"                      validate:"required,max=64"`
	Total                domain.Money          `json:"total"                            validate:"gt=0"`
	InitialPayment       domain.Money          `json:"initial_payment"                  validate:"gte=0"`
	InitialPaymentMethod *domain.PaymentMethod `json:"initial_payment_method,omitempty" validate:"omitempty,oneof=efectivo tarjeta transferencia yape plin deposito"`
	InstallmentsCount    int                   `json:"installments_count"               validate:"min=1,max=120"`
	CreditDays           int                   `json:"credit_days"                      validate:"min=0,max=3650"`
	StartDate            string                `json:"start_date,omitempty"             validate:"omitempty,datetime=2006-01-02"`
	CashRegisterID       string                `json:"cash_register_id"                 validate:"omitempty,max=64"`
}

// ToUseCaseInput converts to use case input.
// StartDate must already have passed validation.
func (r *RegisterCreditSaleRequest) ToUseCaseInput(actor string) usecase.RegisterCreditSaleInput {
	var start *time.Time
	if r.StartDate != "" {
		if d, err := time.Parse(DateLayout, r.StartDate); err == nil {
			start = &d
		}
	}
	return usecase.RegisterCreditSaleInput{
		SaleID:               r.SaleID,
		CustomerID:           r.CustomerID,
		Total:                r.Total,
		InitialPayment:       r.InitialPayment,
		InitialPaymentMethod: r.InitialPaymentMethod,
		InstallmentsCount:    r.InstallmentsCount,
		CreditDays:           r.CreditDays,
		StartDate:            start,
		CashRegisterID:       r.CashRegisterID,
		Actor:                actor,
	}
}

// SettleCashSaleRequest represents a sale paid in full at the counter.
type SettleCashSaleRequest struct {
	SaleID         string               `json:"sale_id"          validate:"omitempty,max=64"`
	CustomerID     string               `json:"customer_id"      validate:"max=64"`
	Total          domain.Money         `json:"total"            validate:"gt=0"`
	AmountTendered domain.Money         `json:"amount_tendered"  validate:"gt=0"`
	Method         domain.PaymentMethod `json:"payment_method"   validate:"required,oneof=efectivo tarjeta transferencia yape plin deposito"`
	CashRegisterID string               `json:"cash_register_id" validate:"omitempty,max=64"`
}

// ToUseCaseInput converts to use case input.
func (r *SettleCashSaleRequest) ToUseCaseInput(actor string) usecase.SettleCashSaleInput {
	return usecase.SettleCashSaleInput{
		SaleID:         r.SaleID,
		CustomerID:     r.CustomerID,
		Total:          r.Total,
		AmountTendered: r.AmountTendered,
		Method:         r.Method,
		CashRegisterID: r.CashRegisterID,
		Actor:          actor,
	}
}

// ApplyPaymentRequest represents one installment collection.
type ApplyPaymentRequest struct {
	AmountPaid     domain.Money         `json:"amount_paid"                     validate:"gt=0"`
	Method         domain.PaymentMethod `json:"payment_method"                  validate:"required,oneof=efectivo tarjeta transferencia yape plin deposito"`
	Reference      *string              `json:"transaction_reference,omitempty" validate:"omitempty,max=120"`
	Notes          *string              `json:"notes,omitempty"                 validate:"omitempty,max=500"`
	CashRegisterID string               `json:"cash_register_id"                validate:"omitempty,max=64"`
}

// ToUseCaseInput converts to use case input.
func (r *ApplyPaymentRequest) ToUseCaseInput(paymentID, actor string) usecase.ApplyPaymentInput {
	return usecase.ApplyPaymentInput{
		PaymentID:      paymentID,
		AmountPaid:     r.AmountPaid,
		Method:         r.Method,
		Reference:      r.Reference,
		Notes:          r.Notes,
		CashRegisterID: r.CashRegisterID,
		Actor:          actor,
	}
}

// PayMultipleRequest settles several installments with one method.
type PayMultipleRequest struct {
	Payments       []PayMultipleItem    `json:"payments"                        validate:"required,min=1,max=50,dive"`
	Method         domain.PaymentMethod `json:"payment_method"                  validate:"required,oneof=efectivo tarjeta transferencia yape plin deposito"`
	Reference      *string              `json:"transaction_reference,omitempty" validate:"omitempty,max=120"`
	Notes          *string              `json:"notes,omitempty"                 validate:"omitempty,max=500"`
	CashRegisterID string               `json:"cash_register_id"                validate:"omitempty,max=64"`
}

// PayMultipleItem is one installment of a PayMultipleRequest.
type PayMultipleItem struct {
	PaymentID  string       `json:"payment_id"  validate:"required"`
	AmountPaid domain.Money `json:"amount_paid" validate:"gt=0"`
}

// ToUseCaseInput converts to use case input.
func (r *PayMultipleRequest) ToUseCaseInput(actor string) usecase.ApplyPaymentsBatchInput {
	items := make([]usecase.BatchItem, len(r.Payments))
	for i, p := range r.Payments {
		items[i] = usecase.BatchItem{PaymentID: p.PaymentID, AmountPaid: p.AmountPaid}
	}
	return usecase.ApplyPaymentsBatchInput{
		Items:          items,
		Method:         r.Method,
		Reference:      r.Reference,
		Notes:          r.Notes,
		CashRegisterID: r.CashRegisterID,
		Actor:          actor,
	}
}

// OpenSessionRequest opens a drawer shift.
type OpenSessionRequest struct {
	CashRegisterID string       `json:"cash_register_id" validate:"required,max=64"`
	OpeningAmount  domain.Money `json:"opening_amount"   validate:"gte=0"`
}

// RecordEntryRequest is a manual drawer movement.
type RecordEntryRequest struct {
	Type      domain.EntryType `json:"type"      validate:"required"`
	Amount    domain.Money     `json:"amount"    validate:"gt=0"`
	Reference string           `json:"reference" validate:"max=120"`
}

// ToUseCaseInput converts to use case input.
func (r *RecordEntryRequest) ToUseCaseInput(sessionID, actor string) usecase.RecordEntryInput {
	return usecase.RecordEntryInput{
		SessionID: sessionID,
		Type:      r.Type,
		Amount:    r.Amount,
		Reference: r.Reference,
		Actor:     actor,
	}
}

// CloseSessionRequest carries the counted drawer amount.
type CloseSessionRequest struct {
	CountedAmount domain.Money `json:"counted_amount" validate:"gte=0"`
}

// SweepRequest optionally backdates or postdates a sweep.
type SweepRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

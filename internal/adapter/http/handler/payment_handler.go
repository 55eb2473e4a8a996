package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/adapter/export"
	"github.com/iho/storeledger/internal/adapter/http/dto"
	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// PaymentService defines the behavior needed by PaymentHandler.
type PaymentService interface {
	ApplyPayment(ctx context.Context, input usecase.ApplyPaymentInput) (*domain.Receipt, error)
	ApplyPaymentsBatch(ctx context.Context, input usecase.ApplyPaymentsBatchInput) ([]*domain.Receipt, error)
	VoidPayment(ctx context.Context, paymentID, actor string) (*domain.Payment, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetReceipt(ctx context.Context, paymentID string) (*domain.Receipt, error)
}

// PaymentHandler handles installment collection requests.
type PaymentHandler struct {
	payments PaymentService
	business string
	logger   zerolog.Logger
}

// NewPaymentHandler creates a new PaymentHandler. business is printed on
// receipt vouchers.
func NewPaymentHandler(payments PaymentService, business string, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, business: business, logger: logger}
}

// Pay collects one installment.
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req dto.ApplyPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	receipt, err := h.payments.ApplyPayment(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id"), actor(r).ID))
	if err != nil {
		writeDomainError(w, "failed to apply payment", err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// PayMultiple collects several installments in one transaction.
func (h *PaymentHandler) PayMultiple(w http.ResponseWriter, r *http.Request) {
	var req dto.PayMultipleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	receipts, err := h.payments.ApplyPaymentsBatch(r.Context(), req.ToUseCaseInput(actor(r).ID))
	if err != nil {
		writeDomainError(w, "failed to apply payments", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReceiptsResponse{Receipts: receipts})
}

// Get retrieves an installment by ID.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(payment))
}

// Void reverts a collected installment.
func (h *PaymentHandler) Void(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.VoidPayment(r.Context(), chi.URLParam(r, "id"), actor(r).ID)
	if err != nil {
		writeDomainError(w, "failed to void payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(payment))
}

// Receipt returns the stored receipt of a paid installment.
func (h *PaymentHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.payments.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get receipt", err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// ReceiptPDF renders the receipt voucher.
func (h *PaymentHandler) ReceiptPDF(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.payments.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get receipt", err)
		return
	}

	body, err := export.ReceiptPDF(h.business, receipt)
	if err != nil {
		h.logger.Error().Err(err).Str("payment_id", receipt.PaymentID).Msg("receipt pdf failed")
		writeError(w, http.StatusInternalServerError, "failed to render receipt", "")
		return
	}

	attachment(w, "application/pdf", "recibo-"+receipt.PaymentID+".pdf", body)
}

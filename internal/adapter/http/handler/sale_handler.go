package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/storeledger/internal/adapter/http/dto"
	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// SaleService defines the behavior needed by SaleHandler.
type SaleService interface {
	RegisterCreditSale(ctx context.Context, input usecase.RegisterCreditSaleInput) (*domain.Sale, []*domain.Payment, error)
	SettleCashSale(ctx context.Context, input usecase.SettleCashSaleInput) (*domain.Sale, error)
	VoidSale(ctx context.Context, saleID, actor string) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListPayments(ctx context.Context, saleID string) ([]*domain.Payment, error)
}

// SaleHandler handles sale-related HTTP requests.
type SaleHandler struct {
	sales SaleService
}

// NewSaleHandler creates a new SaleHandler.
func NewSaleHandler(sales SaleService) *SaleHandler {
	return &SaleHandler{sales: sales}
}

// RegisterCredit schedules the installments of a credit sale.
func (h *SaleHandler) RegisterCredit(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterCreditSaleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sale, payments, err := h.sales.RegisterCreditSale(r.Context(), req.ToUseCaseInput(actor(r).ID))
	if err != nil {
		writeDomainError(w, "failed to register credit sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.CreditSaleResponse{
		Sale:     dto.SaleFromDomain(sale),
		Payments: dto.PaymentsFromDomain(payments),
	})
}

// SettleCash records a sale paid in full.
func (h *SaleHandler) SettleCash(w http.ResponseWriter, r *http.Request) {
	var req dto.SettleCashSaleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sale, err := h.sales.SettleCashSale(r.Context(), req.ToUseCaseInput(actor(r).ID))
	if err != nil {
		writeDomainError(w, "failed to settle cash sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SaleFromDomain(sale))
}

// Get retrieves a sale by ID.
func (h *SaleHandler) Get(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get sale", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SaleFromDomain(sale))
}

// ListPayments lists a sale's installments by number.
func (h *SaleHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.sales.ListPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to list payments", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentsFromDomain(payments))
}

// Void voids a sale without paid installments.
func (h *SaleHandler) Void(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.VoidSale(r.Context(), chi.URLParam(r, "id"), actor(r).ID)
	if err != nil {
		writeDomainError(w, "failed to void sale", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SaleFromDomain(sale))
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/iho/storeledger/internal/adapter/http/dto"
	"github.com/iho/storeledger/internal/usecase"
)

// SweepService defines the behavior needed to trigger an overdue sweep.
type SweepService interface {
	Sweep(ctx context.Context, asOf time.Time) (*usecase.SweepResult, error)
	SweepToday(ctx context.Context) (*usecase.SweepResult, error)
}

// ConsistencyService defines the behavior needed for the consistency check.
type ConsistencyService interface {
	CheckConsistency(ctx context.Context) (*usecase.ConsistencyReport, error)
}

// LedgerHandler exposes ledger maintenance operations.
type LedgerHandler struct {
	sweeper SweepService
	checker ConsistencyService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(sweeper SweepService, checker ConsistencyService) *LedgerHandler {
	return &LedgerHandler{sweeper: sweeper, checker: checker}
}

// Sweep marks pending installments past due as overdue. An empty body
// sweeps as of today.
func (h *LedgerHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req dto.SweepRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}

	var (
		result *usecase.SweepResult
		err    error
	)
	if req.AsOf != nil {
		result, err = h.sweeper.Sweep(r.Context(), *req.AsOf)
	} else {
		result, err = h.sweeper.SweepToday(r.Context())
	}
	if err != nil {
		writeDomainError(w, "sweep failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SweepFromResult(result))
}

// Consistency recomputes sale balances and session expected amounts.
func (h *LedgerHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.CheckConsistency(r.Context())
	if err != nil {
		writeDomainError(w, "consistency check failed", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

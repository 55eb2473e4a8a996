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

// CashSessionService defines the behavior needed by CashSessionHandler.
type CashSessionService interface {
	OpenSession(ctx context.Context, registerID string, opening domain.Money, actor string) (*domain.CashSession, error)
	RecordEntry(ctx context.Context, input usecase.RecordEntryInput) (*domain.CashEntry, error)
	CloseSession(ctx context.Context, sessionID string, counted domain.Money, actor string) (*domain.ClosingReport, error)
	ReopenSession(ctx context.Context, sessionID string, actor domain.Actor) (*domain.CashSession, error)
	GetSession(ctx context.Context, id string) (*domain.CashSession, error)
	GetActiveSession(ctx context.Context, registerID string) (*domain.CashSession, error)
	ListSessionEntries(ctx context.Context, sessionID string) ([]*domain.CashEntry, error)
	ListSessions(ctx context.Context, input usecase.ListSessionsInput) ([]*domain.CashSession, error)
	GetSessionReport(ctx context.Context, sessionID string) (*domain.ClosingReport, []*domain.CashEntry, error)
}

// CashSessionHandler handles drawer session requests.
type CashSessionHandler struct {
	sessions CashSessionService
	business string
	logger   zerolog.Logger
}

// NewCashSessionHandler creates a new CashSessionHandler.
func NewCashSessionHandler(sessions CashSessionService, business string, logger zerolog.Logger) *CashSessionHandler {
	return &CashSessionHandler{sessions: sessions, business: business, logger: logger}
}

// Open opens a session on a register.
func (h *CashSessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.sessions.OpenSession(r.Context(), req.CashRegisterID, req.OpeningAmount, actor(r).ID)
	if err != nil {
		writeDomainError(w, "failed to open session", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SessionFromDomain(session))
}

// Get retrieves a session by ID.
func (h *CashSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get session", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionFromDomain(session))
}

// Active returns the open session of a register.
func (h *CashSessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetActiveSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get active session", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionFromDomain(session))
}

// ListByRegister lists a register's sessions, newest first.
func (h *CashSessionHandler) ListByRegister(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context(), usecase.ListSessionsInput{
		RegisterID: chi.URLParam(r, "id"),
		Limit:      parseIntQuery(r, "limit", 20),
		Offset:     parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, "failed to list sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionsFromDomain(sessions))
}

// RecordEntry appends a manual movement.
func (h *CashSessionHandler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	var req dto.RecordEntryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.sessions.RecordEntry(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id"), actor(r).ID))
	if err != nil {
		writeDomainError(w, "failed to record entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(entry))
}

// ListEntries lists a session's entries in order.
func (h *CashSessionHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.sessions.ListSessionEntries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntriesFromDomain(entries))
}

// Close closes a session against the counted amount.
func (h *CashSessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req dto.CloseSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.sessions.CloseSession(r.Context(), chi.URLParam(r, "id"), req.CountedAmount, actor(r).ID)
	if err != nil {
		writeDomainError(w, "failed to close session", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Reopen reopens a closed session. Admin only.
func (h *CashSessionHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.ReopenSession(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeDomainError(w, "failed to reopen session", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionFromDomain(session))
}

// Report returns the closing report, or live figures for an open session.
func (h *CashSessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, entries, err := h.sessions.GetSessionReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to build report", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionReportResponse{
		Report:  report,
		Entries: dto.EntriesFromDomain(entries),
	})
}

// ReportXLSX exports the closing report as a spreadsheet.
func (h *CashSessionHandler) ReportXLSX(w http.ResponseWriter, r *http.Request) {
	report, entries, err := h.sessions.GetSessionReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to build report", err)
		return
	}

	body, err := export.ClosingReportXLSX(h.business, report, entries)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", report.SessionID).Msg("closing report export failed")
		writeError(w, http.StatusInternalServerError, "failed to export report", "")
		return
	}

	attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"cierre-"+report.SessionID+".xlsx", body)
}

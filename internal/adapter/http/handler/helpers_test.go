package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/iho/storeledger/internal/adapter/http/dto"
	"github.com/iho/storeledger/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cash-registers/r1/sessions?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/cash-registers/r1/sessions?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"payment not found", domain.ErrPaymentNotFound, http.StatusNotFound},
		{"session not found", &domain.SessionError{Kind: domain.ErrSessionNotFound, SessionID: "s1"}, http.StatusNotFound},
		{"amount mismatch", domain.AmountMismatchError(&domain.Payment{ID: "p1", Amount: domain.MustMoney("300.00")}, domain.MustMoney("250.00")), http.StatusUnprocessableEntity},
		{"schedule", &domain.ScheduleError{Field: "installments_count", Reason: "must be at least 1"}, http.StatusUnprocessableEntity},
		{"already paid", domain.ErrAlreadyPaid, http.StatusConflict},
		{"session already open", &domain.SessionError{Kind: domain.ErrSessionAlreadyOpen, RegisterID: "r1"}, http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("apply: %w", domain.ErrSaleVoided), http.StatusConflict},
		{"forbidden", domain.ErrInsufficientRole, http.StatusForbidden},
		{"invariant", &domain.InvariantError{Invariant: domain.InvariantRemainingBal}, http.StatusInternalServerError},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWriteDomainErrorBatchDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	err := &domain.BatchError{Index: 2, PaymentID: "p3", Err: domain.ErrAlreadyPaid}

	writeDomainError(rec, "failed to apply payments", err)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Batch == nil || resp.Batch.Index != 2 || resp.Batch.PaymentID != "p3" {
		t.Fatalf("batch detail = %+v", resp.Batch)
	}
}

func TestWriteDomainErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, "failed", errors.New("pq: connection refused to 10.0.0.3"))

	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "10.0.0.3") {
		t.Fatalf("internal detail leaked: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed json", body: `{"counted_amount":`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"counted_amount":"1.00","extra":1}`, want: http.StatusBadRequest},
		{name: "sub-cent amount", body: `{"counted_amount":"1.005"}`, want: http.StatusUnprocessableEntity},
		{name: "negative amount", body: `{"counted_amount":"-1.00"}`, want: http.StatusUnprocessableEntity},
		{name: "valid", body: `{"counted_amount":"1.00"}`, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var body dto.CloseSessionRequest
			if decodeAndValidate(rec, req, &body) {
				rec.WriteHeader(http.StatusOK)
			}
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/infrastructure/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LEDGER_TIMEZONE", "UTC")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestNewAppWithMemoryStorage(t *testing.T) {
	cfg := memoryConfig(t)

	a, err := newApp(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	if a.memoryKeys == nil {
		t.Fatal("expected the in-memory idempotency store without redis")
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /ready to return 200, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cash-sessions",
		strings.NewReader(`{"cash_register_id":"caja-1","opening_amount":"10.00"}`))
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "storeledger_cash_sessions_opened_total 1") {
		t.Fatalf("expected session counter in /metrics output")
	}
}

func TestNewAppRejectsStreamWithoutRedis(t *testing.T) {
	t.Setenv("EVENT_STREAM", "storeledger:events")
	cfg := memoryConfig(t)

	if _, err := newApp(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry()); err == nil {
		t.Fatal("expected an error for EVENT_STREAM without redis")
	}
}

func TestIgnoreCanceled(t *testing.T) {
	if ignoreCanceled(context.Canceled) != nil {
		t.Fatal("context.Canceled must be swallowed")
	}
	other := errors.New("boom")
	if !errors.Is(ignoreCanceled(other), other) {
		t.Fatal("other errors must pass through")
	}
}

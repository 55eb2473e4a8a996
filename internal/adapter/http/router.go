package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/adapter/http/handler"
	"github.com/iho/storeledger/internal/adapter/http/middleware"
	"github.com/iho/storeledger/internal/infrastructure/auth"
	"github.com/iho/storeledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	SaleHandler        *handler.SaleHandler
	PaymentHandler     *handler.PaymentHandler
	CashSessionHandler *handler.CashSessionHandler
	LedgerHandler      *handler.LedgerHandler
	HealthHandler      *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	// JWTManager enables bearer authentication. When nil the caller is
	// taken from the X-Actor-ID header.
	JWTManager     *auth.JWTManager
	RateLimiter    *middleware.RateLimiter
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestMeta)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Metrics)
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.JWTManager != nil {
			r.Use(middleware.AuthMiddleware(cfg.JWTManager))
		} else {
			r.Use(middleware.TrustedActor)
		}

		// Idempotency keys are scoped per caller, so this runs after auth.
		if cfg.IdempotencyStore != nil {
			ttl := cfg.IdempotencyTTL
			if ttl <= 0 {
				ttl = usecase.IdempotencyKeyTTL
			}
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, ttl, cfg.Logger).Wrap)
		}

		r.Route("/sales", func(r chi.Router) {
			r.With(middleware.RequireOperator).Post("/credit", cfg.SaleHandler.RegisterCredit)
			r.With(middleware.RequireOperator).Post("/cash", cfg.SaleHandler.SettleCash)
			r.Get("/{id}", cfg.SaleHandler.Get)
			r.Get("/{id}/payments", cfg.SaleHandler.ListPayments)
			r.With(middleware.RequireAdmin).Post("/{id}/void", cfg.SaleHandler.Void)
		})

		r.Route("/payments", func(r chi.Router) {
			r.With(middleware.RequireOperator).Post("/pay-multiple", cfg.PaymentHandler.PayMultiple)
			r.Get("/{id}", cfg.PaymentHandler.Get)
			r.With(middleware.RequireOperator).Post("/{id}/pay", cfg.PaymentHandler.Pay)
			r.With(middleware.RequireAdmin).Post("/{id}/void", cfg.PaymentHandler.Void)
			r.Get("/{id}/receipt", cfg.PaymentHandler.Receipt)
			r.Get("/{id}/receipt.pdf", cfg.PaymentHandler.ReceiptPDF)
		})

		r.Route("/cash-registers/{id}", func(r chi.Router) {
			r.Get("/session", cfg.CashSessionHandler.Active)
			r.Get("/sessions", cfg.CashSessionHandler.ListByRegister)
		})

		r.Route("/cash-sessions", func(r chi.Router) {
			r.With(middleware.RequireOperator).Post("/", cfg.CashSessionHandler.Open)
			r.Get("/{id}", cfg.CashSessionHandler.Get)
			r.With(middleware.RequireOperator).Post("/{id}/entries", cfg.CashSessionHandler.RecordEntry)
			r.Get("/{id}/entries", cfg.CashSessionHandler.ListEntries)
			r.With(middleware.RequireOperator).Post("/{id}/close", cfg.CashSessionHandler.Close)
			r.With(middleware.RequireAdmin).Post("/{id}/reopen", cfg.CashSessionHandler.Reopen)
			r.Get("/{id}/report", cfg.CashSessionHandler.Report)
			r.Get("/{id}/report.xlsx", cfg.CashSessionHandler.ReportXLSX)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.With(middleware.RequireAdmin).Post("/sweep", cfg.LedgerHandler.Sweep)
			r.Get("/consistency", cfg.LedgerHandler.Consistency)
		})
	})

	return r
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	SalesRegistered   *prometheus.CounterVec
	SalesVoided       prometheus.Counter
	PaymentsApplied   *prometheus.CounterVec
	PaymentsReplayed  prometheus.Counter
	PaymentsVoided    prometheus.Counter
	PaymentAmount     prometheus.Histogram
	BatchSize         prometheus.Histogram
	LedgerErrors      *prometheus.CounterVec
	InvariantFailures *prometheus.CounterVec

	// Sweeper metrics
	SweepRuns        prometheus.Counter
	SweepTransitions prometheus.Counter
	SweepFailures    prometheus.Counter
	SweepDuration    prometheus.Histogram

	// Cash session metrics
	SessionsOpened   prometheus.Counter
	SessionsClosed   *prometheus.CounterVec
	SessionsReopened prometheus.Counter
	EntriesRecorded  *prometheus.CounterVec
	ClosingVariance  prometheus.Histogram

	// Outbox metrics
	EventsPublished *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SalesRegistered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_sales_registered_total",
				Help: "Total sales registered by payment type",
			},
			[]string{"payment_type"},
		),
		SalesVoided: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_sales_voided_total",
			Help: "Total sales voided",
		}),
		PaymentsApplied: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_payments_applied_total",
				Help: "Total installments collected by payment method",
			},
			[]string{"method"},
		),
		PaymentsReplayed: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_payments_replayed_total",
			Help: "Repeated collection requests answered with the stored receipt",
		}),
		PaymentsVoided: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_payments_voided_total",
			Help: "Total collections reversed",
		}),
		PaymentAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storeledger_payment_amount",
			Help:    "Collected installment amounts",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000, 10000},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storeledger_payment_batch_size",
			Help:    "Installments per pay-multiple request",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50},
		}),
		LedgerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_ledger_errors_total",
				Help: "Ledger operation failures by operation and category",
			},
			[]string{"operation", "category"},
		),
		InvariantFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_invariant_failures_total",
				Help: "Consistency violations detected before commit",
			},
			[]string{"invariant"},
		),

		SweepRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_sweep_runs_total",
			Help: "Total overdue sweeps",
		}),
		SweepTransitions: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_sweep_transitions_total",
			Help: "Installments moved to overdue",
		}),
		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_sweep_failures_total",
			Help: "Installments the sweeper failed to update",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storeledger_sweep_duration_seconds",
			Help:    "Duration of overdue sweeps",
			Buckets: prometheus.DefBuckets,
		}),

		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_cash_sessions_opened_total",
			Help: "Total cash sessions opened",
		}),
		SessionsClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_cash_sessions_closed_total",
				Help: "Total cash sessions closed by variance classification",
			},
			[]string{"classification"},
		),
		SessionsReopened: f.NewCounter(prometheus.CounterOpts{
			Name: "storeledger_cash_sessions_reopened_total",
			Help: "Total cash sessions reopened",
		}),
		EntriesRecorded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_cash_entries_total",
				Help: "Cash entries appended by type",
			},
			[]string{"type"},
		),
		ClosingVariance: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storeledger_closing_variance",
			Help:    "Counted minus expected amount at session close",
			Buckets: []float64{-100, -20, -5, -1, 0, 1, 5, 20, 100},
		}),

		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_outbox_events_published_total",
				Help: "Outbox events published by type and result",
			},
			[]string{"event_type", "result"},
		),

		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),
	}
}

package usecase

import (
	"context"
	"time"
)

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultSweepBatchSize is how many candidates one sweep page loads.
	DefaultSweepBatchSize = 500

	// MaxBatchPayments bounds a single pay-multiple request.
	MaxBatchPayments = 50

	systemActor = "system"
)

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a clock in loc, or UTC when loc is nil.
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time { return time.Now().In(c.loc) }

// noRetry runs the operation once.
type noRetry struct{}

func (noRetry) Retry(_ context.Context, operation func() error) error { return operation() }

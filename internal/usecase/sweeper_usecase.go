package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/metrics"
)

// SweeperUseCase moves unpaid installments past their due date to overdue.
// It only touches status, never amounts or balances.
type SweeperUseCase struct {
	stores    Stores
	clock     Clock
	batchSize int
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewSweeperUseCase creates a new SweeperUseCase.
func NewSweeperUseCase(stores Stores, clock Clock, batchSize int, logger zerolog.Logger, metrics *metrics.Metrics) *SweeperUseCase {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &SweeperUseCase{
		stores:    stores,
		clock:     clock,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "sweeper").Logger(),
		metrics:   metrics,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	AsOf         time.Time `json:"as_of"`
	Scanned      int       `json:"scanned"`
	Transitioned int       `json:"transitioned"`
	Failed       int       `json:"failed"`
}

// SweepToday sweeps with the current business date.
func (uc *SweeperUseCase) SweepToday(ctx context.Context) (*SweepResult, error) {
	return uc.Sweep(ctx, uc.clock.Now())
}

// Sweep marks every pending installment due before asOf as overdue. A row
// that fails is logged and skipped. Cancelling ctx stops the scan and
// returns what was done so far.
func (uc *SweeperUseCase) Sweep(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	start := time.Now()
	asOf = domain.TruncateToDay(asOf)
	result := &SweepResult{AsOf: asOf}

	defer func() {
		if uc.metrics != nil {
			uc.metrics.SweepRuns.Inc()
			uc.metrics.SweepTransitions.Add(float64(result.Transitioned))
			uc.metrics.SweepFailures.Add(float64(result.Failed))
			uc.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		}
	}()

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		candidates, err := uc.stores.Payments.ListOverdueCandidates(ctx, asOf, afterID, uc.batchSize)
		if err != nil {
			return result, err
		}

		for _, p := range candidates {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Scanned++

			changed, err := uc.markOverdue(ctx, p, asOf)
			if err != nil {
				result.Failed++
				uc.logger.Warn().Err(err).Str("payment_id", p.ID).Str("sale_id", p.SaleID).
					Msg("failed to mark installment overdue, continuing")
				continue
			}
			if changed {
				result.Transitioned++
			}
		}

		if len(candidates) < uc.batchSize {
			break
		}
		afterID = candidates[len(candidates)-1].ID
	}

	uc.logger.Info().Time("as_of", asOf).Int("scanned", result.Scanned).
		Int("transitioned", result.Transitioned).Int("failed", result.Failed).Msg("overdue sweep finished")
	return result, nil
}

// markOverdue flips one installment in its own transaction. The update is
// conditional on the row still being pending, so a collection that won
// the row lock first turns this into a no-op.
func (uc *SweeperUseCase) markOverdue(ctx context.Context, p *domain.Payment, asOf time.Time) (bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.stores.Tx.Begin(txCtx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	now := uc.clock.Now()
	changed, err := uc.stores.Payments.MarkOverdue(txCtx, tx, p.ID, asOf, now)
	if err != nil || !changed {
		return false, err
	}

	err = uc.stores.record(txCtx, tx, change{
		aggregateType: domain.AggregateTypePayment,
		aggregateID:   p.ID,
		eventType:     domain.EventTypePaymentOverdue,
		payload: domain.PaymentOverdueEvent{
			PaymentID: p.ID,
			SaleID:    p.SaleID,
			DueDate:   p.DueDate.Format(time.DateOnly),
		},
		action: domain.AuditActionPaymentSweep,
		actor:  systemActor,
		before: map[string]any{"status": domain.PaymentPending},
		after:  map[string]any{"status": domain.PaymentOverdue},
		at:     now,
	})
	if err != nil {
		return false, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return false, err
	}
	return true, nil
}

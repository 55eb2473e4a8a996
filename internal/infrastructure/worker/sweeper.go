package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/usecase"
)

// Sweeper is the overdue sweep the worker drives.
type Sweeper interface {
	SweepToday(ctx context.Context) (*usecase.SweepResult, error)
}

// SweeperWorker runs the overdue sweep on a fixed interval.
type SweeperWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   zerolog.Logger
}

// NewSweeperWorker creates a worker. A zero interval disables it.
func NewSweeperWorker(sweeper Sweeper, interval time.Duration, logger zerolog.Logger) *SweeperWorker {
	return &SweeperWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper_worker").Logger(),
	}
}

// Start sweeps once, then on every tick until ctx is cancelled.
func (w *SweeperWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		w.logger.Info().Msg("overdue sweeper disabled")
		return nil
	}
	w.logger.Info().Dur("interval", w.interval).Msg("overdue sweeper started")

	return Every(ctx, w.interval, true, func(ctx context.Context) {
		result, err := w.sweeper.SweepToday(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("overdue sweep failed")
			return
		}
		if result.Transitioned > 0 || result.Failed > 0 {
			w.logger.Info().
				Time("as_of", result.AsOf).
				Int("transitioned", result.Transitioned).
				Int("failed", result.Failed).
				Msg("overdue sweep finished")
		}
	})
}

// Every calls fn on each tick of interval until ctx is cancelled, and once
// up front when immediate is set. It returns ctx.Err().
func Every(ctx context.Context, interval time.Duration, immediate bool, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if immediate {
		fn(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/metrics"
)

// CashSessionUseCase runs the drawer lifecycle of each cash register.
type CashSessionUseCase struct {
	stores     Stores
	clock      Clock
	thresholds domain.VarianceThresholds
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewCashSessionUseCase creates a new CashSessionUseCase.
func NewCashSessionUseCase(
	stores Stores,
	clock Clock,
	thresholds domain.VarianceThresholds,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *CashSessionUseCase {
	return &CashSessionUseCase{
		stores:     stores,
		clock:      clock,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "cash_session").Logger(),
		metrics:    metrics,
	}
}

// OpenSession opens a drawer on registerID with a starting float.
func (uc *CashSessionUseCase) OpenSession(ctx context.Context, registerID string, opening domain.Money, actor string) (*domain.CashSession, error) {
	if registerID == "" {
		return nil, fmt.Errorf("%w: cash register id is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidateNonNegative(opening); err != nil {
		return nil, err
	}
	actor = actorOrSystem(actor)

	var session *domain.CashSession
	err := uc.stores.retrier().Retry(ctx, func() error {
		now := uc.clock.Now()
		session = &domain.CashSession{
			ID:             uc.stores.IDs.Generate(),
			CashRegisterID: registerID,
			OpenedBy:       actor,
			OpeningAmount:  opening,
			OpenedAt:       now,
			Status:         domain.SessionOpen,
			UpdatedAt:      now,
		}

		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.stores.Tx.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := uc.stores.Sessions.Create(txCtx, tx, session); err != nil {
			return err
		}

		err = uc.stores.record(txCtx, tx, change{
			aggregateType: domain.AggregateTypeCashSession,
			aggregateID:   session.ID,
			eventType:     domain.EventTypeCashSessionOpened,
			payload: domain.CashSessionEvent{
				SessionID:  session.ID,
				RegisterID: registerID,
				Actor:      actor,
				Opening:    opening.String(),
			},
			action: domain.AuditActionSessionOpen,
			actor:  actor,
			after:  session,
			at:     now,
		})
		if err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.SessionsOpened.Inc()
	}
	uc.logger.Info().Str("session_id", session.ID).Str("cash_register_id", registerID).
		Str("opening_amount", opening.String()).Msg("cash session opened")
	return session, nil
}

// RecordEntryInput represents a manual drawer movement.
type RecordEntryInput struct {
	SessionID string
	Type      domain.EntryType
	Amount    domain.Money
	Reference string
	Actor     string
}

// RecordEntry appends a movement to an open session. The amount must be
// positive; the type says which way it moves the drawer.
func (uc *CashSessionUseCase) RecordEntry(ctx context.Context, input RecordEntryInput) (*domain.CashEntry, error) {
	if !input.Type.Recordable() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidEntryType, input.Type)
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	if len(input.Reference) > domain.MaxReferenceLength {
		return nil, fmt.Errorf("%w: reference exceeds %d characters", domain.ErrInvalidInput, domain.MaxReferenceLength)
	}
	actor := actorOrSystem(input.Actor)

	var entry *domain.CashEntry
	err := uc.stores.retrier().Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.stores.Tx.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		session, err := uc.stores.Sessions.GetByIDForUpdate(txCtx, tx, input.SessionID)
		if err != nil {
			return err
		}
		if err := session.EnsureOpen(); err != nil {
			return err
		}

		entry, err = uc.stores.appendEntry(txCtx, tx, session, input.Type, input.Amount, input.Reference, actor, uc.clock.Now())
		if err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesRecorded.WithLabelValues(string(entry.Type)).Inc()
	}
	return entry, nil
}

// CloseSession seals the session and reconciles the counted cash against
// the amount derived from the entry log. A variance is reported, not
// rejected.
func (uc *CashSessionUseCase) CloseSession(ctx context.Context, sessionID string, counted domain.Money, actor string) (*domain.ClosingReport, error) {
	if err := domain.ValidateNonNegative(counted); err != nil {
		return nil, err
	}
	actor = actorOrSystem(actor)

	var report *domain.ClosingReport
	err := uc.stores.retrier().Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.stores.Tx.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		session, err := uc.stores.Sessions.GetByIDForUpdate(txCtx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := session.EnsureOpen(); err != nil {
			return err
		}

		entries, err := uc.stores.Entries.ListBySessionTx(txCtx, tx, sessionID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		report, err = domain.BuildClosingReport(session, entries, &counted, uc.thresholds)
		if err != nil {
			return err
		}
		report.Status = domain.SessionClosed
		report.ClosedBy = &actor
		report.ClosedAt = &now

		if err := session.Close(report); err != nil {
			return err
		}
		if err := uc.stores.Sessions.Update(txCtx, tx, session); err != nil {
			return err
		}

		expected, variance := report.Expected.String(), report.Variance.String()
		countedStr := counted.String()
		err = uc.stores.record(txCtx, tx, change{
			aggregateType: domain.AggregateTypeCashSession,
			aggregateID:   session.ID,
			eventType:     domain.EventTypeCashSessionClosed,
			payload: domain.CashSessionEvent{
				SessionID:  session.ID,
				RegisterID: session.CashRegisterID,
				Actor:      actor,
				Opening:    session.OpeningAmount.String(),
				Expected:   &expected,
				Counted:    &countedStr,
				Variance:   &variance,
			},
			action: domain.AuditActionSessionClose,
			actor:  actor,
			after:  report,
			at:     now,
		})
		if err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.SessionsClosed.WithLabelValues(string(report.Classification)).Inc()
		uc.metrics.ClosingVariance.Observe(report.Variance.Decimal().InexactFloat64())
	}
	ev := uc.logger.Info()
	if report.Classification != domain.VarianceNormal {
		ev = uc.logger.Warn()
	}
	ev.Str("session_id", report.SessionID).Str("expected", report.Expected.String()).
		Str("counted", report.Counted.String()).Str("variance", report.Variance.String()).
		Str("classification", string(report.Classification)).Msg("cash session closed")
	return report, nil
}

// ReopenSession returns a closed session to open. Only admins may do it;
// the prior closing report is kept in the audit log and a marker entry is
// appended to the session.
func (uc *CashSessionUseCase) ReopenSession(ctx context.Context, sessionID string, actor domain.Actor) (*domain.CashSession, error) {
	if !actor.Role.CanReopen() {
		return nil, fmt.Errorf("%w: reopening a cash session requires %s", domain.ErrInsufficientRole, domain.RoleAdmin)
	}
	actorID := actorOrSystem(actor.ID)

	var session *domain.CashSession
	err := uc.stores.retrier().Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.stores.Tx.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		session, err = uc.stores.Sessions.GetByIDForUpdate(txCtx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.IsOpen() {
			return &domain.SessionError{Kind: domain.ErrSessionAlreadyOpen, SessionID: session.ID, RegisterID: session.CashRegisterID}
		}

		entries, err := uc.stores.Entries.ListBySessionTx(txCtx, tx, sessionID)
		if err != nil {
			return err
		}
		prior, err := domain.BuildClosingReport(session, entries, session.ClosingCountedAmount, uc.thresholds)
		if err != nil {
			return err
		}
		prevCounted := domain.ZeroMoney
		if session.ClosingCountedAmount != nil {
			prevCounted = *session.ClosingCountedAmount
		}
		prevClosedBy := ""
		if session.ClosedBy != nil {
			prevClosedBy = *session.ClosedBy
		}

		now := uc.clock.Now()
		if err := session.Reopen(now); err != nil {
			return err
		}
		// fails with ErrSessionAlreadyOpen if the register opened a new session meanwhile
		if err := uc.stores.Sessions.Update(txCtx, tx, session); err != nil {
			return err
		}

		reference := fmt.Sprintf("reopen #%d of close by %s", session.ReopenCount, prevClosedBy)
		if _, err := uc.stores.appendEntry(txCtx, tx, session, domain.EntryReopenMarker, prevCounted, reference, actorID, now); err != nil {
			return err
		}

		counted := prevCounted.String()
		err = uc.stores.record(txCtx, tx, change{
			aggregateType: domain.AggregateTypeCashSession,
			aggregateID:   session.ID,
			eventType:     domain.EventTypeCashSessionReopened,
			payload: domain.CashSessionEvent{
				SessionID:  session.ID,
				RegisterID: session.CashRegisterID,
				Actor:      actorID,
				Opening:    session.OpeningAmount.String(),
				Counted:    &counted,
			},
			action: domain.AuditActionSessionReopen,
			actor:  actorID,
			before: prior,
			after:  session,
			at:     now,
		})
		if err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.SessionsReopened.Inc()
	}
	uc.logger.Warn().Str("session_id", session.ID).Str("actor", actorID).Msg("cash session reopened")
	return session, nil
}

// GetSession retrieves a session by ID.
func (uc *CashSessionUseCase) GetSession(ctx context.Context, id string) (*domain.CashSession, error) {
	return uc.stores.Sessions.GetByID(ctx, id)
}

// GetActiveSession returns the open session of a register.
func (uc *CashSessionUseCase) GetActiveSession(ctx context.Context, registerID string) (*domain.CashSession, error) {
	return uc.stores.Sessions.GetOpenByRegister(ctx, registerID)
}

// ListSessionEntries lists a session's entries in insertion order.
func (uc *CashSessionUseCase) ListSessionEntries(ctx context.Context, sessionID string) ([]*domain.CashEntry, error) {
	if _, err := uc.stores.Sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return uc.stores.Entries.ListBySession(ctx, sessionID)
}

// ListSessionsInput represents input for listing a register's sessions.
type ListSessionsInput struct {
	RegisterID string
	Limit      int
	Offset     int
}

// ListSessions lists a register's sessions, newest first.
func (uc *CashSessionUseCase) ListSessions(ctx context.Context, input ListSessionsInput) ([]*domain.CashSession, error) {
	limit, offset, _ := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.stores.Sessions.ListByRegister(ctx, input.RegisterID, limit, offset)
}

// GetSessionReport returns the closing report of a closed session, or the
// live figures of an open one.
func (uc *CashSessionUseCase) GetSessionReport(ctx context.Context, sessionID string) (*domain.ClosingReport, []*domain.CashEntry, error) {
	session, err := uc.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := uc.stores.Entries.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	report, err := domain.BuildClosingReport(session, entries, session.ClosingCountedAmount, uc.thresholds)
	if err != nil {
		return nil, nil, err
	}
	return report, entries, nil
}

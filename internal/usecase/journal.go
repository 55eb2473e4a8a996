package usecase

import (
	"context"
	"time"

	"github.com/iho/storeledger/internal/domain"
)

// Stores bundles the persistence ports shared by the ledger use cases.
type Stores struct {
	Tx       TransactionManager
	Sales    SaleRepository
	Payments PaymentRepository
	Sessions CashSessionRepository
	Entries  CashEntryRepository
	Outbox   OutboxRepository
	Audit    AuditRepository
	IDs      IDGenerator
	// Retrier is optional; without one every operation runs once.
	Retrier Retrier
}

func (s Stores) retrier() Retrier {
	if s.Retrier == nil {
		return noRetry{}
	}
	return s.Retrier
}

// change is one committed mutation: the outbox event and the audit row
// written in the same transaction.
type change struct {
	aggregateType string
	aggregateID   string
	eventType     string
	payload       any
	action        domain.AuditAction
	actor         string
	before        any
	after         any
	at            time.Time
}

// record writes the outbox event and the audit row for c inside tx.
func (s Stores) record(ctx context.Context, tx Transaction, c change) error {
	event := &domain.OutboxEvent{
		ID:            s.IDs.Generate(),
		AggregateID:   c.aggregateID,
		AggregateType: c.aggregateType,
		EventType:     c.eventType,
		Payload:       domain.MarshalState(c.payload),
		CreatedAt:     c.at,
		Published:     false,
	}
	if err := s.Outbox.Create(ctx, tx, event); err != nil {
		return err
	}

	if s.Audit == nil {
		return nil
	}

	userID := c.actor
	if userID == "" {
		userID = systemActor
		if user, ok := domain.UserFromContext(ctx); ok {
			userID = user.ID
		}
	}
	meta := domain.RequestMetaFromContext(ctx)

	auditLog := &domain.AuditLog{
		ID:           s.IDs.Generate(),
		UserID:       userID,
		Action:       string(c.action),
		ResourceType: c.aggregateType,
		ResourceID:   c.aggregateID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		RequestID:    meta.RequestID,
		BeforeState:  domain.MarshalState(c.before),
		AfterState:   domain.MarshalState(c.after),
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    c.at,
	}
	return s.Audit.CreateTx(ctx, tx, auditLog)
}

// appendEntry appends a drawer entry and its outbox event. The session
// must already be locked by tx.
func (s Stores) appendEntry(
	ctx context.Context,
	tx Transaction,
	session *domain.CashSession,
	typ domain.EntryType,
	amount domain.Money,
	reference, actor string,
	at time.Time,
) (*domain.CashEntry, error) {
	entry := &domain.CashEntry{
		ID:        s.IDs.Generate(),
		SessionID: session.ID,
		Type:      typ,
		Amount:    amount,
		Reference: reference,
		CreatedBy: actor,
		CreatedAt: at,
	}
	if err := s.Entries.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	err := s.record(ctx, tx, change{
		aggregateType: domain.AggregateTypeCashSession,
		aggregateID:   session.ID,
		eventType:     domain.EventTypeCashEntryRecorded,
		payload: domain.CashEntryRecordedEvent{
			EntryID:   entry.ID,
			SessionID: session.ID,
			Type:      string(entry.Type),
			Amount:    entry.Amount.String(),
			Reference: entry.Reference,
		},
		action: domain.AuditActionEntryRecord,
		actor:  actor,
		after:  entry,
		at:     at,
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return systemActor
	}
	return actor
}

package usecase

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

import (
	"context"
	"time"

	"github.com/iho/storeledger/internal/domain"
)

// SaleRepository defines data access for sales.
type SaleRepository interface {
	Create(ctx context.Context, tx Transaction, sale *domain.Sale) error
	GetByID(ctx context.Context, id string) (*domain.Sale, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Sale, error)
	// GetByIDsForUpdate locks the sales in ascending id order.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Sale, error)
	Update(ctx context.Context, tx Transaction, sale *domain.Sale) error
	ListActiveIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// PaymentRepository defines data access for installments.
type PaymentRepository interface {
	CreateBatch(ctx context.Context, tx Transaction, payments []*domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Payment, error)
	ListBySale(ctx context.Context, saleID string) ([]*domain.Payment, error)
	ListBySaleTx(ctx context.Context, tx Transaction, saleID string) ([]*domain.Payment, error)
	Update(ctx context.Context, tx Transaction, payment *domain.Payment) error
	// SumOutstanding sums the amounts of unpaid installments of a sale as stored.
	SumOutstanding(ctx context.Context, tx Transaction, saleID string) (domain.Money, error)
	HasResidual(ctx context.Context, tx Transaction, parentID string) (bool, error)
	// ListOverdueCandidates pages through pending installments of active
	// sales due before asOf, ordered by id.
	ListOverdueCandidates(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*domain.Payment, error)
	// MarkOverdue flips a single installment to overdue only if it is still
	// pending and due before asOf. It reports whether a row changed.
	MarkOverdue(ctx context.Context, tx Transaction, id string, asOf, updatedAt time.Time) (bool, error)
}

// CashSessionRepository defines data access for drawer sessions.
type CashSessionRepository interface {
	// Create fails with domain.ErrSessionAlreadyOpen when the register
	// already has an open session.
	Create(ctx context.Context, tx Transaction, session *domain.CashSession) error
	GetByID(ctx context.Context, id string) (*domain.CashSession, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.CashSession, error)
	GetOpenByRegister(ctx context.Context, registerID string) (*domain.CashSession, error)
	GetOpenByRegisterForUpdate(ctx context.Context, tx Transaction, registerID string) (*domain.CashSession, error)
	Update(ctx context.Context, tx Transaction, session *domain.CashSession) error
	ListByRegister(ctx context.Context, registerID string, limit, offset int) ([]*domain.CashSession, error)
	ListClosed(ctx context.Context, limit, offset int) ([]*domain.CashSession, error)
}

// CashEntryRepository defines data access for the append-only entry log.
type CashEntryRepository interface {
	// Append stores the entry and assigns its sequence number.
	Append(ctx context.Context, tx Transaction, entry *domain.CashEntry) error
	ListBySession(ctx context.Context, sessionID string) ([]*domain.CashEntry, error)
	ListBySessionTx(ctx context.Context, tx Transaction, sessionID string) ([]*domain.CashEntry, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
	GetByResourceID(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation that lost a deadlock or serialization race.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock returns the current time in the business time zone.
type Clock interface {
	Now() time.Time
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request failed so the client may retry it.
	Release(ctx context.Context, key string) error
}

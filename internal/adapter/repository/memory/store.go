// Package memory keeps the ledger in process memory. Row locks are held by a
// transaction until it commits or rolls back, and a rollback replays an undo
// log, so the use cases see the same locking and atomicity they get from
// PostgreSQL.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// ErrForeignTransaction is returned when a repository receives a
// transaction that was not started by this store.
var ErrForeignTransaction = errors.New("memory: transaction does not belong to this store")

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already committed or rolled back")

// Store holds every table of the in-memory backend.
type Store struct {
	mu sync.RWMutex

	sales    map[string]*domain.Sale
	payments map[string]*domain.Payment
	sessions map[string]*domain.CashSession
	// openByRegister enforces one open session per register.
	openByRegister map[string]string
	entries        map[string][]*domain.CashEntry
	entrySeq       int64
	outbox         []*domain.OutboxEvent
	audit          []*domain.AuditLog

	locks *lockTable
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sales:          make(map[string]*domain.Sale),
		payments:       make(map[string]*domain.Payment),
		sessions:       make(map[string]*domain.CashSession),
		openByRegister: make(map[string]string),
		entries:        make(map[string][]*domain.CashEntry),
		locks:          newLockTable(),
	}
}

// Stores wires every repository of s into the use case ports.
func (s *Store) Stores(ids usecase.IDGenerator) usecase.Stores {
	return usecase.Stores{
		Tx:       NewTxManager(s),
		Sales:    NewSaleRepository(s),
		Payments: NewPaymentRepository(s),
		Sessions: NewCashSessionRepository(s),
		Entries:  NewCashEntryRepository(s),
		Outbox:   NewOutboxRepository(s),
		Audit:    NewAuditRepository(s),
		IDs:      ids,
	}
}

// Tx is an in-memory transaction.
type Tx struct {
	store *Store

	mu   sync.Mutex
	done bool

	// guarded by store.mu
	undo []func()
	// guarded by the lock table
	held []string
}

// finish marks tx done and reports whether it was still running.
func (tx *Tx) finish() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return false
	}
	tx.done = true
	return true
}

// Commit keeps the writes and releases the locks.
func (tx *Tx) Commit(_ context.Context) error {
	if !tx.finish() {
		return ErrTxDone
	}
	tx.store.mu.Lock()
	tx.undo = nil
	tx.store.mu.Unlock()
	tx.store.locks.release(tx)
	return nil
}

// Rollback undoes the writes in reverse order and releases the locks. It is
// a no-op after Commit.
func (tx *Tx) Rollback(_ context.Context) error {
	if !tx.finish() {
		return nil
	}
	tx.store.mu.Lock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.store.mu.Unlock()
	tx.store.locks.release(tx)
	return nil
}

// onRollback registers an undo step. Callers hold store.mu.
func (tx *Tx) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *Tx) isDone() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.done
}

// TxManager starts in-memory transactions.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager for store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(_ context.Context) (usecase.Transaction, error) {
	return &Tx{store: m.store}, nil
}

// txFor checks that tx was started by s and is still running.
func (s *Store) txFor(tx usecase.Transaction) (*Tx, error) {
	mtx, ok := tx.(*Tx)
	if !ok || mtx.store != s {
		return nil, ErrForeignTransaction
	}
	if mtx.isDone() {
		return nil, ErrTxDone
	}
	return mtx, nil
}

// lock takes the row lock on key for tx, waiting for the holder to finish.
func (s *Store) lock(ctx context.Context, tx usecase.Transaction, key string) (*Tx, error) {
	mtx, err := s.txFor(tx)
	if err != nil {
		return nil, err
	}
	if err := s.locks.acquire(ctx, mtx, key); err != nil {
		return nil, err
	}
	return mtx, nil
}

// lockTable maps row keys to the transaction holding them.
type lockTable struct {
	mu      sync.Mutex
	owners  map[string]*Tx
	waiters map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{
		owners:  make(map[string]*Tx),
		waiters: make(map[string]chan struct{}),
	}
}

func (l *lockTable) acquire(ctx context.Context, tx *Tx, key string) error {
	for {
		l.mu.Lock()
		owner := l.owners[key]
		if owner == nil {
			l.owners[key] = tx
			tx.held = append(tx.held, key)
			l.mu.Unlock()
			return nil
		}
		if owner == tx {
			l.mu.Unlock()
			return nil
		}
		wait := l.waiters[key]
		if wait == nil {
			wait = make(chan struct{})
			l.waiters[key] = wait
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// release frees every lock of tx.
func (l *lockTable) release(tx *Tx) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range tx.held {
		if l.owners[key] != tx {
			continue
		}
		delete(l.owners, key)
		if wait, ok := l.waiters[key]; ok {
			close(wait)
			delete(l.waiters, key)
		}
	}
	tx.held = nil
}

func saleKey(id string) string    { return "sale:" + id }
func paymentKey(id string) string { return "payment:" + id }
func sessionKey(id string) string { return "session:" + id }

func cloneSale(s *domain.Sale) *domain.Sale {
	c := *s
	return &c
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	return &c
}

func cloneSession(s *domain.CashSession) *domain.CashSession {
	c := *s
	return &c
}

func cloneEntry(e *domain.CashEntry) *domain.CashEntry {
	c := *e
	return &c
}

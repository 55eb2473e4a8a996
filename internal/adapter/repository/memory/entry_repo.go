package memory

import (
	"context"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// CashEntryRepository implements usecase.CashEntryRepository.
type CashEntryRepository struct {
	store *Store
}

// NewCashEntryRepository creates a new CashEntryRepository.
func NewCashEntryRepository(store *Store) *CashEntryRepository {
	return &CashEntryRepository{store: store}
}

// Append stores entry with the next sequence number. Numbers consumed by a
// rolled back transaction are not reused.
func (r *CashEntryRepository) Append(_ context.Context, tx usecase.Transaction, entry *domain.CashEntry) error {
	mtx, err := r.store.txFor(tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sessions[entry.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	r.store.entrySeq++
	entry.Seq = r.store.entrySeq

	sessionID, id := entry.SessionID, entry.ID
	r.store.entries[sessionID] = append(r.store.entries[sessionID], cloneEntry(entry))
	mtx.onRollback(func() {
		kept := r.store.entries[sessionID][:0]
		for _, e := range r.store.entries[sessionID] {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		r.store.entries[sessionID] = kept
	})
	return nil
}

// ListBySession returns the entries of a session in insertion order.
func (r *CashEntryRepository) ListBySession(_ context.Context, sessionID string) ([]*domain.CashEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	stored := r.store.entries[sessionID]
	out := make([]*domain.CashEntry, len(stored))
	for i, e := range stored {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

func (r *CashEntryRepository) ListBySessionTx(ctx context.Context, tx usecase.Transaction, sessionID string) ([]*domain.CashEntry, error) {
	if _, err := r.store.txFor(tx); err != nil {
		return nil, err
	}
	return r.ListBySession(ctx, sessionID)
}

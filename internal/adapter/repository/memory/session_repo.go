package memory

import (
	"context"
	"sort"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// CashSessionRepository implements usecase.CashSessionRepository.
type CashSessionRepository struct {
	store *Store
}

// NewCashSessionRepository creates a new CashSessionRepository.
func NewCashSessionRepository(store *Store) *CashSessionRepository {
	return &CashSessionRepository{store: store}
}

func (r *CashSessionRepository) Create(ctx context.Context, tx usecase.Transaction, session *domain.CashSession) error {
	mtx, err := r.store.lock(ctx, tx, sessionKey(session.ID))
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if session.IsOpen() {
		if err := r.claimRegister(mtx, session); err != nil {
			return err
		}
	}
	r.store.sessions[session.ID] = cloneSession(session)
	mtx.onRollback(func() { delete(r.store.sessions, session.ID) })
	return nil
}

// claimRegister marks session as the open one of its register. Callers
// hold store.mu.
func (r *CashSessionRepository) claimRegister(mtx *Tx, session *domain.CashSession) error {
	registerID := session.CashRegisterID
	current, ok := r.store.openByRegister[registerID]
	if ok && current != session.ID {
		return &domain.SessionError{Kind: domain.ErrSessionAlreadyOpen, SessionID: current, RegisterID: registerID}
	}
	if ok {
		return nil
	}
	r.store.openByRegister[registerID] = session.ID
	mtx.onRollback(func() { delete(r.store.openByRegister, registerID) })
	return nil
}

func (r *CashSessionRepository) GetByID(_ context.Context, id string) (*domain.CashSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *CashSessionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.CashSession, error) {
	if _, err := r.store.lock(ctx, tx, sessionKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *CashSessionRepository) GetOpenByRegister(_ context.Context, registerID string) (*domain.CashSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := r.store.openByRegister[registerID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(r.store.sessions[id]), nil
}

// GetOpenByRegisterForUpdate locks the open session of a register. The
// session may close while the lock is awaited, so the status is checked
// again once it is held.
func (r *CashSessionRepository) GetOpenByRegisterForUpdate(ctx context.Context, tx usecase.Transaction, registerID string) (*domain.CashSession, error) {
	for {
		open, err := r.GetOpenByRegister(ctx, registerID)
		if err != nil {
			return nil, err
		}
		locked, err := r.GetByIDForUpdate(ctx, tx, open.ID)
		if err != nil {
			return nil, err
		}
		if locked.IsOpen() {
			return locked, nil
		}
	}
}

func (r *CashSessionRepository) Update(ctx context.Context, tx usecase.Transaction, session *domain.CashSession) error {
	mtx, err := r.store.lock(ctx, tx, sessionKey(session.ID))
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	prev, ok := r.store.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}

	registerID := session.CashRegisterID
	switch {
	case session.IsOpen():
		if err := r.claimRegister(mtx, session); err != nil {
			return err
		}
	case r.store.openByRegister[registerID] == session.ID:
		delete(r.store.openByRegister, registerID)
		id := session.ID
		mtx.onRollback(func() { r.store.openByRegister[registerID] = id })
	}

	r.store.sessions[session.ID] = cloneSession(session)
	mtx.onRollback(func() { r.store.sessions[session.ID] = prev })
	return nil
}

// ListByRegister lists a register's sessions, newest first.
func (r *CashSessionRepository) ListByRegister(_ context.Context, registerID string, limit, offset int) ([]*domain.CashSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.CashSession, 0)
	for _, s := range r.store.sessions {
		if s.CashRegisterID == registerID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	return page(out, limit, offset), nil
}

// ListClosed lists closed sessions by id.
func (r *CashSessionRepository) ListClosed(_ context.Context, limit, offset int) ([]*domain.CashSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.CashSession, 0)
	for _, s := range r.store.sessions {
		if s.Status == domain.SessionClosed {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

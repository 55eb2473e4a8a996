package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// PaymentRepository implements usecase.PaymentRepository.
type PaymentRepository struct {
	store *Store
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(store *Store) *PaymentRepository {
	return &PaymentRepository{store: store}
}

func (r *PaymentRepository) CreateBatch(ctx context.Context, tx usecase.Transaction, payments []*domain.Payment) error {
	for _, p := range payments {
		if _, err := r.store.lock(ctx, tx, paymentKey(p.ID)); err != nil {
			return err
		}
	}
	mtx, err := r.store.txFor(tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range payments {
		id := p.ID
		r.store.payments[id] = clonePayment(p)
		mtx.onRollback(func() { delete(r.store.payments, id) })
	}
	return nil
}

func (r *PaymentRepository) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	p, ok := r.store.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Payment, error) {
	if _, err := r.store.lock(ctx, tx, paymentKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ListBySale returns a sale's installments by payment number.
func (r *PaymentRepository) ListBySale(_ context.Context, saleID string) ([]*domain.Payment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.bySale(saleID), nil
}

func (r *PaymentRepository) ListBySaleTx(ctx context.Context, tx usecase.Transaction, saleID string) ([]*domain.Payment, error) {
	if _, err := r.store.txFor(tx); err != nil {
		return nil, err
	}
	return r.ListBySale(ctx, saleID)
}

func (r *PaymentRepository) bySale(saleID string) []*domain.Payment {
	out := make([]*domain.Payment, 0)
	for _, p := range r.store.payments {
		if p.SaleID == saleID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentNumber < out[j].PaymentNumber })
	return out
}

func (r *PaymentRepository) Update(ctx context.Context, tx usecase.Transaction, payment *domain.Payment) error {
	mtx, err := r.store.lock(ctx, tx, paymentKey(payment.ID))
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	prev, ok := r.store.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	next := clonePayment(payment)
	next.Amount = prev.Amount
	r.store.payments[payment.ID] = next
	mtx.onRollback(func() { r.store.payments[payment.ID] = prev })
	return nil
}

func (r *PaymentRepository) SumOutstanding(_ context.Context, tx usecase.Transaction, saleID string) (domain.Money, error) {
	if _, err := r.store.txFor(tx); err != nil {
		return domain.ZeroMoney, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return domain.OutstandingBalance(r.bySale(saleID)), nil
}

func (r *PaymentRepository) HasResidual(_ context.Context, tx usecase.Transaction, parentID string) (bool, error) {
	if _, err := r.store.txFor(tx); err != nil {
		return false, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, p := range r.store.payments {
		if p.ParentPaymentID != nil && *p.ParentPaymentID == parentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *PaymentRepository) ListOverdueCandidates(_ context.Context, asOf time.Time, afterID string, limit int) ([]*domain.Payment, error) {
	asOf = domain.TruncateToDay(asOf)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Payment, 0)
	for id, p := range r.store.payments {
		if id <= afterID || p.Status != domain.PaymentPending || !p.DueDate.Before(asOf) {
			continue
		}
		if s, ok := r.store.sales[p.SaleID]; !ok || s.Status != domain.SaleActive {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkOverdue waits for the row lock, like an UPDATE would, and then only
// changes a row that is still pending.
func (r *PaymentRepository) MarkOverdue(ctx context.Context, tx usecase.Transaction, id string, asOf, updatedAt time.Time) (bool, error) {
	mtx, err := r.store.lock(ctx, tx, paymentKey(id))
	if err != nil {
		return false, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	prev, ok := r.store.payments[id]
	if !ok {
		return false, nil
	}
	next := clonePayment(prev)
	if !next.MarkOverdue(asOf) {
		return false, nil
	}
	next.UpdatedAt = updatedAt
	r.store.payments[id] = next
	mtx.onRollback(func() { r.store.payments[id] = prev })
	return true, nil
}

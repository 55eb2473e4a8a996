package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// SaleRepository implements usecase.SaleRepository.
type SaleRepository struct {
	store *Store
}

// NewSaleRepository creates a new SaleRepository.
func NewSaleRepository(store *Store) *SaleRepository {
	return &SaleRepository{store: store}
}

func (r *SaleRepository) Create(ctx context.Context, tx usecase.Transaction, sale *domain.Sale) error {
	mtx, err := r.store.lock(ctx, tx, saleKey(sale.ID))
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sales[sale.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrSaleExists, sale.ID)
	}
	r.store.sales[sale.ID] = cloneSale(sale)
	mtx.onRollback(func() { delete(r.store.sales, sale.ID) })
	return nil
}

func (r *SaleRepository) GetByID(_ context.Context, id string) (*domain.Sale, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.sales[id]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	return cloneSale(s), nil
}

func (r *SaleRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Sale, error) {
	if _, err := r.store.lock(ctx, tx, saleKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByIDsForUpdate locks in ascending id order and skips missing ids.
func (r *SaleRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Sale, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	sales := make([]*domain.Sale, 0, len(sorted))
	for _, id := range sorted {
		s, err := r.GetByIDForUpdate(ctx, tx, id)
		if errors.Is(err, domain.ErrSaleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, nil
}

func (r *SaleRepository) Update(ctx context.Context, tx usecase.Transaction, sale *domain.Sale) error {
	mtx, err := r.store.lock(ctx, tx, saleKey(sale.ID))
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	prev, ok := r.store.sales[sale.ID]
	if !ok {
		return domain.ErrSaleNotFound
	}
	r.store.sales[sale.ID] = cloneSale(sale)
	mtx.onRollback(func() { r.store.sales[sale.ID] = prev })
	return nil
}

func (r *SaleRepository) ListActiveIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := make([]string, 0)
	for id, s := range r.store.sales {
		if s.Status == domain.SaleActive && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

const saleColumns = `id, customer_id, cash_register_id, payment_type, total, initial_payment,
	initial_payment_method, credit_days, installments_count, remaining_balance, amount_paid,
	change_amount, status, created_by, created_at, updated_at`

// SaleRepository implements usecase.SaleRepository.
type SaleRepository struct {
	db DB
}

// NewSaleRepository creates a new SaleRepository.
func NewSaleRepository(db DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Create inserts a sale. A duplicate id fails with domain.ErrSaleExists.
func (r *SaleRepository) Create(ctx context.Context, tx usecase.Transaction, sale *domain.Sale) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}

	var method *string
	if sale.InitialPaymentMethod != nil {
		m := string(*sale.InitialPaymentMethod)
		method = &m
	}

	_, err = ptx.Exec(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sale.ID,
		sale.CustomerID,
		sale.CashRegisterID,
		string(sale.PaymentType),
		moneyArg(sale.Total),
		moneyArg(sale.InitialPayment),
		method,
		sale.CreditDays,
		sale.InstallmentsCount,
		moneyArg(sale.RemainingBalance),
		moneyArg(sale.AmountPaid),
		moneyArg(sale.ChangeAmount),
		string(sale.Status),
		sale.CreatedBy,
		sale.CreatedAt,
		sale.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrSaleExists, sale.ID)
	}
	return err
}

// GetByID retrieves a sale by ID.
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := r.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	return scanSaleRow(row)
}

// GetByIDForUpdate retrieves a sale by ID with a FOR UPDATE lock.
func (r *SaleRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Sale, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	row := ptx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
	return scanSaleRow(row)
}

// GetByIDsForUpdate locks the sales in ascending id order. Unknown ids are
// skipped.
func (r *SaleRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Sale, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	rows, err := ptx.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]*domain.Sale, 0, len(ids))
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// Update writes the mutable columns of a locked sale.
func (r *SaleRepository) Update(ctx context.Context, tx usecase.Transaction, sale *domain.Sale) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := ptx.Exec(ctx, `
		UPDATE sales
		SET remaining_balance = $2, amount_paid = $3, status = $4, updated_at = $5
		WHERE id = $1`,
		sale.ID,
		moneyArg(sale.RemainingBalance),
		moneyArg(sale.AmountPaid),
		string(sale.Status),
		sale.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSaleNotFound
	}
	return nil
}

// ListActiveIDs pages through the ids of sales that are not voided.
func (r *SaleRepository) ListActiveIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM sales
		WHERE status = $1 AND id > $2
		ORDER BY id
		LIMIT $3`, string(domain.SaleActive), afterID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSaleRow(row pgx.Row) (*domain.Sale, error) {
	s, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSaleNotFound
	}
	return s, err
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	var (
		s                                             domain.Sale
		paymentType, status                           string
		method                                        *string
		total, initial, remaining, amountPaid, change decimal.Decimal
		creditDays, installments                      int32
	)
	err := row.Scan(
		&s.ID,
		&s.CustomerID,
		&s.CashRegisterID,
		&paymentType,
		&total,
		&initial,
		&method,
		&creditDays,
		&installments,
		&remaining,
		&amountPaid,
		&change,
		&status,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.PaymentType = domain.PaymentType(paymentType)
	s.Status = domain.SaleStatus(status)
	s.Total = toMoney(total)
	s.InitialPayment = toMoney(initial)
	s.RemainingBalance = toMoney(remaining)
	s.AmountPaid = toMoney(amountPaid)
	s.ChangeAmount = toMoney(change)
	s.CreditDays = int(creditDays)
	s.InstallmentsCount = int(installments)
	if method != nil {
		m := domain.PaymentMethod(*method)
		s.InitialPaymentMethod = &m
	}
	return &s, nil
}

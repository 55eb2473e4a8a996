package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

const paymentColumns = `id, sale_id, parent_payment_id, payment_number, amount, due_date, status,
	paid_date, paid_amount, balance_after, payment_method, transaction_reference, notes,
	updated_by, cash_entry_id, cash_session_id, created_at, updated_at`

// PaymentRepository implements usecase.PaymentRepository.
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateBatch inserts a sale's installments in one round trip.
func (r *PaymentRepository) CreateBatch(ctx context.Context, tx usecase.Transaction, payments []*domain.Payment) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range payments {
		batch.Queue(`
			INSERT INTO payments (`+paymentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			paymentArgs(p)...,
		)
	}

	br := ptx.SendBatch(ctx, batch)
	for range payments {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// GetByID retrieves an installment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPaymentRow(row)
}

// GetByIDForUpdate retrieves an installment by ID with a FOR UPDATE lock.
func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Payment, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	row := ptx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
	return scanPaymentRow(row)
}

// ListBySale returns a sale's installments by payment number.
func (r *PaymentRepository) ListBySale(ctx context.Context, saleID string) ([]*domain.Payment, error) {
	return listPayments(ctx, r.db, saleID)
}

// ListBySaleTx is ListBySale inside tx.
func (r *PaymentRepository) ListBySaleTx(ctx context.Context, tx usecase.Transaction, saleID string) ([]*domain.Payment, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return listPayments(ctx, ptx, saleID)
}

func listPayments(ctx context.Context, q DB, saleID string) ([]*domain.Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE sale_id = $1
		ORDER BY payment_number`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// Update writes the status and settlement columns of a locked installment.
// The scheduled amount is never rewritten.
func (r *PaymentRepository) Update(ctx context.Context, tx usecase.Transaction, p *domain.Payment) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := ptx.Exec(ctx, `
		UPDATE payments
		SET status = $2, paid_date = $3, paid_amount = $4, balance_after = $5,
			payment_method = $6, transaction_reference = $7, notes = $8, updated_by = $9,
			cash_entry_id = $10, cash_session_id = $11, updated_at = $12
		WHERE id = $1`,
		p.ID,
		string(p.Status),
		p.PaidDate,
		moneyPtrArg(p.PaidAmount),
		moneyPtrArg(p.BalanceAfter),
		methodArg(p.PaymentMethod),
		p.TransactionReference,
		p.Notes,
		p.UpdatedBy,
		p.CashEntryID,
		p.CashSessionID,
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// SumOutstanding sums the unpaid installments of a sale as stored.
func (r *PaymentRepository) SumOutstanding(ctx context.Context, tx usecase.Transaction, saleID string) (domain.Money, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return domain.ZeroMoney, err
	}

	var sum decimal.Decimal
	err = ptx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE sale_id = $1 AND status IN ($2, $3)`,
		saleID, string(domain.PaymentPending), string(domain.PaymentOverdue),
	).Scan(&sum)
	if err != nil {
		return domain.ZeroMoney, err
	}
	return toMoney(sum), nil
}

// HasResidual reports whether a partial collection of parentID already
// spawned a residual installment.
func (r *PaymentRepository) HasResidual(ctx context.Context, tx usecase.Transaction, parentID string) (bool, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = ptx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE parent_payment_id = $1)`, parentID,
	).Scan(&exists)
	return exists, err
}

// ListOverdueCandidates pages through pending installments of active sales
// due before the business date of asOf.
func (r *PaymentRepository) ListOverdueCandidates(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+prefixed("p.", paymentColumns)+`
		FROM payments p
		JOIN sales s ON s.id = p.sale_id
		WHERE s.status = $1 AND p.status = $2 AND p.due_date < $3 AND p.id > $4
		ORDER BY p.id
		LIMIT $5`,
		string(domain.SaleActive),
		string(domain.PaymentPending),
		domain.TruncateToDay(asOf),
		afterID,
		limitArg(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MarkOverdue flips one installment to overdue. The WHERE clause re-checks
// the status so a collection committed since the scan wins.
func (r *PaymentRepository) MarkOverdue(ctx context.Context, tx usecase.Transaction, id string, asOf, updatedAt time.Time) (bool, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return false, err
	}

	tag, err := ptx.Exec(ctx, `
		UPDATE payments
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4 AND due_date < $5`,
		id,
		string(domain.PaymentOverdue),
		updatedAt,
		string(domain.PaymentPending),
		domain.TruncateToDay(asOf),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func paymentArgs(p *domain.Payment) []any {
	return []any{
		p.ID,
		p.SaleID,
		p.ParentPaymentID,
		p.PaymentNumber,
		moneyArg(p.Amount),
		p.DueDate,
		string(p.Status),
		p.PaidDate,
		moneyPtrArg(p.PaidAmount),
		moneyPtrArg(p.BalanceAfter),
		methodArg(p.PaymentMethod),
		p.TransactionReference,
		p.Notes,
		p.UpdatedBy,
		p.CashEntryID,
		p.CashSessionID,
		p.CreatedAt,
		p.UpdatedAt,
	}
}

func methodArg(m *domain.PaymentMethod) *string {
	if m == nil {
		return nil
	}
	s := string(*m)
	return &s
}

func scanPaymentRow(row pgx.Row) (*domain.Payment, error) {
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	return p, err
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p                                    domain.Payment
		number                               int32
		amount                               decimal.Decimal
		status                               string
		paidAmount, balanceAfter             decimal.NullDecimal
		method                               *string
		reference, notes, updatedBy, entryID *string
	)
	err := row.Scan(
		&p.ID,
		&p.SaleID,
		&p.ParentPaymentID,
		&number,
		&amount,
		&p.DueDate,
		&status,
		&p.PaidDate,
		&paidAmount,
		&balanceAfter,
		&method,
		&reference,
		&notes,
		&updatedBy,
		&entryID,
		&p.CashSessionID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st, err := domain.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	p.Status = st
	p.PaymentNumber = int(number)
	p.Amount = toMoney(amount)
	p.PaidAmount = toMoneyPtr(paidAmount)
	p.BalanceAfter = toMoneyPtr(balanceAfter)
	if method != nil {
		m := domain.PaymentMethod(*method)
		p.PaymentMethod = &m
	}
	p.TransactionReference = reference
	p.Notes = notes
	p.UpdatedBy = updatedBy
	p.CashEntryID = entryID
	return &p, nil
}

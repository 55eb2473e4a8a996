package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

const sessionColumns = `id, cash_register_id, opened_by, opening_amount, opened_at, status,
	closed_by, closing_counted_amount, closing_expected_amount, closing_variance, closed_at,
	reopen_count, updated_at`

// CashSessionRepository implements usecase.CashSessionRepository. At most
// one open session per register is enforced by a partial unique index.
type CashSessionRepository struct {
	db DB
}

// NewCashSessionRepository creates a new CashSessionRepository.
func NewCashSessionRepository(db DB) *CashSessionRepository {
	return &CashSessionRepository{db: db}
}

func (r *CashSessionRepository) Create(ctx context.Context, tx usecase.Transaction, s *domain.CashSession) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}

	_, err = ptx.Exec(ctx, `
		INSERT INTO cash_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID,
		s.CashRegisterID,
		s.OpenedBy,
		moneyArg(s.OpeningAmount),
		s.OpenedAt,
		string(s.Status),
		s.ClosedBy,
		moneyPtrArg(s.ClosingCountedAmount),
		moneyPtrArg(s.ClosingExpectedAmount),
		moneyPtrArg(s.ClosingVariance),
		s.ClosedAt,
		s.ReopenCount,
		s.UpdatedAt,
	)
	return sessionWriteError(err, s)
}

func (r *CashSessionRepository) GetByID(ctx context.Context, id string) (*domain.CashSession, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1`, id)
	return scanSessionRow(row)
}

func (r *CashSessionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.CashSession, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	row := ptx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1 FOR UPDATE`, id)
	return scanSessionRow(row)
}

// GetOpenByRegister returns the register's open session or
// domain.ErrSessionNotFound.
func (r *CashSessionRepository) GetOpenByRegister(ctx context.Context, registerID string) (*domain.CashSession, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM cash_sessions
		WHERE cash_register_id = $1 AND status = $2`,
		registerID, string(domain.SessionOpen))
	return scanSessionRow(row)
}

func (r *CashSessionRepository) GetOpenByRegisterForUpdate(ctx context.Context, tx usecase.Transaction, registerID string) (*domain.CashSession, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	row := ptx.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM cash_sessions
		WHERE cash_register_id = $1 AND status = $2
		FOR UPDATE`,
		registerID, string(domain.SessionOpen))
	return scanSessionRow(row)
}

func (r *CashSessionRepository) Update(ctx context.Context, tx usecase.Transaction, s *domain.CashSession) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := ptx.Exec(ctx, `
		UPDATE cash_sessions
		SET status = $2, closed_by = $3, closing_counted_amount = $4, closing_expected_amount = $5,
			closing_variance = $6, closed_at = $7, reopen_count = $8, updated_at = $9
		WHERE id = $1`,
		s.ID,
		string(s.Status),
		s.ClosedBy,
		moneyPtrArg(s.ClosingCountedAmount),
		moneyPtrArg(s.ClosingExpectedAmount),
		moneyPtrArg(s.ClosingVariance),
		s.ClosedAt,
		s.ReopenCount,
		s.UpdatedAt,
	)
	if err := sessionWriteError(err, s); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ListByRegister lists a register's sessions, newest first.
func (r *CashSessionRepository) ListByRegister(ctx context.Context, registerID string, limit, offset int) ([]*domain.CashSession, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM cash_sessions
		WHERE cash_register_id = $1
		ORDER BY opened_at DESC, id DESC
		LIMIT $2 OFFSET $3`, registerID, limitArg(limit), offset)
}

// ListClosed lists closed sessions by id.
func (r *CashSessionRepository) ListClosed(ctx context.Context, limit, offset int) ([]*domain.CashSession, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM cash_sessions
		WHERE status = $1
		ORDER BY id
		LIMIT $2 OFFSET $3`, string(domain.SessionClosed), limitArg(limit), offset)
}

func (r *CashSessionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.CashSession, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*domain.CashSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// sessionWriteError maps a violation of the one-open-session index.
func sessionWriteError(err error, s *domain.CashSession) error {
	if err == nil {
		return nil
	}
	if code, constraint := pgErrorCode(err); code == pgErrUniqueViolation && constraint == openSessionIndex {
		return &domain.SessionError{Kind: domain.ErrSessionAlreadyOpen, RegisterID: s.CashRegisterID}
	}
	return err
}

func scanSessionRow(row pgx.Row) (*domain.CashSession, error) {
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	return s, err
}

func scanSession(row pgx.Row) (*domain.CashSession, error) {
	var (
		s                           domain.CashSession
		opening                     decimal.Decimal
		status                      string
		counted, expected, variance decimal.NullDecimal
		reopenCount                 int32
	)
	err := row.Scan(
		&s.ID,
		&s.CashRegisterID,
		&s.OpenedBy,
		&opening,
		&s.OpenedAt,
		&status,
		&s.ClosedBy,
		&counted,
		&expected,
		&variance,
		&s.ClosedAt,
		&reopenCount,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.OpeningAmount = toMoney(opening)
	s.Status = domain.SessionStatus(status)
	s.ClosingCountedAmount = toMoneyPtr(counted)
	s.ClosingExpectedAmount = toMoneyPtr(expected)
	s.ClosingVariance = toMoneyPtr(variance)
	s.ReopenCount = int(reopenCount)
	return &s, nil
}

// limitArg turns a non-positive limit into NULL, which LIMIT reads as no
// limit.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

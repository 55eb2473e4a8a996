package postgres

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

const entryColumns = `id, session_id, seq, type, amount, reference, created_by, created_at`

// CashEntryRepository implements usecase.CashEntryRepository over the
// append-only cash_entries table.
type CashEntryRepository struct {
	db DB
}

// NewCashEntryRepository creates a new CashEntryRepository.
func NewCashEntryRepository(db DB) *CashEntryRepository {
	return &CashEntryRepository{db: db}
}

// Append inserts entry and takes its sequence number from the table.
func (r *CashEntryRepository) Append(ctx context.Context, tx usecase.Transaction, entry *domain.CashEntry) error {
	ptx, err := pgxTx(tx)
	if err != nil {
		return err
	}

	err = ptx.QueryRow(ctx, `
		INSERT INTO cash_entries (id, session_id, type, amount, reference, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		entry.ID,
		entry.SessionID,
		string(entry.Type),
		moneyArg(entry.Amount),
		entry.Reference,
		entry.CreatedBy,
		entry.CreatedAt,
	).Scan(&entry.Seq)
	if code, _ := pgErrorCode(err); code == pgErrForeignKeyViolation {
		return domain.ErrSessionNotFound
	}
	return err
}

// ListBySession returns the entries of a session in insertion order.
func (r *CashEntryRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.CashEntry, error) {
	return listEntries(ctx, r.db, sessionID)
}

func (r *CashEntryRepository) ListBySessionTx(ctx context.Context, tx usecase.Transaction, sessionID string) ([]*domain.CashEntry, error) {
	ptx, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return listEntries(ctx, ptx, sessionID)
}

func listEntries(ctx context.Context, q DB, sessionID string) ([]*domain.CashEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT `+entryColumns+` FROM cash_entries
		WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.CashEntry, 0)
	for rows.Next() {
		var (
			e      domain.CashEntry
			typ    string
			amount decimal.Decimal
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &typ, &amount, &e.Reference, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		t, err := domain.ParseEntryType(typ)
		if err != nil {
			return nil, err
		}
		e.Type = t
		e.Amount = toMoney(amount)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

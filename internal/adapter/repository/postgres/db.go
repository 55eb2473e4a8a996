package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// PostgreSQL error codes mapped to domain errors.
const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"

	openSessionIndex = "cash_sessions_one_open_per_register"
)

// DB is the part of *pgxpool.Pool the repositories use outside a
// transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// NewStores wires the postgres repositories into the use case ports.
func NewStores(pool *pgxpool.Pool, ids usecase.IDGenerator, retrier usecase.Retrier) usecase.Stores {
	return usecase.Stores{
		Tx:       NewTxManager(pool),
		Sales:    NewSaleRepository(pool),
		Payments: NewPaymentRepository(pool),
		Sessions: NewCashSessionRepository(pool),
		Entries:  NewCashEntryRepository(pool),
		Outbox:   NewOutboxRepository(pool),
		Audit:    NewAuditRepository(pool),
		IDs:      ids,
		Retrier:  retrier,
	}
}

// pgxTx unwraps a transaction started by TxManager.
func pgxTx(tx usecase.Transaction) (pgx.Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("postgres: transaction %T was not started by this adapter", tx)
	}
	return t.PgxTx(), nil
}

func pgErrorCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pgErrorCode(err)
	return code == pgErrUniqueViolation
}

// prefixed qualifies every column of a column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// Type conversion helpers.
func toMoney(d decimal.Decimal) domain.Money {
	return domain.RoundedMoney(d)
}

func toMoneyPtr(d decimal.NullDecimal) *domain.Money {
	if !d.Valid {
		return nil
	}
	m := domain.RoundedMoney(d.Decimal)
	return &m
}

func moneyArg(m domain.Money) string {
	return m.String()
}

func moneyPtrArg(m *domain.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}

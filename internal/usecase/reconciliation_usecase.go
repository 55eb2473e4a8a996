package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/storeledger/internal/domain"
)

const consistencyPageSize = 500

// ReconciliationUseCase recomputes derived ledger figures from their
// sources and reports where the stored values drifted.
type ReconciliationUseCase struct {
	txManager   TransactionManager
	saleRepo    SaleRepository
	paymentRepo PaymentRepository
	sessionRepo CashSessionRepository
	entryRepo   CashEntryRepository
	clock       Clock
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	txManager TransactionManager,
	saleRepo SaleRepository,
	paymentRepo PaymentRepository,
	sessionRepo CashSessionRepository,
	entryRepo CashEntryRepository,
	clock Clock,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		txManager:   txManager,
		saleRepo:    saleRepo,
		paymentRepo: paymentRepo,
		sessionRepo: sessionRepo,
		entryRepo:   entryRepo,
		clock:       clock,
	}
}

// BalanceDiscrepancy is a sale whose cached remaining balance differs from
// the sum of its unpaid installments.
type BalanceDiscrepancy struct {
	SaleID     string       `json:"sale_id"`
	Recorded   domain.Money `json:"recorded"`
	Calculated domain.Money `json:"calculated"`
	Difference domain.Money `json:"difference"`
}

// SessionCheck is the recomputed expected amount of a session.
type SessionCheck struct {
	SessionID  string        `json:"session_id"`
	Status     string        `json:"status"`
	Recorded   *domain.Money `json:"recorded,omitempty"`
	Calculated domain.Money  `json:"calculated"`
	Consistent bool          `json:"consistent"`
}

// ConsistencyReport collects every discrepancy found in one pass.
type ConsistencyReport struct {
	CheckedSales         int                   `json:"checked_sales"`
	SaleDiscrepancies    []*BalanceDiscrepancy `json:"sale_discrepancies"`
	CheckedSessions      int                   `json:"checked_sessions"`
	SessionDiscrepancies []*SessionCheck       `json:"session_discrepancies"`
	Consistent           bool                  `json:"consistent"`
	CheckedAt            time.Time             `json:"checked_at"`
}

// CheckSaleBalances compares every active sale's remaining balance with its
// unpaid installments.
func (uc *ReconciliationUseCase) CheckSaleBalances(ctx context.Context) (int, []*BalanceDiscrepancy, error) {
	checked := 0
	discrepancies := make([]*BalanceDiscrepancy, 0)

	afterID := ""
	for {
		ids, err := uc.saleRepo.ListActiveIDs(ctx, afterID, consistencyPageSize)
		if err != nil {
			return checked, nil, err
		}

		for _, id := range ids {
			d, err := uc.checkSale(ctx, id)
			if err != nil {
				return checked, nil, fmt.Errorf("failed to check sale %s: %w", id, err)
			}
			checked++
			if d != nil {
				discrepancies = append(discrepancies, d)
			}
		}

		if len(ids) < consistencyPageSize {
			break
		}
		afterID = ids[len(ids)-1]
	}

	return checked, discrepancies, nil
}

// checkSale reads the sale and its installments under the sale's row lock,
// which every balance-changing write also takes, so both reads see the same
// committed state.
func (uc *ReconciliationUseCase) checkSale(ctx context.Context, saleID string) (*BalanceDiscrepancy, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	sale, err := uc.saleRepo.GetByIDForUpdate(txCtx, tx, saleID)
	if err != nil {
		return nil, err
	}
	payments, err := uc.paymentRepo.ListBySaleTx(txCtx, tx, saleID)
	if err != nil {
		return nil, err
	}

	unpaid := domain.OutstandingBalance(payments)
	if sale.VerifyBalance(unpaid) == nil {
		return nil, nil
	}
	return &BalanceDiscrepancy{
		SaleID:     saleID,
		Recorded:   sale.RemainingBalance,
		Calculated: unpaid,
		Difference: sale.RemainingBalance.Sub(unpaid),
	}, nil
}

// CheckSession recomputes a session's expected amount from its entries and
// compares it with the stored closing figure.
func (uc *ReconciliationUseCase) CheckSession(ctx context.Context, sessionID string) (*SessionCheck, error) {
	session, err := uc.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return uc.checkSession(ctx, session)
}

func (uc *ReconciliationUseCase) checkSession(ctx context.Context, session *domain.CashSession) (*SessionCheck, error) {
	entries, err := uc.entryRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	calculated, err := domain.ExpectedClosing(session.OpeningAmount, entries)
	if err != nil {
		return &SessionCheck{SessionID: session.ID, Status: string(session.Status), Recorded: session.ClosingExpectedAmount}, nil
	}
	return &SessionCheck{
		SessionID:  session.ID,
		Status:     string(session.Status),
		Recorded:   session.ClosingExpectedAmount,
		Calculated: calculated,
		Consistent: session.VerifyClosing(entries) == nil,
	}, nil
}

// CheckClosedSessions verifies every closed session.
func (uc *ReconciliationUseCase) CheckClosedSessions(ctx context.Context) (int, []*SessionCheck, error) {
	checked := 0
	discrepancies := make([]*SessionCheck, 0)

	for offset := 0; ; offset += consistencyPageSize {
		sessions, err := uc.sessionRepo.ListClosed(ctx, consistencyPageSize, offset)
		if err != nil {
			return checked, nil, err
		}

		for _, s := range sessions {
			check, err := uc.checkSession(ctx, s)
			if err != nil {
				return checked, nil, fmt.Errorf("failed to check session %s: %w", s.ID, err)
			}
			checked++
			if !check.Consistent {
				discrepancies = append(discrepancies, check)
			}
		}

		if len(sessions) < consistencyPageSize {
			break
		}
	}

	return checked, discrepancies, nil
}

// CheckConsistency runs every check and builds one report.
func (uc *ReconciliationUseCase) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	checkedSales, saleDiscrepancies, err := uc.CheckSaleBalances(ctx)
	if err != nil {
		return nil, err
	}
	checkedSessions, sessionDiscrepancies, err := uc.CheckClosedSessions(ctx)
	if err != nil {
		return nil, err
	}

	return &ConsistencyReport{
		CheckedSales:         checkedSales,
		SaleDiscrepancies:    saleDiscrepancies,
		CheckedSessions:      checkedSessions,
		SessionDiscrepancies: sessionDiscrepancies,
		Consistent:           len(saleDiscrepancies) == 0 && len(sessionDiscrepancies) == 0,
		CheckedAt:            uc.clock.Now(),
	}, nil
}

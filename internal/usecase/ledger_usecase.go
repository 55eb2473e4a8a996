package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/metrics"
)

// LedgerConfig holds the ledger policy switches.
type LedgerConfig struct {
	// AllowPartialPayments lets a collection settle less than the
	// installment amount, leaving a residual installment for the rest.
	AllowPartialPayments bool
}

// LedgerUseCase owns sales' installments: it schedules them, collects and
// reverses them, and keeps each sale's remaining balance in step.
type LedgerUseCase struct {
	stores  Stores
	clock   Clock
	cfg     LedgerConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	stores Stores,
	clock Clock,
	cfg LedgerConfig,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *LedgerUseCase {
	return &LedgerUseCase{
		stores:  stores,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With().Str("component", "ledger").Logger(),
		metrics: metrics,
	}
}

// RegisterCreditSaleInput represents a finalized credit sale.
type RegisterCreditSaleInput struct {
	SaleID               string
	CustomerID           string
	Total                domain.Money
	InitialPayment       domain.Money
	InitialPaymentMethod *domain.PaymentMethod
	InstallmentsCount    int
	CreditDays           int
	// StartDate is a calendar date; only its year, month and day are read.
	StartDate            *time.Time
	CashRegisterID       string
	Actor                string
}

// RegisterCreditSale schedules the installments of a credit sale and
// stores the sale with them atomically.
func (uc *LedgerUseCase) RegisterCreditSale(ctx context.Context, input RegisterCreditSaleInput) (*domain.Sale, []*domain.Payment, error) {
	if input.InitialPayment.IsPositive() {
		if input.InitialPaymentMethod == nil {
			return nil, nil, fmt.Errorf("%w: initial payment requires a payment method", domain.ErrInvalidPaymentMethod)
		}
		if err := domain.ValidateMethod(*input.InitialPaymentMethod); err != nil {
			return nil, nil, err
		}
	}

	now := uc.clock.Now()
	start := now
	if input.StartDate != nil {
		y, m, d := input.StartDate.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}

	schedule, err := domain.Schedule(input.Total, input.InitialPayment, input.InstallmentsCount, input.CreditDays, start)
	if err != nil {
		return nil, nil, err
	}

	saleID := input.SaleID
	if saleID == "" {
		saleID = uc.stores.IDs.Generate()
	}
	actor := actorOrSystem(input.Actor)

	var (
		sale     *domain.Sale
		payments []*domain.Payment
	)
	err = uc.stores.retrier().Retry(ctx, func() error {
		sale = &domain.Sale{
			ID:                   saleID,
			CustomerID:           input.CustomerID,
			CashRegisterID:       input.CashRegisterID,
			PaymentType:          domain.PaymentTypeCredit,
			Total:                input.Total,
			InitialPayment:       input.InitialPayment,
			InitialPaymentMethod: input.InitialPaymentMethod,
			CreditDays:           input.CreditDays,
			InstallmentsCount:    input.InstallmentsCount,
			RemainingBalance:     input.Total.Sub(input.InitialPayment),
			AmountPaid:           input.InitialPayment,
			ChangeAmount:         domain.ZeroMoney,
			Status:               domain.SaleActive,
			CreatedBy:            actor,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		payments = make([]*domain.Payment, len(schedule))
		for i, item := range schedule {
			payments[i] = &domain.Payment{
				ID:            uc.stores.IDs.Generate(),
				SaleID:        saleID,
				PaymentNumber: item.Number,
				Amount:        item.Amount,
				DueDate:       item.DueDate,
				Status:        domain.PaymentPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
		}
		return uc.registerCreditSale(ctx, sale, payments, actor, now)
	})
	if err != nil {
		uc.observeError("register_credit_sale", err)
		return nil, nil, err
	}

	if uc.metrics != nil {
		uc.metrics.SalesRegistered.WithLabelValues(string(domain.PaymentTypeCredit)).Inc()
	}
	return sale, payments, nil
}

func (uc *LedgerUseCase) registerCreditSale(ctx context.Context, sale *domain.Sale, payments []*domain.Payment, actor string, now time.Time) error {
	if err := sale.VerifySchedule(payments); err != nil {
		return err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.stores.Tx.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.stores.Sales.Create(txCtx, tx, sale); err != nil {
		return err
	}
	if err := uc.stores.Payments.CreateBatch(txCtx, tx, payments); err != nil {
		return err
	}

	unpaid, err := uc.stores.Payments.SumOutstanding(txCtx, tx, sale.ID)
	if err != nil {
		return err
	}
	if err := sale.VerifyBalance(unpaid); err != nil {
		return err
	}

	if sale.InitialPayment.IsPositive() && sale.InitialPaymentMethod.IsCash() {
		if _, err := uc.postToDrawer(txCtx, tx, nil, sale.CashRegisterID, domain.EntrySaleSettlement,
			sale.InitialPayment, "sale:"+sale.ID, actor, now); err != nil {
			return err
		}
	}

	err = uc.stores.record(txCtx, tx, change{
		aggregateType: domain.AggregateTypeSale,
		aggregateID:   sale.ID,
		eventType:     domain.EventTypeSaleRegistered,
		payload: domain.SaleRegisteredEvent{
			SaleID:            sale.ID,
			CustomerID:        sale.CustomerID,
			PaymentType:       string(sale.PaymentType),
			Total:             sale.Total.String(),
			InitialPayment:    sale.InitialPayment.String(),
			InstallmentsCount: sale.InstallmentsCount,
			RemainingBalance:  sale.RemainingBalance.String(),
		},
		action: domain.AuditActionSaleRegister,
		actor:  actor,
		after:  map[string]any{"sale": sale, "payments": payments},
		at:     now,
	})
	if err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// SettleCashSaleInput represents a sale paid in full at the counter.
type SettleCashSaleInput struct {
	SaleID         string
	CustomerID     string
	Total          domain.Money
	AmountTendered domain.Money
	Method         domain.PaymentMethod
	CashRegisterID string
	Actor          string
}

// SettleCashSale records a fully paid sale. Only the total enters the
// drawer; the change is handed back.
func (uc *LedgerUseCase) SettleCashSale(ctx context.Context, input SettleCashSaleInput) (*domain.Sale, error) {
	if err := domain.ValidateAmount(input.Total); err != nil {
		return nil, err
	}
	if err := domain.ValidateMethod(input.Method); err != nil {
		return nil, err
	}
	tendered := input.AmountTendered
	if tendered.IsZero() {
		tendered = input.Total
	}
	if tendered.LessThan(input.Total) {
		return nil, &domain.PaymentError{
			Kind:     domain.ErrAmountMismatch,
			SaleID:   input.SaleID,
			Expected: input.Total.String(),
			Got:      tendered.String(),
			Detail:   "tendered amount is below the sale total",
		}
	}

	now := uc.clock.Now()
	saleID := input.SaleID
	if saleID == "" {
		saleID = uc.stores.IDs.Generate()
	}
	actor := actorOrSystem(input.Actor)
	method := input.Method

	var sale *domain.Sale
	err := uc.stores.retrier().Retry(ctx, func() error {
		sale = &domain.Sale{
			ID:                   saleID,
			CustomerID:           input.CustomerID,
			CashRegisterID:       input.CashRegisterID,
			PaymentType:          domain.PaymentTypeCash,
			Total:                input.Total,
			InitialPayment:       input.Total,
			InitialPaymentMethod: &method,
			RemainingBalance:     domain.ZeroMoney,
			AmountPaid:           input.Total,
			ChangeAmount:         tendered.Sub(input.Total),
			Status:               domain.SaleActive,
			CreatedBy:            actor,
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.stores.Tx.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := uc.stores.Sales.Create(txCtx, tx, sale); err != nil {
			return err
		}
		if method.IsCash() {
			if _, err := uc.postToDrawer(txCtx, tx, nil, sale.CashRegisterID, domain.EntrySaleSettlement,
				sale.Total, "sale:"+sale.ID, actor, now); err != nil {
				return err
			}
		}

		err = uc.stores.record(txCtx, tx, change{
			aggregateType: domain.AggregateTypeSale,
			aggregateID:   sale.ID,
			eventType:     domain.EventTypeSaleSettled,
			payload: domain.SaleRegisteredEvent{
				SaleID:           sale.ID,
				CustomerID:       sale.CustomerID,
				PaymentType:      string(sale.PaymentType),
				Total:            sale.Total.String(),
				InitialPayment:   sale.InitialPayment.String(),
				RemainingBalance: sale.RemainingBalance.String(),
			},
			action: domain.AuditActionSaleSettle,
			actor:  actor,
			after:  sale,
			at:     now,
		})
		if err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		uc.observeError("settle_cash_sale", err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.SalesRegistered.WithLabelValues(string(domain.PaymentTypeCash)).Inc()
	}
	return sale, nil
}

// ApplyPaymentInput represents one installment collection.
type ApplyPaymentInput struct {
	PaymentID      string
	AmountPaid     domain.Money
	Method         domain.PaymentMethod
	Reference      *string
	Notes          *string
	CashRegisterID string
	Actor          string
}

// ApplyPayment settles one installment. Repeating a settled collection
// with the same amount and reference returns the stored receipt.
func (uc *LedgerUseCase) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*domain.Receipt, error) {
	receipts, err := uc.applyPayments(ctx, []BatchItem{{PaymentID: input.PaymentID, AmountPaid: input.AmountPaid}}, batchTerms{
		method:     input.Method,
		reference:  input.Reference,
		notes:      input.Notes,
		registerID: input.CashRegisterID,
		actor:      input.Actor,
	}, false)
	if err != nil {
		uc.observeError("apply_payment", err)
		return nil, err
	}
	return receipts[0], nil
}

// BatchItem is one installment of a pay-multiple request.
type BatchItem struct {
	PaymentID  string
	AmountPaid domain.Money
}

// ApplyPaymentsBatchInput represents a pay-multiple request. All items
// share the payment method and reference.
type ApplyPaymentsBatchInput struct {
	Items          []BatchItem
	Method         domain.PaymentMethod
	Reference      *string
	Notes          *string
	CashRegisterID string
	Actor          string
}

// ApplyPaymentsBatch settles several installments in one transaction. If
// any item fails nothing is committed and the error is a *domain.BatchError
// naming the item.
func (uc *LedgerUseCase) ApplyPaymentsBatch(ctx context.Context, input ApplyPaymentsBatchInput) ([]*domain.Receipt, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: batch has no installments", domain.ErrInvalidInput)
	}
	if len(input.Items) > MaxBatchPayments {
		return nil, fmt.Errorf("%w: batch exceeds %d installments", domain.ErrInvalidInput, MaxBatchPayments)
	}

	receipts, err := uc.applyPayments(ctx, input.Items, batchTerms{
		method:     input.Method,
		reference:  input.Reference,
		notes:      input.Notes,
		registerID: input.CashRegisterID,
		actor:      input.Actor,
	}, true)
	if err != nil {
		uc.observeError("apply_payments_batch", err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.BatchSize.Observe(float64(len(input.Items)))
	}
	return receipts, nil
}

type batchTerms struct {
	method     domain.PaymentMethod
	reference  *string
	notes      *string
	registerID string
	actor      string
}

// itemError attributes err to item i when running a batch.
func itemError(batch bool, i int, paymentID string, err error) error {
	if !batch {
		return err
	}
	var invariant *domain.InvariantError
	if errors.As(err, &invariant) {
		return err
	}
	return &domain.BatchError{Index: i, PaymentID: paymentID, Err: err}
}

func (uc *LedgerUseCase) applyPayments(ctx context.Context, items []BatchItem, terms batchTerms, batch bool) ([]*domain.Receipt, error) {
	if err := domain.ValidateMethod(terms.method); err != nil {
		return nil, err
	}
	reference, err := domain.NormalizeReference(terms.reference)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateNotes(terms.notes); err != nil {
		return nil, err
	}
	terms.reference = reference
	terms.actor = actorOrSystem(terms.actor)

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item.PaymentID == "" {
			return nil, itemError(batch, i, item.PaymentID, fmt.Errorf("%w: payment id is required", domain.ErrInvalidInput))
		}
		if seen[item.PaymentID] {
			return nil, itemError(batch, i, item.PaymentID, fmt.Errorf("%w: payment listed twice", domain.ErrInvalidInput))
		}
		seen[item.PaymentID] = true
		if err := domain.ValidateAmount(item.AmountPaid); err != nil {
			return nil, itemError(batch, i, item.PaymentID, err)
		}
	}

	// Installments never move between sales, so the owning sale can be
	// resolved before locking.
	saleOf := make(map[string]string, len(items))
	for i, item := range items {
		p, err := uc.stores.Payments.GetByID(ctx, item.PaymentID)
		if err != nil {
			return nil, itemError(batch, i, item.PaymentID, err)
		}
		saleOf[item.PaymentID] = p.SaleID
	}

	var (
		receipts []*domain.Receipt
		replayed int
	)
	err = uc.stores.retrier().Retry(ctx, func() error {
		var err error
		receipts, replayed, err = uc.applyPaymentsTx(ctx, items, saleOf, terms, batch)
		return err
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PaymentsReplayed.Add(float64(replayed))
		if applied := len(items) - replayed; applied > 0 {
			uc.metrics.PaymentsApplied.WithLabelValues(string(terms.method)).Add(float64(applied))
			for _, r := range receipts {
				uc.metrics.PaymentAmount.Observe(r.AmountPaid.Decimal().InexactFloat64())
			}
		}
	}
	return receipts, nil
}

func (uc *LedgerUseCase) applyPaymentsTx(
	ctx context.Context,
	items []BatchItem,
	saleOf map[string]string,
	terms batchTerms,
	batch bool,
) ([]*domain.Receipt, int, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.stores.Tx.Begin(txCtx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// Lock order: sales by id, then their installments by id, then the
	// drawer session.
	saleIDs := uniqueSorted(saleOf)
	sales, err := uc.stores.Sales.GetByIDsForUpdate(txCtx, tx, saleIDs)
	if err != nil {
		return nil, 0, err
	}
	saleByID := make(map[string]*domain.Sale, len(sales))
	for _, s := range sales {
		saleByID[s.ID] = s
	}
	for i, item := range items {
		if saleByID[saleOf[item.PaymentID]] == nil {
			return nil, 0, itemError(batch, i, item.PaymentID, fmt.Errorf("%w: %s", domain.ErrSaleNotFound, saleOf[item.PaymentID]))
		}
	}

	paymentIDs := make([]string, 0, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		paymentIDs = append(paymentIDs, item.PaymentID)
		index[item.PaymentID] = i
	}
	sort.Strings(paymentIDs)
	locked := make(map[string]*domain.Payment, len(items))
	for _, id := range paymentIDs {
		p, err := uc.stores.Payments.GetByIDForUpdate(txCtx, tx, id)
		if err != nil {
			return nil, 0, itemError(batch, index[id], id, err)
		}
		locked[id] = p
	}

	now := uc.clock.Now()
	sessions := make(map[string]*domain.CashSession)
	receipts := make([]*domain.Receipt, len(items))
	replayed := 0
	touched := make(map[string]*domain.Sale)

	for i, item := range items {
		p := locked[item.PaymentID]
		sale := saleByID[p.SaleID]

		receipt, replay, err := uc.applyOne(txCtx, tx, sale, p, item.AmountPaid, terms, sessions, now)
		if err != nil {
			return nil, 0, itemError(batch, i, item.PaymentID, err)
		}
		receipts[i] = receipt
		if replay {
			replayed++
			continue
		}
		touched[sale.ID] = sale
	}

	if len(touched) == 0 {
		return receipts, replayed, nil
	}

	for _, id := range saleIDs {
		sale, ok := touched[id]
		if !ok {
			continue
		}
		if err := uc.verifyBalance(txCtx, tx, sale); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, 0, err
	}
	return receipts, replayed, nil
}

// applyOne settles p under the locks already held by tx. It reports
// whether the request was a replay of an earlier identical collection.
func (uc *LedgerUseCase) applyOne(
	ctx context.Context,
	tx Transaction,
	sale *domain.Sale,
	p *domain.Payment,
	amount domain.Money,
	terms batchTerms,
	sessions map[string]*domain.CashSession,
	now time.Time,
) (*domain.Receipt, bool, error) {
	if err := sale.EnsureCollectable(); err != nil {
		return nil, false, err
	}

	switch p.Status {
	case domain.PaymentPaid:
		if p.SameCollection(amount, terms.reference) {
			receipt, err := p.Receipt()
			return receipt, true, err
		}
		return nil, false, domain.AlreadyPaidError(p, "settled with a different amount or reference")
	case domain.PaymentPending, domain.PaymentOverdue:
	default:
		return nil, false, fmt.Errorf("payment %s has unknown status %q", p.ID, p.Status)
	}

	var shortfall domain.Money
	switch amount.Cmp(p.Amount) {
	case 0:
	case 1:
		return nil, false, domain.AmountMismatchError(p, amount)
	default:
		if !uc.cfg.AllowPartialPayments {
			return nil, false, domain.AmountMismatchError(p, amount)
		}
		shortfall = p.Amount.Sub(amount)
	}

	before := *p
	remaining := sale.RemainingBalance.Sub(p.Amount).Add(shortfall)

	var residual *domain.Payment
	if shortfall.IsPositive() {
		siblings, err := uc.stores.Payments.ListBySaleTx(ctx, tx, sale.ID)
		if err != nil {
			return nil, false, err
		}
		next := 0
		for _, s := range siblings {
			if s.PaymentNumber > next {
				next = s.PaymentNumber
			}
		}
		parentID := p.ID
		residual = &domain.Payment{
			ID:              uc.stores.IDs.Generate(),
			SaleID:          sale.ID,
			ParentPaymentID: &parentID,
			PaymentNumber:   next + 1,
			Amount:          shortfall,
			DueDate:         p.DueDate,
			Status:          p.Status,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	if terms.method.IsCash() {
		entry, err := uc.postToDrawer(ctx, tx, sessions, terms.registerID, domain.EntryInstallmentCollection,
			amount, "payment:"+p.ID, terms.actor, now)
		if err != nil {
			return nil, false, err
		}
		if entry != nil {
			entryID, sessionID := entry.ID, entry.SessionID
			p.CashEntryID = &entryID
			p.CashSessionID = &sessionID
		}
	}

	err := p.Settle(domain.Settlement{
		Amount:       amount,
		Method:       terms.method,
		Reference:    terms.reference,
		Notes:        terms.notes,
		Actor:        terms.actor,
		PaidAt:       now,
		BalanceAfter: remaining,
	})
	if err != nil {
		return nil, false, err
	}
	if err := uc.stores.Payments.Update(ctx, tx, p); err != nil {
		return nil, false, err
	}
	if residual != nil {
		if err := uc.stores.Payments.CreateBatch(ctx, tx, []*domain.Payment{residual}); err != nil {
			return nil, false, err
		}
	}

	sale.ApplyCollection(amount, remaining, now)
	if err := uc.stores.Sales.Update(ctx, tx, sale); err != nil {
		return nil, false, err
	}

	event := domain.PaymentAppliedEvent{
		PaymentID:        p.ID,
		SaleID:           sale.ID,
		PaymentNumber:    p.PaymentNumber,
		AmountPaid:       amount.String(),
		Method:           string(terms.method),
		RemainingBalance: remaining.String(),
		CashEntryID:      p.CashEntryID,
	}
	if residual != nil {
		event.ResidualID = &residual.ID
	}
	err = uc.stores.record(ctx, tx, change{
		aggregateType: domain.AggregateTypePayment,
		aggregateID:   p.ID,
		eventType:     domain.EventTypePaymentApplied,
		payload:       event,
		action:        domain.AuditActionPaymentApply,
		actor:         terms.actor,
		before:        before,
		after:         p,
		at:            now,
	})
	if err != nil {
		return nil, false, err
	}

	receipt, err := p.Receipt()
	return receipt, false, err
}

// VoidPayment reverses a collection. A cash collection is reversed in its
// drawer with a compensating entry, which requires that session to still
// be open.
func (uc *LedgerUseCase) VoidPayment(ctx context.Context, paymentID, actor string) (*domain.Payment, error) {
	current, err := uc.stores.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	actor = actorOrSystem(actor)

	var voided *domain.Payment
	err = uc.stores.retrier().Retry(ctx, func() error {
		var err error
		voided, err = uc.voidPayment(ctx, current.SaleID, paymentID, actor)
		return err
	})
	if err != nil {
		uc.observeError("void_payment", err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PaymentsVoided.Inc()
	}
	return voided, nil
}

func (uc *LedgerUseCase) voidPayment(ctx context.Context, saleID, paymentID, actor string) (*domain.Payment, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.stores.Tx.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	sale, err := uc.stores.Sales.GetByIDForUpdate(txCtx, tx, saleID)
	if err != nil {
		return nil, err
	}
	p, err := uc.stores.Payments.GetByIDForUpdate(txCtx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := sale.EnsureCollectable(); err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentPaid {
		return nil, &domain.PaymentError{Kind: domain.ErrPaymentNotPaid, PaymentID: p.ID, SaleID: sale.ID}
	}

	hasResidual, err := uc.stores.Payments.HasResidual(txCtx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if hasResidual {
		return nil, &domain.PaymentError{Kind: domain.ErrPaymentHasResidual, PaymentID: p.ID, SaleID: sale.ID}
	}

	now := uc.clock.Now()
	before := *p
	paid := *p.PaidAmount

	var reversal *domain.CashEntry
	if p.CashEntryID != nil && p.CashSessionID != nil {
		session, err := uc.stores.Sessions.GetByIDForUpdate(txCtx, tx, *p.CashSessionID)
		if err != nil {
			return nil, err
		}
		if !session.IsOpen() {
			return nil, &domain.SessionError{Kind: domain.ErrSessionClosed, SessionID: session.ID, RegisterID: session.CashRegisterID}
		}
		reversal, err = uc.stores.appendEntry(txCtx, tx, session, domain.EntryCollectionReversal, paid, "payment:"+p.ID, actor, now)
		if err != nil {
			return nil, err
		}
	}

	if err := p.Unsettle(now, actor); err != nil {
		return nil, err
	}
	if err := uc.stores.Payments.Update(txCtx, tx, p); err != nil {
		return nil, err
	}

	sale.RevertCollection(paid, sale.RemainingBalance.Add(p.Amount), now)
	if err := uc.stores.Sales.Update(txCtx, tx, sale); err != nil {
		return nil, err
	}
	if err := uc.verifyBalance(txCtx, tx, sale); err != nil {
		return nil, err
	}

	event := domain.PaymentVoidedEvent{
		PaymentID:        p.ID,
		SaleID:           sale.ID,
		Status:           string(p.Status),
		RemainingBalance: sale.RemainingBalance.String(),
	}
	if reversal != nil {
		event.ReversalEntryID = &reversal.ID
	}
	err = uc.stores.record(txCtx, tx, change{
		aggregateType: domain.AggregateTypePayment,
		aggregateID:   p.ID,
		eventType:     domain.EventTypePaymentVoided,
		payload:       event,
		action:        domain.AuditActionPaymentVoid,
		actor:         actor,
		before:        before,
		after:         p,
		at:            now,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	return p, nil
}

// VoidSale cancels a credit sale whose installments are all unpaid.
func (uc *LedgerUseCase) VoidSale(ctx context.Context, saleID, actor string) (*domain.Sale, error) {
	actor = actorOrSystem(actor)

	var sale *domain.Sale
	err := uc.stores.retrier().Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.stores.Tx.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		sale, err = uc.stores.Sales.GetByIDForUpdate(txCtx, tx, saleID)
		if err != nil {
			return err
		}
		if sale.PaymentType != domain.PaymentTypeCredit {
			return fmt.Errorf("%w: %s", domain.ErrSaleNotCredit, sale.ID)
		}
		payments, err := uc.stores.Payments.ListBySaleTx(txCtx, tx, sale.ID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		before := *sale
		if err := sale.Void(payments, now); err != nil {
			return err
		}
		if err := uc.stores.Sales.Update(txCtx, tx, sale); err != nil {
			return err
		}

		err = uc.stores.record(txCtx, tx, change{
			aggregateType: domain.AggregateTypeSale,
			aggregateID:   sale.ID,
			eventType:     domain.EventTypeSaleVoided,
			payload:       domain.SaleVoidedEvent{SaleID: sale.ID, VoidedBy: actor},
			action:        domain.AuditActionSaleVoid,
			actor:         actor,
			before:        before,
			after:         sale,
			at:            now,
		})
		if err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
	if err != nil {
		uc.observeError("void_sale", err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.SalesVoided.Inc()
	}
	return sale, nil
}

// GetSale retrieves a sale by ID.
func (uc *LedgerUseCase) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return uc.stores.Sales.GetByID(ctx, id)
}

// ListPayments lists the installments of a sale by payment number.
func (uc *LedgerUseCase) ListPayments(ctx context.Context, saleID string) ([]*domain.Payment, error) {
	if _, err := uc.stores.Sales.GetByID(ctx, saleID); err != nil {
		return nil, err
	}
	return uc.stores.Payments.ListBySale(ctx, saleID)
}

// GetPayment retrieves an installment by ID.
func (uc *LedgerUseCase) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return uc.stores.Payments.GetByID(ctx, id)
}

// GetReceipt rebuilds the receipt of a settled installment.
func (uc *LedgerUseCase) GetReceipt(ctx context.Context, paymentID string) (*domain.Receipt, error) {
	p, err := uc.stores.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return p.Receipt()
}

// postToDrawer appends a cash entry to the open session of registerID.
// Without a register or an open session the movement is only logged.
// sessions caches sessions already locked by tx.
func (uc *LedgerUseCase) postToDrawer(
	ctx context.Context,
	tx Transaction,
	sessions map[string]*domain.CashSession,
	registerID string,
	typ domain.EntryType,
	amount domain.Money,
	reference, actor string,
	at time.Time,
) (*domain.CashEntry, error) {
	if registerID == "" {
		uc.logger.Warn().Str("reference", reference).Str("amount", amount.String()).
			Msg("cash movement without a register, not posted to a drawer")
		return nil, nil
	}

	session := sessions[registerID]
	if session == nil {
		var err error
		session, err = uc.stores.Sessions.GetOpenByRegisterForUpdate(ctx, tx, registerID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			uc.logger.Warn().Str("cash_register_id", registerID).Str("reference", reference).
				Str("amount", amount.String()).Msg("no open cash session, movement not posted to a drawer")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if sessions != nil {
			sessions[registerID] = session
		}
	}

	return uc.stores.appendEntry(ctx, tx, session, typ, amount, reference, actor, at)
}

// verifyBalance compares the cached remaining balance with the stored
// installments before commit.
func (uc *LedgerUseCase) verifyBalance(ctx context.Context, tx Transaction, sale *domain.Sale) error {
	unpaid, err := uc.stores.Payments.SumOutstanding(ctx, tx, sale.ID)
	if err != nil {
		return err
	}
	if err := sale.VerifyBalance(unpaid); err != nil {
		uc.logger.Error().Err(err).Str("sale_id", sale.ID).Msg("remaining balance drifted, rolling back")
		return err
	}
	return nil
}

func (uc *LedgerUseCase) observeError(operation string, err error) {
	category := domain.Classify(err)
	if category == domain.CategoryInternal {
		uc.logger.Error().Err(err).Str("operation", operation).Msg("ledger operation failed")
	}
	if uc.metrics == nil {
		return
	}
	uc.metrics.LedgerErrors.WithLabelValues(operation, string(category)).Inc()
	var invariant *domain.InvariantError
	if errors.As(err, &invariant) {
		uc.metrics.InvariantFailures.WithLabelValues(invariant.Invariant).Inc()
	}
}

func uniqueSorted(m map[string]string) []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

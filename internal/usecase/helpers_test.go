package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/adapter/repository/memory"
	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/infrastructure/metrics"
	"github.com/iho/storeledger/internal/usecase"
)

var day0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// advance moves the clock to day0 plus days.
func (c *testClock) advance(days int) {
	c.Set(day0.AddDate(0, 0, days))
}

// seqIDs hands out ids that sort in creation order.
type seqIDs struct {
	n atomic.Int64
}

func (g *seqIDs) Generate() string {
	return fmt.Sprintf("id-%08d", g.n.Add(1))
}

type harness struct {
	store    *memory.Store
	stores   usecase.Stores
	clock    *testClock
	metrics  *metrics.Metrics
	ledger   *usecase.LedgerUseCase
	sessions *usecase.CashSessionUseCase
	sweeper  *usecase.SweeperUseCase
	recon    *usecase.ReconciliationUseCase
}

func newHarness(t *testing.T, cfg usecase.LedgerConfig) *harness {
	t.Helper()

	store := memory.NewStore()
	stores := store.Stores(&seqIDs{})
	clock := &testClock{now: day0}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	logger := zerolog.Nop()

	return &harness{
		store:    store,
		stores:   stores,
		clock:    clock,
		metrics:  m,
		ledger:   usecase.NewLedgerUseCase(stores, clock, cfg, logger, m),
		sessions: usecase.NewCashSessionUseCase(stores, clock, domain.DefaultVarianceThresholds, logger, m),
		sweeper:  usecase.NewSweeperUseCase(stores, clock, 0, logger, m),
		recon:    usecase.NewReconciliationUseCase(stores.Tx, stores.Sales, stores.Payments, stores.Sessions, stores.Entries, clock),
	}
}

func money(s string) domain.Money { return domain.MustMoney(s) }

func strPtr(s string) *string { return &s }

func methodPtr(m domain.PaymentMethod) *domain.PaymentMethod { return &m }

// creditSale registers the sale used by most tests: 1000.00 with 100.00
// down, three installments over 60 days.
func (h *harness) creditSale(t *testing.T, registerID string) (*domain.Sale, []*domain.Payment) {
	t.Helper()
	sale, payments, err := h.ledger.RegisterCreditSale(context.Background(), usecase.RegisterCreditSaleInput{
		CustomerID:           "cust-1",
		Total:                money("1000.00"),
		InitialPayment:       money("100.00"),
		InitialPaymentMethod: methodPtr(domain.MethodCash),
		InstallmentsCount:    3,
		CreditDays:           60,
		CashRegisterID:       registerID,
		Actor:                "cashier-1",
	})
	if err != nil {
		t.Fatalf("RegisterCreditSale() error = %v", err)
	}
	return sale, payments
}

func (h *harness) openSession(t *testing.T, registerID, opening string) *domain.CashSession {
	t.Helper()
	s, err := h.sessions.OpenSession(context.Background(), registerID, money(opening), "cashier-1")
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	return s
}

func (h *harness) pay(ctx context.Context, p *domain.Payment, method domain.PaymentMethod, ref *string, registerID string) (*domain.Receipt, error) {
	return h.ledger.ApplyPayment(ctx, usecase.ApplyPaymentInput{
		PaymentID:      p.ID,
		AmountPaid:     p.Amount,
		Method:         method,
		Reference:      ref,
		CashRegisterID: registerID,
		Actor:          "cashier-1",
	})
}

func (h *harness) payment(t *testing.T, id string) *domain.Payment {
	t.Helper()
	p, err := h.ledger.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment(%s) error = %v", id, err)
	}
	return p
}

func (h *harness) sale(t *testing.T, id string) *domain.Sale {
	t.Helper()
	s, err := h.ledger.GetSale(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSale(%s) error = %v", id, err)
	}
	return s
}

func (h *harness) entries(t *testing.T, sessionID string) []*domain.CashEntry {
	t.Helper()
	entries, err := h.sessions.ListSessionEntries(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ListSessionEntries() error = %v", err)
	}
	return entries
}

// assertBalanced checks that the cached remaining balance equals the
// unpaid installments.
func (h *harness) assertBalanced(t *testing.T, saleID string) {
	t.Helper()
	sale := h.sale(t, saleID)
	payments, err := h.ledger.ListPayments(context.Background(), saleID)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if err := sale.VerifyBalance(domain.OutstandingBalance(payments)); err != nil {
		t.Fatalf("sale %s out of balance: %v", saleID, err)
	}
}

func (h *harness) events(t *testing.T, aggregateType, aggregateID, eventType string) int {
	t.Helper()
	events, err := h.stores.Outbox.GetByAggregate(context.Background(), aggregateType, aggregateID, 0, 0)
	if err != nil {
		t.Fatalf("GetByAggregate() error = %v", err)
	}
	n := 0
	for _, e := range events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

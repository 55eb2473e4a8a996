package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/adapter/repository/memory"
	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

func TestSweeperUseCase_Sweep(t *testing.T) {
	h := newHarness(t, usecase.LedgerConfig{})
	sale, payments := h.creditSale(t, "")

	// #1 is collected, #2 falls due before the sweep date, #3 after it
	if _, err := h.pay(context.Background(), payments[0], domain.MethodCard, nil, ""); err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
	asOf := time.Date(2024, 2, 15, 9, 30, 0, 0, time.UTC)
	h.clock.Set(asOf)

	result, err := h.sweeper.SweepToday(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Transitioned != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 1 transition", result)
	}
	if !result.AsOf.Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("as of = %s, want the business date", result.AsOf)
	}

	want := []domain.PaymentStatus{domain.PaymentPaid, domain.PaymentOverdue, domain.PaymentPending}
	for i, p := range payments {
		if got := h.payment(t, p.ID).Status; got != want[i] {
			t.Errorf("installment %d status = %s, want %s", i+1, got, want[i])
		}
	}
	if got := h.sale(t, sale.ID).RemainingBalance.String(); got != "600.00" {
		t.Fatalf("sweep changed remaining balance to %s", got)
	}
	h.assertBalanced(t, sale.ID)

	if n := h.events(t, domain.AggregateTypePayment, payments[1].ID, domain.EventTypePaymentOverdue); n != 1 {
		t.Fatalf("payment.overdue events = %d, want 1", n)
	}
	logs, _ := h.stores.Audit.GetByResourceID(context.Background(), domain.AggregateTypePayment, payments[1].ID)
	if len(logs) != 1 || logs[0].UserID != "system" {
		t.Fatalf("audit logs = %+v, want one system entry", logs)
	}

	again, err := h.sweeper.Sweep(context.Background(), asOf)
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if again.Transitioned != 0 || again.Scanned != 0 {
		t.Fatalf("second sweep = %+v, want no work", again)
	}
	if v := testutil.ToFloat64(h.metrics.SweepRuns); v != 2 {
		t.Fatalf("sweep runs metric = %v, want 2", v)
	}
	if v := testutil.ToFloat64(h.metrics.SweepTransitions); v != 1 {
		t.Fatalf("sweep transitions metric = %v, want 1", v)
	}
}

func TestSweeperUseCase_DueTodayIsNotOverdue(t *testing.T) {
	h := newHarness(t, usecase.LedgerConfig{})
	_, payments := h.creditSale(t, "")

	result, err := h.sweeper.Sweep(context.Background(), payments[0].DueDate.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Transitioned != 0 {
		t.Fatalf("transitioned = %d, want 0", result.Transitioned)
	}
	if got := h.payment(t, payments[0].ID).Status; got != domain.PaymentPending {
		t.Fatalf("status = %s, want pendiente", got)
	}
}

func TestSweeperUseCase_SkipsVoidedSales(t *testing.T) {
	h := newHarness(t, usecase.LedgerConfig{})
	sale, payments := h.creditSale(t, "")
	if _, err := h.ledger.VoidSale(context.Background(), sale.ID, "admin-1"); err != nil {
		t.Fatalf("VoidSale() error = %v", err)
	}

	result, err := h.sweeper.Sweep(context.Background(), day0.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Scanned != 0 {
		t.Fatalf("scanned = %d, want 0", result.Scanned)
	}
	for _, p := range payments {
		if got := h.payment(t, p.ID).Status; got != domain.PaymentPending {
			t.Fatalf("installment of voided sale moved to %s", got)
		}
	}
}

func TestSweeperUseCase_Paging(t *testing.T) {
	h := newHarness(t, usecase.LedgerConfig{})
	for range 3 {
		h.creditSale(t, "")
	}
	sweeper := usecase.NewSweeperUseCase(h.stores, h.clock, 2, zerolog.Nop(), nil)

	result, err := sweeper.Sweep(context.Background(), day0.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Scanned != 9 || result.Transitioned != 9 {
		t.Fatalf("result = %+v, want 9 scanned and transitioned", result)
	}
}

// flakyPayments fails MarkOverdue for a single installment.
type flakyPayments struct {
	*memory.PaymentRepository
	failID string
}

func (f *flakyPayments) MarkOverdue(ctx context.Context, tx usecase.Transaction, id string, asOf, updatedAt time.Time) (bool, error) {
	if id == f.failID {
		return false, errors.New("connection reset")
	}
	return f.PaymentRepository.MarkOverdue(ctx, tx, id, asOf, updatedAt)
}

func TestSweeperUseCase_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t, usecase.LedgerConfig{})
	_, payments := h.creditSale(t, "")

	stores := h.stores
	stores.Payments = &flakyPayments{
		PaymentRepository: memory.NewPaymentRepository(h.store),
		failID:            payments[1].ID,
	}
	sweeper := usecase.NewSweeperUseCase(stores, h.clock, 0, zerolog.Nop(), h.metrics)

	result, err := sweeper.Sweep(context.Background(), day0.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Scanned != 3 || result.Transitioned != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 3 scanned, 2 transitioned, 1 failed", result)
	}
	if got := h.payment(t, payments[1].ID).Status; got != domain.PaymentPending {
		t.Fatalf("failed installment status = %s, want pendiente", got)
	}
	if got := h.payment(t, payments[2].ID).Status; got != domain.PaymentOverdue {
		t.Fatalf("installment after the failure = %s, want vencido", got)
	}
	if v := testutil.ToFloat64(h.metrics.SweepFailures); v != 1 {
		t.Fatalf("sweep failures metric = %v, want 1", v)
	}
}

func TestSweeperUseCase_StopsOnCancel(t *testing.T) {
	h := newHarness(t, usecase.LedgerConfig{})
	_, payments := h.creditSale(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.sweeper.Sweep(ctx, day0.AddDate(1, 0, 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if result == nil || result.Transitioned != 0 {
		t.Fatalf("result = %+v, want an empty partial result", result)
	}
	if got := h.payment(t, payments[0].ID).Status; got != domain.PaymentPending {
		t.Fatalf("status = %s after cancelled sweep", got)
	}
}

package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
	"github.com/iho/storeledger/tests/testutil"
)

func TestCreditSaleLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	app := db.NewApp(usecase.LedgerConfig{})
	ctx := context.Background()

	session, err := app.Sessions.OpenSession(ctx, "caja-it", domain.MustMoney("50.00"), "cashier-it")
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	sale, payments := app.CreditSale(t, "900.00", 3, "caja-it")
	if len(payments) != 3 || sale.RemainingBalance.String() != "900.00" {
		t.Fatalf("unexpected schedule: %d installments, balance %s", len(payments), sale.RemainingBalance)
	}

	receipt, err := app.Ledger.ApplyPayment(ctx, usecase.ApplyPaymentInput{
		PaymentID:      payments[0].ID,
		AmountPaid:     payments[0].Amount,
		Method:         domain.MethodCash,
		CashRegisterID: "caja-it",
		Actor:          "cashier-it",
	})
	if err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
	if receipt.RemainingBalance.String() != "600.00" || receipt.CashEntryID == nil {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	// Past the second due date the sweeper flips the rest of the schedule.
	app.Clock.Set(payments[1].DueDate.AddDate(0, 0, 1))
	result, err := app.Sweeper.SweepToday(ctx)
	if err != nil {
		t.Fatalf("SweepToday() error = %v", err)
	}
	if result.Transitioned != 1 {
		t.Fatalf("expected one overdue transition, got %+v", result)
	}
	second, err := app.Ledger.GetPayment(ctx, payments[1].ID)
	if err != nil || second.Status != domain.PaymentOverdue {
		t.Fatalf("expected overdue installment, got %+v (%v)", second, err)
	}

	if _, err := app.Ledger.VoidPayment(ctx, payments[0].ID, "admin-it"); err != nil {
		t.Fatalf("VoidPayment() error = %v", err)
	}

	report, err := app.Recon.CheckConsistency(ctx)
	if err != nil {
		t.Fatalf("CheckConsistency() error = %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected a consistent ledger, got %+v", report)
	}

	closing, err := app.Sessions.CloseSession(ctx, session.ID, domain.MustMoney("50.00"), "cashier-it")
	if err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if closing.Expected.String() != "50.00" || closing.Classification != domain.VarianceNormal {
		t.Fatalf("collection and reversal should cancel out, got %+v", closing)
	}
}

func TestOneOpenSessionPerRegister(t *testing.T) {
	db := testutil.NewTestDB(t)
	app := db.NewApp(usecase.LedgerConfig{})
	ctx := context.Background()

	if _, err := app.Sessions.OpenSession(ctx, "caja-1", domain.ZeroMoney, "cashier-it"); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	_, err := app.Sessions.OpenSession(ctx, "caja-1", domain.ZeroMoney, "cashier-it")
	if !errors.Is(err, domain.ErrSessionAlreadyOpen) {
		t.Fatalf("expected ErrSessionAlreadyOpen, got %v", err)
	}
}

func TestRegisterCreditSaleRollsBackWithoutSession(t *testing.T) {
	db := testutil.NewTestDB(t)
	app := db.NewApp(usecase.LedgerConfig{})
	ctx := context.Background()

	sale, payments := app.CreditSale(t, "100.00", 1, "")
	app.Clock.Set(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC))

	_, err := app.Ledger.ApplyPayment(ctx, usecase.ApplyPaymentInput{
		PaymentID:  payments[0].ID,
		AmountPaid: domain.MustMoney("99.99"),
		Method:     domain.MethodYape,
		Actor:      "cashier-it",
	})
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	stored, err := app.Ledger.GetSale(ctx, sale.ID)
	if err != nil || stored.RemainingBalance.String() != "100.00" {
		t.Fatalf("balance changed after a rejected payment: %+v (%v)", stored, err)
	}
}

func TestLongestReferenceIsStored(t *testing.T) {
	db := testutil.NewTestDB(t)
	app := db.NewApp(usecase.LedgerConfig{})
	ctx := context.Background()

	_, payments := app.CreditSale(t, "200.00", 2, "")

	ref := strings.Repeat("R", domain.MaxReferenceLength)
	receipt, err := app.Ledger.ApplyPayment(ctx, usecase.ApplyPaymentInput{
		PaymentID:  payments[0].ID,
		AmountPaid: payments[0].Amount,
		Method:     domain.MethodTransfer,
		Reference:  &ref,
		Actor:      "cashier-it",
	})
	if err != nil {
		t.Fatalf("ApplyPayment() with a %d character reference error = %v", len(ref), err)
	}
	if receipt.Reference == nil || *receipt.Reference != ref {
		t.Fatalf("unexpected receipt reference %v", receipt.Reference)
	}

	stored, err := app.Ledger.GetPayment(ctx, payments[0].ID)
	if err != nil {
		t.Fatalf("GetPayment() error = %v", err)
	}
	if stored.TransactionReference == nil || *stored.TransactionReference != ref {
		t.Fatalf("stored reference = %v", stored.TransactionReference)
	}

	tooLong := ref + "R"
	_, err = app.Ledger.ApplyPayment(ctx, usecase.ApplyPaymentInput{
		PaymentID:  payments[1].ID,
		AmountPaid: payments[1].Amount,
		Method:     domain.MethodTransfer,
		Reference:  &tooLong,
		Actor:      "cashier-it",
	})
	if domain.Classify(err) != domain.CategoryValidation {
		t.Fatalf("over-long reference error = %v, want a validation error", err)
	}
}

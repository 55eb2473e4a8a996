package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
	"github.com/iho/storeledger/internal/usecase/mocks"
)

type mockStores struct {
	stores   usecase.Stores
	txm      *mocks.MockTransactionManager
	tx       *mocks.MockTransaction
	sales    *mocks.MockSaleRepository
	payments *mocks.MockPaymentRepository
	ids      *mocks.MockIDGenerator
}

func newMockStores(ctrl *gomock.Controller) *mockStores {
	m := &mockStores{
		txm:      mocks.NewMockTransactionManager(ctrl),
		tx:       mocks.NewMockTransaction(ctrl),
		sales:    mocks.NewMockSaleRepository(ctrl),
		payments: mocks.NewMockPaymentRepository(ctrl),
		ids:      mocks.NewMockIDGenerator(ctrl),
	}
	m.ids.EXPECT().Generate().Return("generated").AnyTimes()
	m.stores = usecase.Stores{
		Tx:       m.txm,
		Sales:    m.sales,
		Payments: m.payments,
		Sessions: mocks.NewMockCashSessionRepository(ctrl),
		Entries:  mocks.NewMockCashEntryRepository(ctrl),
		Outbox:   mocks.NewMockOutboxRepository(ctrl),
		Audit:    mocks.NewMockAuditRepository(ctrl),
		IDs:      m.ids,
	}
	return m
}

func TestLedgerUseCase_RegisterCreditSale_RollsBackOnDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newMockStores(ctrl)

	m.txm.EXPECT().Begin(gomock.Any()).Return(m.tx, nil)
	m.sales.EXPECT().Create(gomock.Any(), m.tx, gomock.Any()).Return(nil)
	m.payments.EXPECT().CreateBatch(gomock.Any(), m.tx, gomock.Len(3)).Return(nil)
	m.payments.EXPECT().SumOutstanding(gomock.Any(), m.tx, "sale-1").Return(money("899.99"), nil)
	m.tx.EXPECT().Rollback(gomock.Any()).Return(nil)

	uc := usecase.NewLedgerUseCase(m.stores, &testClock{now: day0}, usecase.LedgerConfig{}, zerolog.Nop(), nil)
	_, _, err := uc.RegisterCreditSale(context.Background(), usecase.RegisterCreditSaleInput{
		SaleID:               "sale-1",
		Total:                money("1000.00"),
		InitialPayment:       money("100.00"),
		InitialPaymentMethod: methodPtr(domain.MethodCard),
		InstallmentsCount:    3,
		CreditDays:           60,
	})

	var invariant *domain.InvariantError
	if !errors.As(err, &invariant) || invariant.Invariant != domain.InvariantRemainingBal {
		t.Fatalf("error = %v, want a remaining balance InvariantError", err)
	}
	if domain.Classify(err) != domain.CategoryInternal {
		t.Fatalf("category = %s, want internal", domain.Classify(err))
	}
}

func TestLedgerUseCase_ApplyPayment_BeginFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newMockStores(ctrl)
	beginErr := errors.New("pool exhausted")

	m.payments.EXPECT().GetByID(gomock.Any(), "pay-1").Return(&domain.Payment{
		ID: "pay-1", SaleID: "sale-1", Amount: money("10.00"), Status: domain.PaymentPending,
	}, nil)
	m.txm.EXPECT().Begin(gomock.Any()).Return(nil, beginErr)

	uc := usecase.NewLedgerUseCase(m.stores, &testClock{now: day0}, usecase.LedgerConfig{}, zerolog.Nop(), nil)
	_, err := uc.ApplyPayment(context.Background(), usecase.ApplyPaymentInput{
		PaymentID: "pay-1", AmountPaid: money("10.00"), Method: domain.MethodCard,
	})
	if !errors.Is(err, beginErr) {
		t.Fatalf("error = %v, want %v", err, beginErr)
	}
}

func TestLedgerUseCase_ApplyPayment_CommitFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newMockStores(ctrl)
	commitErr := errors.New("serialization failure")

	sale := &domain.Sale{
		ID: "sale-1", PaymentType: domain.PaymentTypeCredit, Status: domain.SaleActive,
		Total: money("10.00"), RemainingBalance: money("10.00"), AmountPaid: domain.ZeroMoney,
	}
	payment := &domain.Payment{ID: "pay-1", SaleID: "sale-1", PaymentNumber: 1, Amount: money("10.00"), Status: domain.PaymentPending}

	outbox := m.stores.Outbox.(*mocks.MockOutboxRepository)
	audit := m.stores.Audit.(*mocks.MockAuditRepository)

	gomock.InOrder(
		m.payments.EXPECT().GetByID(gomock.Any(), "pay-1").Return(payment, nil),
		m.txm.EXPECT().Begin(gomock.Any()).Return(m.tx, nil),
		m.sales.EXPECT().GetByIDsForUpdate(gomock.Any(), m.tx, []string{"sale-1"}).Return([]*domain.Sale{sale}, nil),
		m.payments.EXPECT().GetByIDForUpdate(gomock.Any(), m.tx, "pay-1").Return(payment, nil),
		m.payments.EXPECT().Update(gomock.Any(), m.tx, gomock.Any()).Return(nil),
		m.sales.EXPECT().Update(gomock.Any(), m.tx, gomock.Any()).Return(nil),
		outbox.EXPECT().Create(gomock.Any(), m.tx, gomock.Any()).Return(nil),
		audit.EXPECT().CreateTx(gomock.Any(), m.tx, gomock.Any()).Return(nil),
		m.payments.EXPECT().SumOutstanding(gomock.Any(), m.tx, "sale-1").Return(domain.ZeroMoney, nil),
		m.tx.EXPECT().Commit(gomock.Any()).Return(commitErr),
		m.tx.EXPECT().Rollback(gomock.Any()).Return(nil),
	)

	uc := usecase.NewLedgerUseCase(m.stores, &testClock{now: day0}, usecase.LedgerConfig{}, zerolog.Nop(), nil)
	_, err := uc.ApplyPayment(context.Background(), usecase.ApplyPaymentInput{
		PaymentID: "pay-1", AmountPaid: money("10.00"), Method: domain.MethodCard,
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("error = %v, want %v", err, commitErr)
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/storeledger/internal/adapter/http/dto"
	"github.com/iho/storeledger/internal/domain"
	"github.com/iho/storeledger/internal/usecase"
)

// withURLParam routes a request the way chi would for a {id} pattern.
func withURLParam(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func withUser(req *http.Request, id string, role domain.Role) *http.Request {
	return req.WithContext(domain.ContextWithUser(req.Context(), &domain.User{ID: id, Role: role}))
}

type saleServiceStub struct {
	registerFn func(ctx context.Context, input usecase.RegisterCreditSaleInput) (*domain.Sale, []*domain.Payment, error)
	voidFn     func(ctx context.Context, saleID, actor string) (*domain.Sale, error)
	getFn      func(ctx context.Context, id string) (*domain.Sale, error)
}

func (s *saleServiceStub) RegisterCreditSale(ctx context.Context, input usecase.RegisterCreditSaleInput) (*domain.Sale, []*domain.Payment, error) {
	return s.registerFn(ctx, input)
}

func (s *saleServiceStub) SettleCashSale(context.Context, usecase.SettleCashSaleInput) (*domain.Sale, error) {
	return nil, errors.New("not stubbed")
}

func (s *saleServiceStub) VoidSale(ctx context.Context, saleID, actor string) (*domain.Sale, error) {
	return s.voidFn(ctx, saleID, actor)
}

func (s *saleServiceStub) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.getFn(ctx, id)
}

func (s *saleServiceStub) ListPayments(context.Context, string) ([]*domain.Payment, error) {
	return nil, errors.New("not stubbed")
}

func TestSaleHandler_RegisterCredit_Success(t *testing.T) {
	var captured usecase.RegisterCreditSaleInput
	h := NewSaleHandler(&saleServiceStub{
		registerFn: func(ctx context.Context, input usecase.RegisterCreditSaleInput) (*domain.Sale, []*domain.Payment, error) {
			captured = input
			sale := &domain.Sale{ID: "sale-1", CustomerID: input.CustomerID, PaymentType: domain.PaymentTypeCredit,
				Total: input.Total, RemainingBalance: input.Total, Status: domain.SaleActive}
			payments := []*domain.Payment{{ID: "p1", SaleID: "sale-1", PaymentNumber: 1, Amount: input.Total,
				DueDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Status: domain.PaymentPending}}
			return sale, payments, nil
		},
	})

	body := `{"customer_id":"c1","total":"600.00","initial_payment":"0","installments_count":1,"credit_days":30}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/sales/credit", bytes.NewBufferString(body)), "cashier-1", domain.RoleCashier)
	rec := httptest.NewRecorder()

	h.RegisterCredit(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Actor != "cashier-1" || captured.Total.String() != "600.00" || captured.CreditDays != 30 {
		t.Fatalf("unexpected input %+v", captured)
	}

	var resp dto.CreditSaleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Sale.ID != "sale-1" || len(resp.Payments) != 1 || resp.Payments[0].DueDate != "2024-01-31" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSaleHandler_RegisterCredit_ValidationFailure(t *testing.T) {
	h := NewSaleHandler(&saleServiceStub{
		registerFn: func(context.Context, usecase.RegisterCreditSaleInput) (*domain.Sale, []*domain.Payment, error) {
			t.Fatal("use case must not run for an invalid request")
			return nil, nil, nil
		},
	})

	body := `{"customer_id":"c1","total":"600.00","installments_count":0,"credit_days":30}`
	rec := httptest.NewRecorder()
	h.RegisterCredit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sales/credit", bytes.NewBufferString(body)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp dto.ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Fields["installments_count"] != "min" {
		t.Fatalf("fields = %v", resp.Fields)
	}
}

func TestSaleHandler_Get_NotFound(t *testing.T) {
	h := NewSaleHandler(&saleServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.Sale, error) {
			return nil, domain.ErrSaleNotFound
		},
	})

	rec := httptest.NewRecorder()
	h.Get(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sales/missing", nil), "missing"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSaleHandler_Void_Conflict(t *testing.T) {
	var gotActor string
	h := NewSaleHandler(&saleServiceStub{
		voidFn: func(ctx context.Context, saleID, actor string) (*domain.Sale, error) {
			gotActor = actor
			return nil, domain.ErrSaleHasPaidInstallments
		},
	})

	req := withUser(withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/sales/s1/void", nil), "s1"), "admin-1", domain.RoleAdmin)
	rec := httptest.NewRecorder()
	h.Void(rec, req)

	if rec.Code != http.StatusConflict || gotActor != "admin-1" {
		t.Fatalf("status = %d actor = %q", rec.Code, gotActor)
	}
}

type paymentServiceStub struct {
	receipt *domain.Receipt
	err     error
}

func (s *paymentServiceStub) ApplyPayment(_ context.Context, input usecase.ApplyPaymentInput) (*domain.Receipt, error) {
	return s.receipt, s.err
}

func (s *paymentServiceStub) ApplyPaymentsBatch(context.Context, usecase.ApplyPaymentsBatchInput) ([]*domain.Receipt, error) {
	return nil, s.err
}

func (s *paymentServiceStub) VoidPayment(context.Context, string, string) (*domain.Payment, error) {
	return nil, s.err
}

func (s *paymentServiceStub) GetPayment(context.Context, string) (*domain.Payment, error) {
	return nil, s.err
}

func (s *paymentServiceStub) GetReceipt(context.Context, string) (*domain.Receipt, error) {
	return s.receipt, s.err
}

func TestPaymentHandler_ReceiptPDF(t *testing.T) {
	h := NewPaymentHandler(&paymentServiceStub{receipt: &domain.Receipt{
		PaymentID:        "p1",
		SaleID:           "s1",
		PaymentNumber:    1,
		Amount:           domain.MustMoney("300.00"),
		AmountPaid:       domain.MustMoney("300.00"),
		PaidDate:         time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		Method:           domain.MethodCash,
		RemainingBalance: domain.MustMoney("600.00"),
		CollectedBy:      "cashier-1",
	}}, "Ferreteria", zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ReceiptPDF(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/p1/receipt.pdf", nil), "p1"))

	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("status = %d content-type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatal("body is not a PDF")
	}
}

func TestPaymentHandler_ReceiptOfUnpaidInstallment(t *testing.T) {
	h := NewPaymentHandler(&paymentServiceStub{
		err: &domain.PaymentError{Kind: domain.ErrPaymentNotPaid, PaymentID: "p2"},
	}, "Ferreteria", zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Receipt(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/payments/p2/receipt", nil), "p2"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

type sweepStub struct {
	asOf  *time.Time
	today bool
}

func (s *sweepStub) Sweep(_ context.Context, asOf time.Time) (*usecase.SweepResult, error) {
	s.asOf = &asOf
	return &usecase.SweepResult{AsOf: asOf, Scanned: 3, Transitioned: 2}, nil
}

func (s *sweepStub) SweepToday(context.Context) (*usecase.SweepResult, error) {
	s.today = true
	return &usecase.SweepResult{AsOf: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}, nil
}

type consistencyStub struct{}

func (consistencyStub) CheckConsistency(context.Context) (*usecase.ConsistencyReport, error) {
	return &usecase.ConsistencyReport{CheckedSales: 4, Consistent: true}, nil
}

func TestLedgerHandler_Sweep(t *testing.T) {
	stub := &sweepStub{}
	h := NewLedgerHandler(stub, consistencyStub{})

	rec := httptest.NewRecorder()
	h.Sweep(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ledger/sweep", nil))
	if rec.Code != http.StatusOK || !stub.today {
		t.Fatalf("empty body must sweep today: status=%d today=%v", rec.Code, stub.today)
	}

	rec = httptest.NewRecorder()
	h.Sweep(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ledger/sweep",
		bytes.NewBufferString(`{"as_of":"2024-02-15T00:00:00Z"}`)))
	if rec.Code != http.StatusOK || stub.asOf == nil || stub.asOf.Day() != 15 {
		t.Fatalf("status=%d asOf=%v", rec.Code, stub.asOf)
	}

	var resp dto.SweepResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.AsOf != "2024-02-15" || resp.Transitioned != 2 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestLedgerHandler_Consistency(t *testing.T) {
	rec := httptest.NewRecorder()
	NewLedgerHandler(&sweepStub{}, consistencyStub{}).Consistency(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/consistency", nil))

	var report usecase.ConsistencyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.Consistent || report.CheckedSales != 4 {
		t.Fatalf("report = %+v", report)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    nil,
	})
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	h = NewHealthHandler(map[string]Pinger{
		"redis": PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

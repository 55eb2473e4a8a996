package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func entry(id string, typ EntryType, amount string) *CashEntry {
	return &CashEntry{ID: id, Type: typ, Amount: MustMoney(amount)}
}

func TestExpectedClosing(t *testing.T) {
	entries := []*CashEntry{
		entry("e1", EntryIncome, "120.00"),
		entry("e2", EntryIncome, "80.00"),
		entry("e3", EntryEgress, "30.00"),
		entry("e4", EntryInstallmentCollection, "300.00"),
		entry("e5", EntryCollectionReversal, "300.00"),
		entry("e6", EntryReopenMarker, "999.00"),
		entry("e7", EntrySaleSettlement, "15.50"),
	}

	got, err := ExpectedClosing(MustMoney("50.00"), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "235.50" {
		t.Fatalf("expected 235.50, got %s", got)
	}

	// order of the log does not matter for the sum
	reversed := make([]*CashEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	again, _ := ExpectedClosing(MustMoney("50.00"), reversed)
	if !again.Equal(got) {
		t.Fatalf("expected %s regardless of order, got %s", got, again)
	}
}

func TestExpectedClosing_RejectsNonPositiveEntry(t *testing.T) {
	entries := []*CashEntry{entry("bad", EntryEgress, "-5.00")}
	_, err := ExpectedClosing(MustMoney("10"), entries)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestBuildClosingReport(t *testing.T) {
	s := &CashSession{ID: "s1", CashRegisterID: "reg-1", OpeningAmount: MustMoney("50.00"), Status: SessionOpen}
	entries := []*CashEntry{
		entry("e1", EntryIncome, "120.00"),
		entry("e2", EntryIncome, "80.00"),
		entry("e3", EntryEgress, "30.00"),
	}

	live, err := BuildClosingReport(s, entries, nil, DefaultVarianceThresholds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live.Counted != nil || live.Variance != nil || live.Classification != "" {
		t.Fatalf("expected live report without counted figures, got %+v", live)
	}

	counted := MustMoney("220.00")
	report, err := BuildClosingReport(s, entries, &counted, DefaultVarianceThresholds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Expected.String() != "220.00" || report.Variance.String() != "0.00" {
		t.Fatalf("expected 220.00 with zero variance, got %s / %s", report.Expected, report.Variance)
	}
	if report.Classification != VarianceNormal || report.EntryCount != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.TotalsByType) != 2 || report.TotalsByType[0].Type != EntryEgress || report.TotalsByType[1].Amount.String() != "200.00" {
		t.Fatalf("unexpected totals %+v", report.TotalsByType)
	}
}

func TestVarianceThresholds_Classify(t *testing.T) {
	tests := []struct {
		name     string
		variance string
		expected string
		wantPct  string
		want     VarianceClass
	}{
		{name: "exact", variance: "0", expected: "1000", wantPct: "0", want: VarianceNormal},
		{name: "one percent short", variance: "-10", expected: "1000", wantPct: "-1", want: VarianceNormal},
		{name: "four percent short", variance: "-200", expected: "5000", wantPct: "-4", want: VarianceWarning},
		{name: "ten percent over", variance: "1000", expected: "10000", wantPct: "10", want: VarianceCritical},
		{name: "empty drawer with difference", variance: "5", expected: "0", wantPct: "0", want: VarianceCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, class := DefaultVarianceThresholds.Classify(MustMoney(tt.variance), MustMoney(tt.expected))
			if class != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, class)
			}
			if !pct.Equal(decimal.RequireFromString(tt.wantPct)) {
				t.Fatalf("expected pct %s, got %s", tt.wantPct, pct)
			}
		})
	}
}

func TestCashSession_CloseAndReopen(t *testing.T) {
	now := time.Now()
	s := &CashSession{ID: "s1", CashRegisterID: "reg-1", OpeningAmount: MustMoney("50.00"), Status: SessionOpen}

	counted := MustMoney("49.00")
	report, err := BuildClosingReport(s, nil, &counted, DefaultVarianceThresholds)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	actor := "cashier-1"
	report.ClosedBy = &actor
	report.ClosedAt = &now

	if err := s.Close(report); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.IsOpen() || s.ClosingVariance.String() != "-1.00" {
		t.Fatalf("expected closed session with -1.00 variance, got %+v", s)
	}
	if err := s.Close(report); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen on double close, got %v", err)
	}
	if err := s.VerifyClosing(nil); err != nil {
		t.Fatalf("expected stored expected amount to verify, got %v", err)
	}

	if err := s.Reopen(now); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !s.IsOpen() || s.ClosedAt != nil || s.ClosingCountedAmount != nil || s.ReopenCount != 1 {
		t.Fatalf("expected reopened session with cleared closing data, got %+v", s)
	}
	if err := s.Reopen(now); !errors.Is(err, ErrSessionAlreadyOpen) {
		t.Fatalf("expected ErrSessionAlreadyOpen, got %v", err)
	}
}

func TestEntryType_Recordable(t *testing.T) {
	for _, typ := range []EntryType{EntryIncome, EntryEgress, EntrySaleSettlement, EntryInstallmentCollection} {
		if !typ.Recordable() {
			t.Errorf("%s should be recordable", typ)
		}
	}
	for _, typ := range []EntryType{EntryCollectionReversal, EntryReopenMarker} {
		if typ.Recordable() {
			t.Errorf("%s should be internal only", typ)
		}
	}
	if _, err := ParseEntryType("refund"); !errors.Is(err, ErrInvalidEntryType) {
		t.Errorf("expected ErrInvalidEntryType, got %v", err)
	}
}

func TestExpectedClosing_AllowsZeroReopenMarker(t *testing.T) {
	entries := []*CashEntry{
		entry("e1", EntryIncome, "10.00"),
		{ID: "m1", Type: EntryReopenMarker, Amount: ZeroMoney},
	}
	got, err := ExpectedClosing(MustMoney("5.00"), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "15.00" {
		t.Fatalf("expected 15.00, got %s", got)
	}

	zeroIncome := []*CashEntry{{ID: "z", Type: EntryIncome, Amount: ZeroMoney}}
	if _, err := ExpectedClosing(ZeroMoney, zeroIncome); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected zero income to be rejected, got %v", err)
	}
}

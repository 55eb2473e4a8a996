package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMoney_RejectsSubCent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "integer", input: "10", wantErr: false},
		{name: "two places", input: "10.25", wantErr: false},
		{name: "trailing zeros", input: "10.2500", wantErr: false},
		{name: "three places", input: "10.255", wantErr: true},
		{name: "not a number", input: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMoney(tt.input)
			if tt.wantErr && !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMoney_DivFloor(t *testing.T) {
	tests := []struct {
		amount string
		n      int64
		want   string
	}{
		{"900.00", 3, "300.00"},
		{"900.01", 3, "300.00"},
		{"100.00", 3, "33.33"},
		{"0.05", 2, "0.02"},
		{"-0.05", 2, "-0.03"},
		{"100000000000000000000.00", 3, "33333333333333333333.33"},
	}

	for _, tt := range tests {
		got := MustMoney(tt.amount).DivFloor(tt.n)
		if got.String() != tt.want {
			t.Errorf("%s / %d: expected %s, got %s", tt.amount, tt.n, tt.want, got)
		}
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustMoney("0.10")
	b := MustMoney("0.20")
	if got := a.Add(b); !got.Equal(MustMoney("0.30")) {
		t.Fatalf("expected 0.30, got %s", got)
	}
	if got := a.Sub(b); got.String() != "-0.10" {
		t.Fatalf("expected -0.10, got %s", got)
	}
	if got := MustMoney("12.50").MulInt(3); got.String() != "37.50" {
		t.Fatalf("expected 37.50, got %s", got)
	}
	if got := MustMoney("200.00").Percent(decimal.NewFromFloat(12.5)); got.String() != "25.00" {
		t.Fatalf("expected 25.00, got %s", got)
	}
	if got := MoneyFromCents(30001); got.String() != "300.01" {
		t.Fatalf("expected 300.01, got %s", got)
	}
	if got := MustMoney("300.01").Cents(); got != 30001 {
		t.Fatalf("expected 30001 cents, got %d", got)
	}
	if got := SumMoney(a, b, MustMoney("1")); got.String() != "1.30" {
		t.Fatalf("expected 1.30, got %s", got)
	}
	if ZeroMoney.String() != "0.00" {
		t.Fatalf("expected zero value to format as 0.00, got %s", ZeroMoney)
	}
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(MustMoney("5"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"5.00"` {
		t.Fatalf("expected quoted fixed-point string, got %s", data)
	}

	var fromNumber Money
	if err := json.Unmarshal([]byte(`12.5`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if fromNumber.String() != "12.50" {
		t.Fatalf("expected 12.50, got %s", fromNumber)
	}

	var tooPrecise Money
	if err := json.Unmarshal([]byte(`"1.001"`), &tooPrecise); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

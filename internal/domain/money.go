package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every stored amount carries.
const MoneyScale = 2

// Money is a fixed-point amount with cent precision.
// The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// ZeroMoney is 0.00.
var ZeroMoney = Money{}

// NewMoney converts a decimal into Money. Amounts with sub-cent digits are rejected.
func NewMoney(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(MoneyScale)) {
		return ZeroMoney, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.String(), MoneyScale)
	}
	return Money{d: d}, nil
}

// ParseMoney parses a decimal string such as "300.01".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney, fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidAmount, s)
	}
	return NewMoney(d)
}

// MustMoney is ParseMoney that panics on malformed input.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromCents builds Money from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -MoneyScale)}
}

// RoundedMoney rounds d half away from zero to the cent. Used for values
// read back from numeric(14,2) columns, where it is a no-op.
func RoundedMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(MoneyScale)}
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

func (m Money) Neg() Money { return Money{d: m.d.Neg()} }

func (m Money) Abs() Money { return Money{d: m.d.Abs()} }

// MulInt multiplies by a quantity.
func (m Money) MulInt(q int64) Money { return Money{d: m.d.Mul(decimal.NewFromInt(q))} }

// Percent returns pct percent of m, rounded to the cent.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(decimal.NewFromInt(100)).Round(MoneyScale)}
}

// DivFloor splits m into n parts and returns one part floored to the cent.
func (m Money) DivFloor(n int64) Money {
	if n <= 0 {
		panic("domain: DivFloor by non-positive divisor")
	}
	q, r := m.d.QuoRem(decimal.NewFromInt(n), MoneyScale)
	if r.IsNegative() {
		q = q.Sub(decimal.New(1, -MoneyScale))
	}
	return Money{d: q}
}

// Cents returns the amount as an integer number of cents. Only meaningful
// for amounts within MaxAmount.
func (m Money) Cents() int64 { return m.d.Shift(MoneyScale).IntPart() }

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

// Decimal exposes the underlying decimal for persistence and ratios.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String formats with exactly two decimals.
func (m Money) String() string { return m.d.StringFixed(MoneyScale) }

// MarshalJSON encodes Money as a quoted fixed-point string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	parsed, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SumMoney adds all amounts.
func SumMoney(amounts ...Money) Money {
	total := ZeroMoney
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

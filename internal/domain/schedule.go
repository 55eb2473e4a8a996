package domain

import (
	"strconv"
	"time"
)

// MaxInstallments bounds the number of installments a credit sale may carry.
const MaxInstallments = 120

// ScheduledInstallment is one line of a computed schedule.
type ScheduledInstallment struct {
	Number  int
	Amount  Money
	DueDate time.Time
}

// Schedule splits total-initial into n installments spread over creditDays
// starting at start. Every installment gets the financed amount divided by
// n floored to the cent; the last one absorbs the remainder so the schedule
// plus the initial payment adds up to total exactly.
//
// Installment k falls due round(k*creditDays/n) days after start, with
// exact halves rounded down. The last one is due on start+creditDays.
func Schedule(total, initial Money, n, creditDays int, start time.Time) ([]ScheduledInstallment, error) {
	if err := validateScheduleInput(total, initial, n, creditDays); err != nil {
		return nil, err
	}

	financed := total.Sub(initial)
	base := financed.DivFloor(int64(n))
	day := TruncateToDay(start)

	out := make([]ScheduledInstallment, n)
	allocated := ZeroMoney
	for k := 1; k <= n; k++ {
		amount := base
		if k == n {
			amount = financed.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out[k-1] = ScheduledInstallment{
			Number:  k,
			Amount:  amount,
			DueDate: day.AddDate(0, 0, dueOffset(k, n, creditDays)),
		}
	}
	return out, nil
}

func validateScheduleInput(total, initial Money, n, creditDays int) error {
	switch {
	case n < 1:
		return &ScheduleError{Field: "installments_count", Reason: "must be at least 1"}
	case n > MaxInstallments:
		return &ScheduleError{Field: "installments_count", Reason: "must not exceed " + strconv.Itoa(MaxInstallments)}
	case creditDays < 0:
		return &ScheduleError{Field: "credit_days", Reason: "must not be negative"}
	case !total.IsPositive():
		return &ScheduleError{Field: "total", Reason: "must be positive"}
	case total.GreaterThan(maxAmount):
		return &ScheduleError{Field: "total", Reason: "must not exceed " + MaxAmount}
	case initial.IsNegative():
		return &ScheduleError{Field: "initial_payment", Reason: "must not be negative"}
	case initial.GreaterThan(total):
		return &ScheduleError{Field: "initial_payment", Reason: "exceeds sale total"}
	}
	financed := total.Sub(initial)
	if !financed.IsPositive() {
		return &ScheduleError{Field: "initial_payment", Reason: "leaves nothing to finance"}
	}
	if financed.LessThan(MoneyFromCents(int64(n))) {
		return &ScheduleError{Field: "installments_count", Reason: "financed amount is smaller than one cent per installment"}
	}
	return nil
}

func dueOffset(k, n, creditDays int) int {
	if k == n {
		return creditDays
	}
	num := k * creditDays
	q, r := num/n, num%n
	if 2*r > n {
		q++
	}
	return q
}

// TruncateToDay drops the clock part of t in its own location.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ScheduleSum returns the sum of the scheduled amounts.
func ScheduleSum(items []ScheduledInstallment) Money {
	total := ZeroMoney
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}

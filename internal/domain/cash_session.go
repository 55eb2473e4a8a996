package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the state of a cash drawer session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// EntryType classifies a movement in the drawer. The amount of an entry
// is always positive and its direction comes from the type.
type EntryType string

const (
	EntryIncome                EntryType = "income"
	EntryEgress                EntryType = "egress"
	EntrySaleSettlement        EntryType = "sale_settlement"
	EntryInstallmentCollection EntryType = "installment_collection"
	EntryCollectionReversal    EntryType = "collection_reversal"
	EntryReopenMarker          EntryType = "reopen_marker"
)

// Direction is the effect an entry has on the drawer.
type Direction int

const (
	Neutral Direction = iota
	Inflow
	Outflow
)

// ParseEntryType converts a stored entry type.
func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(s)
	switch t {
	case EntryIncome, EntryEgress, EntrySaleSettlement, EntryInstallmentCollection,
		EntryCollectionReversal, EntryReopenMarker:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, s)
	}
}

// Direction returns how the entry moves the expected drawer amount.
func (t EntryType) Direction() Direction {
	switch t {
	case EntryIncome, EntrySaleSettlement, EntryInstallmentCollection:
		return Inflow
	case EntryEgress, EntryCollectionReversal:
		return Outflow
	case EntryReopenMarker:
		return Neutral
	default:
		panic(fmt.Sprintf("domain: unhandled entry type %q", t))
	}
}

// Recordable reports whether callers may post this type directly. The
// remaining types are only written by the ledger itself.
func (t EntryType) Recordable() bool {
	switch t {
	case EntryIncome, EntryEgress, EntrySaleSettlement, EntryInstallmentCollection:
		return true
	default:
		return false
	}
}

// CashEntry is one append-only movement in a session.
type CashEntry struct {
	ID        string
	SessionID string
	Seq       int64
	Type      EntryType
	Amount    Money
	Reference string
	CreatedBy string
	CreatedAt time.Time
}

// CashSession is a drawer shift on one register.
type CashSession struct {
	ID                    string
	CashRegisterID        string
	OpenedBy              string
	OpeningAmount         Money
	OpenedAt              time.Time
	Status                SessionStatus
	ClosedBy              *string
	ClosingCountedAmount  *Money
	ClosingExpectedAmount *Money
	ClosingVariance       *Money
	ClosedAt              *time.Time
	ReopenCount           int
	UpdatedAt             time.Time
}

// IsOpen reports whether the session accepts entries.
func (s *CashSession) IsOpen() bool {
	switch s.Status {
	case SessionOpen:
		return true
	case SessionClosed:
		return false
	default:
		panic(fmt.Sprintf("domain: unhandled session status %q", s.Status))
	}
}

// EnsureOpen returns SessionNotOpen when entries can no longer be appended.
func (s *CashSession) EnsureOpen() error {
	if !s.IsOpen() {
		return &SessionError{Kind: ErrSessionNotOpen, SessionID: s.ID, RegisterID: s.CashRegisterID}
	}
	return nil
}

// Close seals the session with the figures of report.
func (s *CashSession) Close(report *ClosingReport) error {
	if err := s.EnsureOpen(); err != nil {
		return err
	}
	if report.Counted == nil || report.Variance == nil || report.ClosedAt == nil || report.ClosedBy == nil {
		return fmt.Errorf("closing report for session %s is incomplete", s.ID)
	}
	expected := report.Expected
	s.Status = SessionClosed
	s.ClosingCountedAmount = report.Counted
	s.ClosingExpectedAmount = &expected
	s.ClosingVariance = report.Variance
	s.ClosedBy = report.ClosedBy
	s.ClosedAt = report.ClosedAt
	s.UpdatedAt = *report.ClosedAt
	return nil
}

// Reopen returns a closed session to open and clears its closing figures.
func (s *CashSession) Reopen(at time.Time) error {
	switch s.Status {
	case SessionClosed:
	case SessionOpen:
		return &SessionError{Kind: ErrSessionAlreadyOpen, SessionID: s.ID, RegisterID: s.CashRegisterID}
	default:
		panic(fmt.Sprintf("domain: unhandled session status %q", s.Status))
	}
	s.Status = SessionOpen
	s.ClosedBy = nil
	s.ClosingCountedAmount = nil
	s.ClosingExpectedAmount = nil
	s.ClosingVariance = nil
	s.ClosedAt = nil
	s.ReopenCount++
	s.UpdatedAt = at
	return nil
}

// ExpectedClosing folds the entry log into the amount the drawer should
// hold: opening plus inflows minus outflows. Neutral markers may carry a
// zero amount; every other entry must be positive.
func ExpectedClosing(opening Money, entries []*CashEntry) (Money, error) {
	expected := opening
	for _, e := range entries {
		dir := e.Type.Direction()
		if e.Amount.IsNegative() || (dir != Neutral && e.Amount.IsZero()) {
			return ZeroMoney, &InvariantError{
				Invariant: InvariantPositiveAmount,
				Entity:    "cash_entry",
				EntityID:  e.ID,
				Expected:  "> 0.00",
				Actual:    e.Amount.String(),
			}
		}
		switch dir {
		case Inflow:
			expected = expected.Add(e.Amount)
		case Outflow:
			expected = expected.Sub(e.Amount)
		case Neutral:
		}
	}
	return expected, nil
}

// TotalsByType sums entry amounts per type.
func TotalsByType(entries []*CashEntry) map[EntryType]Money {
	totals := make(map[EntryType]Money)
	for _, e := range entries {
		totals[e.Type] = totals[e.Type].Add(e.Amount)
	}
	return totals
}

// VarianceClass grades the size of a closing variance.
type VarianceClass string

const (
	VarianceNormal   VarianceClass = "normal"
	VarianceWarning  VarianceClass = "advertencia"
	VarianceCritical VarianceClass = "critico"
)

// VarianceThresholds holds the percentage limits for grading a variance.
type VarianceThresholds struct {
	Warning  decimal.Decimal
	Critical decimal.Decimal
}

// DefaultVarianceThresholds grades up to 1% as normal and up to 5% as a warning.
var DefaultVarianceThresholds = VarianceThresholds{
	Warning:  decimal.NewFromInt(1),
	Critical: decimal.NewFromInt(5),
}

// Classify grades variance relative to expected.
func (th VarianceThresholds) Classify(variance, expected Money) (decimal.Decimal, VarianceClass) {
	if expected.IsZero() {
		if variance.IsZero() {
			return decimal.Zero, VarianceNormal
		}
		return decimal.Zero, VarianceCritical
	}
	pct := variance.Decimal().Div(expected.Decimal()).Mul(decimal.NewFromInt(100)).Round(2)
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(th.Warning):
		return pct, VarianceNormal
	case abs.LessThanOrEqual(th.Critical):
		return pct, VarianceWarning
	default:
		return pct, VarianceCritical
	}
}

// EntryTotal is one line of the per-type breakdown.
type EntryTotal struct {
	Type   EntryType `json:"type"`
	Amount Money     `json:"amount"`
}

// ClosingReport reconciles a session's entry log against the counted cash.
// Counted and Variance are nil while the session is still open.
type ClosingReport struct {
	SessionID      string          `json:"session_id"`
	RegisterID     string          `json:"cash_register_id"`
	Status         SessionStatus   `json:"status"`
	Opening        Money           `json:"opening_amount"`
	Expected       Money           `json:"expected_amount"`
	Counted        *Money          `json:"counted_amount,omitempty"`
	Variance       *Money          `json:"variance,omitempty"`
	VariancePct    decimal.Decimal `json:"variance_pct"`
	Classification VarianceClass   `json:"classification,omitempty"`
	TotalsByType   []EntryTotal    `json:"totals_by_type"`
	EntryCount     int             `json:"entry_count"`
	ClosedBy       *string         `json:"closed_by,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// BuildClosingReport computes the report for s from its entries. A nil
// counted amount produces a live report for an open session.
func BuildClosingReport(s *CashSession, entries []*CashEntry, counted *Money, th VarianceThresholds) (*ClosingReport, error) {
	expected, err := ExpectedClosing(s.OpeningAmount, entries)
	if err != nil {
		return nil, err
	}

	totals := TotalsByType(entries)
	lines := make([]EntryTotal, 0, len(totals))
	for t, amount := range totals {
		lines = append(lines, EntryTotal{Type: t, Amount: amount})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Type < lines[j].Type })

	report := &ClosingReport{
		SessionID:    s.ID,
		RegisterID:   s.CashRegisterID,
		Status:       s.Status,
		Opening:      s.OpeningAmount,
		Expected:     expected,
		TotalsByType: lines,
		EntryCount:   len(entries),
		ClosedBy:     s.ClosedBy,
		ClosedAt:     s.ClosedAt,
	}
	if counted != nil {
		c := *counted
		variance := c.Sub(expected)
		report.Counted = &c
		report.Variance = &variance
		report.VariancePct, report.Classification = th.Classify(variance, expected)
	}
	return report, nil
}

// VerifyClosing checks a closed session's stored expected amount against
// the amount recomputed from its entries.
func (s *CashSession) VerifyClosing(entries []*CashEntry) error {
	if s.ClosingExpectedAmount == nil {
		return nil
	}
	expected, err := ExpectedClosing(s.OpeningAmount, entries)
	if err != nil {
		return err
	}
	if !expected.Equal(*s.ClosingExpectedAmount) {
		return &InvariantError{
			Invariant: InvariantExpectedClose,
			Entity:    "cash_session",
			EntityID:  s.ID,
			Expected:  expected.String(),
			Actual:    s.ClosingExpectedAmount.String(),
		}
	}
	return nil
}

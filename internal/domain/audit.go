package domain

import (
	"context"
	"encoding/json"
	"time"
)

// AuditLog records who changed ledger or drawer state and how.
type AuditLog struct {
	ID           string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	RequestID    string
	BeforeState  JSON
	AfterState   JSON
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionSaleRegister  AuditAction = "sale.register"
	AuditActionSaleSettle    AuditAction = "sale.settle"
	AuditActionSaleVoid      AuditAction = "sale.void"
	AuditActionPaymentApply  AuditAction = "payment.apply"
	AuditActionPaymentVoid   AuditAction = "payment.void"
	AuditActionPaymentSweep  AuditAction = "payment.overdue"
	AuditActionSessionOpen   AuditAction = "cash_session.open"
	AuditActionEntryRecord   AuditAction = "cash_entry.record"
	AuditActionSessionClose  AuditAction = "cash_session.close"
	AuditActionSessionReopen AuditAction = "cash_session.reopen"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusError   AuditStatus = "error"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Limit        int
	Offset       int
}

// RequestMeta describes the client request behind an audited action.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type requestMetaKey struct{}

// ContextWithRequestMeta attaches request metadata for audit logging.
func ContextWithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// RequestMetaFromContext returns the request metadata on ctx, if any.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m
}

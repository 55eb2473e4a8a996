package domain

import (
	"context"
	"errors"
	"time"
)

// User represents a system user
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
	Active    bool
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin may reopen closed sessions and void sales
	RoleAdmin Role = "admin"

	// RoleCashier operates a register and collects installments
	RoleCashier Role = "cashier"

	// RoleViewer can only read sales, payments and sessions
	RoleViewer Role = "viewer"
)

var validRoles = map[Role]bool{
	RoleAdmin:   true,
	RoleCashier: true,
	RoleViewer:  true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanOperate reports whether the role may post collections and drawer entries.
func (r Role) CanOperate() bool {
	return r == RoleAdmin || r == RoleCashier
}

// CanReopen reports whether the role may reopen a closed session.
func (r Role) CanReopen() bool {
	return r == RoleAdmin
}

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)

// Actor identifies who performs a ledger operation.
type Actor struct {
	ID   string
	Role Role
}

type userContextKey struct{}

// ContextWithUser stores the authenticated user on ctx.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the authenticated user stored on ctx.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*User)
	return u, ok && u != nil
}

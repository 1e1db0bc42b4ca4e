// Package access resolves callers to ledger-scoped identities and enforces
// the role policy for every ledger operation.
package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
)

// Action names an operation guarded by the role policy.
type Action string

const (
	ReadLedger         Action = "ledger:read"
	WriteAccounts      Action = "accounts:write"
	WriteCards         Action = "cards:write"
	WriteCategories    Action = "categories:write"
	WriteTransactions  Action = "transactions:write"
	WriteStocks        Action = "stocks:write"
	ManageMembers      Action = "members:manage"
	UpdateLedger       Action = "ledger:update"
	DeleteLedgerAction Action = "ledger:delete"
)

// policy is the minimum role per action. Reads need any membership.
var policy = map[Action]models.Role{
	ReadLedger:         models.RoleViewer,
	WriteAccounts:      models.RoleEditor,
	WriteCards:         models.RoleEditor,
	WriteCategories:    models.RoleEditor,
	WriteTransactions:  models.RoleEditor,
	WriteStocks:        models.RoleEditor,
	ManageMembers:      models.RoleOwner,
	UpdateLedger:       models.RoleOwner,
	DeleteLedgerAction: models.RoleOwner,
}

// Scope is a caller resolved to a ledger membership.
type Scope struct {
	UserID   uuid.UUID
	LedgerID uuid.UUID
	Role     models.Role
}

// Authorize returns apperr.ErrForbidden unless the scope's role satisfies
// the policy for a. Unknown actions are denied.
func (s Scope) Authorize(a Action) error {
	need, ok := policy[a]
	if !ok || s.LedgerID == uuid.Nil || !s.Role.AtLeast(need) {
		return apperr.ErrForbidden
	}
	return nil
}

type ctxKey int

const (
	ctxUserKey ctxKey = iota
	ctxScopeKey
)

// WithUser returns a context carrying the identified user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}

// UserFromContext returns the identified user or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxUserKey).(*models.User)
	return u
}

// WithScope returns a context carrying the ledger scope.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxScopeKey, s)
}

// ScopeFromContext returns the ledger scope set by Gate.LedgerScoped.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxScopeKey).(Scope)
	return s, ok
}

package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/httpx"
)

// LedgerHeader carries the ledger selector on ledger-scoped requests.
const LedgerHeader = "X-Ledger-Id"

// UserProvisioner returns the profile of an external identity, creating it on
// first sight.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, externalID, email string) (*models.User, error)
}

// MembershipResolver looks up a user's membership in a ledger.
type MembershipResolver interface {
	Access(ctx context.Context, ledgerID, userID uuid.UUID) (*models.MemberAccess, error)
}

// Gate moves a request from unauthenticated to identified to ledger scoped.
type Gate struct {
	tokens  TokenResolver
	users   UserProvisioner
	members MembershipResolver
	grants  GrantStore
	toucher Toucher
	log     *slog.Logger
}

// NewGate wires the gate. toucher may be nil to disable recency tracking.
func NewGate(tokens TokenResolver, users UserProvisioner, members MembershipResolver, grants GrantStore, toucher Toucher, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{tokens: tokens, users: users, members: members, grants: grants, toucher: toucher, log: log}
}

// Authenticate resolves the bearer token and puts the caller's profile in
// the request context.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearer(r)
		if raw == "" {
			httpx.RespondError(w, g.log, apperr.ErrUnauthorized)
			return
		}
		id, err := g.tokens.Resolve(r.Context(), raw)
		if err != nil {
			httpx.RespondError(w, g.log, err)
			return
		}
		u, err := g.users.EnsureUser(r.Context(), id.ExternalID, id.Email)
		if err != nil {
			httpx.RespondError(w, g.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// LedgerScoped resolves the ledger named by LedgerHeader against the caller's
// memberships. Missing selectors, unknown ledgers and non-members are all
// Forbidden.
func (g *Gate) LedgerScoped(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromContext(r.Context())
		if u == nil {
			httpx.RespondError(w, g.log, apperr.ErrUnauthorized)
			return
		}
		ledgerID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(LedgerHeader)))
		if err != nil {
			httpx.RespondError(w, g.log, apperr.ErrForbidden)
			return
		}
		scope, err := g.Resolve(r.Context(), u.ID, ledgerID)
		if err != nil {
			httpx.RespondError(w, g.log, err)
			return
		}
		if g.toucher != nil {
			g.toucher.Touch(r.Context(), ledgerID, u.ID)
		}
		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
	})
}

// Resolve returns the scope of userID in ledgerID. Password-protected ledgers
// additionally require a live entry grant.
func (g *Gate) Resolve(ctx context.Context, userID, ledgerID uuid.UUID) (Scope, error) {
	m, err := g.members.Access(ctx, ledgerID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Scope{}, apperr.ErrForbidden
	}
	if err != nil {
		return Scope{}, err
	}
	if m.HasPassword {
		if g.grants == nil {
			return Scope{}, apperr.ErrForbidden
		}
		ok, err := g.grants.Has(ctx, userID, ledgerID)
		if err != nil {
			return Scope{}, err
		}
		if !ok {
			return Scope{}, apperr.ErrForbidden
		}
	}
	return Scope{UserID: userID, LedgerID: ledgerID, Role: m.Role}, nil
}

// Require rejects requests whose scope does not permit a.
func Require(a Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := ScopeFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, nil, apperr.ErrForbidden)
				return
			}
			if err := s.Authorize(a); err != nil {
				httpx.RespondError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

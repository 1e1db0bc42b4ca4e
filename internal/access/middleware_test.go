package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubTokens map[string]Identity

func (s stubTokens) Resolve(_ context.Context, token string) (Identity, error) {
	id, ok := s[token]
	if !ok {
		return Identity{}, apperr.ErrUnauthorized
	}
	return id, nil
}

type stubUsers struct {
	byExternal map[string]*models.User
}

func (s *stubUsers) EnsureUser(_ context.Context, externalID, email string) (*models.User, error) {
	if u, ok := s.byExternal[externalID]; ok {
		return u, nil
	}
	u := &models.User{ID: uuid.New(), ExternalID: externalID, Email: email}
	s.byExternal[externalID] = u
	return u, nil
}

type stubMembers map[[2]uuid.UUID]*models.MemberAccess

func (s stubMembers) Access(_ context.Context, ledgerID, userID uuid.UUID) (*models.MemberAccess, error) {
	m, ok := s[[2]uuid.UUID{ledgerID, userID}]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return m, nil
}

type stubGrants map[[2]uuid.UUID]bool

func (s stubGrants) Grant(_ context.Context, userID, ledgerID uuid.UUID) error {
	s[[2]uuid.UUID{ledgerID, userID}] = true
	return nil
}

func (s stubGrants) Has(_ context.Context, userID, ledgerID uuid.UUID) (bool, error) {
	return s[[2]uuid.UUID{ledgerID, userID}], nil
}

func (s stubGrants) RevokeLedger(context.Context, uuid.UUID) error { return nil }

type recordingToucher struct {
	mu      sync.Mutex
	touches [][2]uuid.UUID
}

func (r *recordingToucher) Touch(_ context.Context, ledgerID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches = append(r.touches, [2]uuid.UUID{ledgerID, userID})
}

type fixture struct {
	gate    *Gate
	users   *stubUsers
	members stubMembers
	grants  stubGrants
	toucher *recordingToucher
	alice   *models.User
}

func newFixture() *fixture {
	f := &fixture{
		users:   &stubUsers{byExternal: map[string]*models.User{}},
		members: stubMembers{},
		grants:  stubGrants{},
		toucher: &recordingToucher{},
	}
	tokens := stubTokens{"alice-token": {ExternalID: "ext-alice", Email: "alice@example.com"}}
	f.alice, _ = f.users.EnsureUser(context.Background(), "ext-alice", "alice@example.com")
	f.gate = NewGate(tokens, f.users, f.members, f.grants, f.toucher, nil)
	return f
}

func (f *fixture) join(ledgerID uuid.UUID, role models.Role, locked bool) {
	f.members[[2]uuid.UUID{ledgerID, f.alice.ID}] = &models.MemberAccess{
		Membership:  models.Membership{LedgerID: ledgerID, UserID: f.alice.ID, Role: role},
		HasPassword: locked,
	}
}

func (f *fixture) handler(a Action) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := ScopeFromContext(r.Context())
		w.Header().Set("X-Role", string(s.Role))
		w.WriteHeader(http.StatusOK)
	})
	return f.gate.Authenticate(f.gate.LedgerScoped(Require(a)(ok)))
}

func request(token string, ledgerID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ledgerID != "" {
		req.Header.Set(LedgerHeader, ledgerID)
	}
	return req
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestGate_MissingBearer(t *testing.T) {
	f := newFixture()
	rr := httptest.NewRecorder()
	f.handler(ReadLedger).ServeHTTP(rr, request("", uuid.NewString()))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGate_UnknownToken(t *testing.T) {
	f := newFixture()
	rr := httptest.NewRecorder()
	f.handler(ReadLedger).ServeHTTP(rr, request("forged", uuid.NewString()))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGate_MissingOrMalformedLedgerHeaderIsForbidden(t *testing.T) {
	f := newFixture()
	for _, header := range []string{"", "not-a-uuid"} {
		rr := httptest.NewRecorder()
		f.handler(ReadLedger).ServeHTTP(rr, request("alice-token", header))
		assert.Equal(t, http.StatusForbidden, rr.Code, "header %q", header)
	}
}

func TestGate_NonMemberIsForbiddenNotNotFound(t *testing.T) {
	f := newFixture()
	rr := httptest.NewRecorder()
	f.handler(ReadLedger).ServeHTTP(rr, request("alice-token", uuid.NewString()))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, f.toucher.touches)
}

func TestGate_ViewerCanReadButNotWrite(t *testing.T) {
	f := newFixture()
	ledger := uuid.New()
	f.join(ledger, models.RoleViewer, false)

	rr := httptest.NewRecorder()
	f.handler(ReadLedger).ServeHTTP(rr, request("alice-token", ledger.String()))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "viewer", rr.Header().Get("X-Role"))

	rr = httptest.NewRecorder()
	f.handler(WriteTransactions).ServeHTTP(rr, request("alice-token", ledger.String()))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGate_ProtectedLedgerNeedsGrant(t *testing.T) {
	f := newFixture()
	ledger := uuid.New()
	f.join(ledger, models.RoleEditor, true)

	rr := httptest.NewRecorder()
	f.handler(ReadLedger).ServeHTTP(rr, request("alice-token", ledger.String()))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	require.NoError(t, f.grants.Grant(context.Background(), f.alice.ID, ledger))
	rr = httptest.NewRecorder()
	f.handler(WriteTransactions).ServeHTTP(rr, request("alice-token", ledger.String()))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGate_TouchesMembershipOnSuccess(t *testing.T) {
	f := newFixture()
	ledger := uuid.New()
	f.join(ledger, models.RoleOwner, false)

	rr := httptest.NewRecorder()
	f.handler(ReadLedger).ServeHTTP(rr, request("alice-token", ledger.String()))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, [][2]uuid.UUID{{ledger, f.alice.ID}}, f.toucher.touches)
}

func TestRequire_WithoutScope(t *testing.T) {
	rr := httptest.NewRecorder()
	Require(ReadLedger)(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

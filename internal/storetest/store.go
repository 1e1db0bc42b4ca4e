// Package storetest provides in-memory stand-ins for the Postgres
// repositories so services can be tested without a database. Units of work
// started with Store.Begin are serialized, and rolling one back restores the
// state captured when it began.
package storetest

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linfan/backend/internal/models"
)

type memberKey struct {
	ledger, user uuid.UUID
}

type state struct {
	users        map[uuid.UUID]models.User
	ledgers      map[uuid.UUID]models.Ledger
	members      map[memberKey]models.Membership
	accounts     map[uuid.UUID]models.Account
	cards        map[uuid.UUID]models.Card
	installments map[uuid.UUID]models.Installment
	transactions map[uuid.UUID]models.Transaction
	categories   map[uuid.UUID]models.Category
	stocks       map[uuid.UUID]models.Stock
}

func newState() state {
	return state{
		users:        map[uuid.UUID]models.User{},
		ledgers:      map[uuid.UUID]models.Ledger{},
		members:      map[memberKey]models.Membership{},
		accounts:     map[uuid.UUID]models.Account{},
		cards:        map[uuid.UUID]models.Card{},
		installments: map[uuid.UUID]models.Installment{},
		transactions: map[uuid.UUID]models.Transaction{},
		categories:   map[uuid.UUID]models.Category{},
		stocks:       map[uuid.UUID]models.Stock{},
	}
}

// clone copies every table. Rows are values, so a shallow map copy suffices
// as long as callers never mutate pointer fields in place.
func (s state) clone() state {
	return state{
		users:        maps.Clone(s.users),
		ledgers:      maps.Clone(s.ledgers),
		members:      maps.Clone(s.members),
		accounts:     maps.Clone(s.accounts),
		cards:        maps.Clone(s.cards),
		installments: maps.Clone(s.installments),
		transactions: maps.Clone(s.transactions),
		categories:   maps.Clone(s.categories),
		stocks:       maps.Clone(s.stocks),
	}
}

// Store is the shared in-memory database.
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	data   state
	faults map[string]error
	clock  time.Time

	// Begins counts units of work; Rollbacks counts those undone.
	Begins    int
	Rollbacks int
}

func New() *Store {
	return &Store{
		data:   newState(),
		faults: map[string]error{},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FailOn makes the next call of the named repository method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = err
}

// fault consumes an injected failure. Caller holds s.mu.
func (s *Store) fault(method string) error {
	if err, ok := s.faults[method]; ok {
		delete(s.faults, method)
		return err
	}
	return nil
}

// tick returns a strictly increasing timestamp. Caller holds s.mu.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// Begin starts a unit of work. It blocks while another one is open.
func (s *Store) Begin(context.Context) (pgx.Tx, error) {
	s.txMu.Lock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Begin"); err != nil {
		s.txMu.Unlock()
		return nil, err
	}
	s.Begins++
	return &Tx{store: s, snapshot: s.data.clone()}, nil
}

func (s *Store) Users() *Users               { return &Users{s} }
func (s *Store) Ledgers() *Ledgers           { return &Ledgers{s} }
func (s *Store) Members() *Members           { return &Members{s} }
func (s *Store) Accounts() *Accounts         { return &Accounts{s} }
func (s *Store) Cards() *Cards               { return &Cards{s} }
func (s *Store) Installments() *Installments { return &Installments{s} }
func (s *Store) Transactions() *Transactions { return &Transactions{s} }
func (s *Store) Categories() *Categories     { return &Categories{s} }
func (s *Store) Stocks() *Stocks             { return &Stocks{s} }

// Balance returns the stored balance of account id.
func (s *Store) Balance(id uuid.UUID) models.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.accounts[id].Balance
}

// TransactionCount returns the number of stored transactions.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.transactions)
}

// InstallmentCount returns the number of stored installment plans.
func (s *Store) InstallmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.installments)
}

// SeedUser stores u, assigning an id when missing.
func (s *Store) SeedUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ExternalID == "" {
		u.ExternalID = u.ID.String()
	}
	u.CreatedAt, u.UpdatedAt = s.tick(), s.clock
	s.data.users[u.ID] = u
	return u
}

// SeedLedger stores a ledger with the given members.
func (s *Store) SeedLedger(l models.Ledger, members map[uuid.UUID]models.Role) models.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = s.tick()
	s.data.ledgers[l.ID] = l
	for uid, role := range members {
		s.data.members[memberKey{l.ID, uid}] = models.Membership{LedgerID: l.ID, UserID: uid, Role: role, LastAccessedAt: s.tick()}
	}
	return l
}

// SeedAccount stores a, assigning an id when missing.
func (s *Store) SeedAccount(a models.Account) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Kind == "" {
		a.Kind = models.AccountBank
	}
	if a.Currency == "" {
		a.Currency = models.DefaultCurrency
	}
	a.CreatedAt, a.UpdatedAt = s.tick(), s.clock
	s.data.accounts[a.ID] = a
	return a
}

// SeedCard stores c, assigning an id when missing.
func (s *Store) SeedCard(c models.Card) models.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.BillingDay == 0 {
		c.BillingDay, c.PaymentDay = 5, 20
	}
	c.CreatedAt = s.tick()
	s.data.cards[c.ID] = c
	return c
}

package storetest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
)

var errReferenced = apperr.Conflict("still referenced by other records")

// --- users ---

type Users struct{ s *Store }

func (r *Users) Upsert(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Users.Upsert"); err != nil {
		return err
	}
	for id, existing := range r.s.data.users {
		if existing.ExternalID == u.ExternalID {
			if u.Email != "" {
				existing.Email = u.Email
			}
			existing.UpdatedAt = r.s.tick()
			r.s.data.users[id] = existing
			*u = existing
			return nil
		}
	}
	u.CreatedAt = r.s.tick()
	u.UpdatedAt = u.CreatedAt
	r.s.data.users[u.ID] = *u
	return nil
}

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &u, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.data.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// --- ledgers ---

type Ledgers struct{ s *Store }

func (r *Ledgers) CreateTx(_ context.Context, _ pgx.Tx, l *models.Ledger) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Ledgers.CreateTx"); err != nil {
		return err
	}
	l.CreatedAt = r.s.tick()
	r.s.data.ledgers[l.ID] = *l
	return nil
}

func (r *Ledgers) GetByID(_ context.Context, id uuid.UUID) (*models.Ledger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.data.ledgers[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &l, nil
}

func (r *Ledgers) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Ledger, error) {
	return r.GetByID(ctx, id)
}

func (r *Ledgers) UpdateTx(_ context.Context, _ pgx.Tx, l *models.Ledger) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.ledgers[l.ID]; !ok {
		return apperr.ErrNotFound
	}
	r.s.data.ledgers[l.ID] = *l
	return nil
}

func (r *Ledgers) ListForUser(_ context.Context, userID uuid.UUID) ([]models.LedgerSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []models.LedgerSummary
	for k, m := range r.s.data.members {
		if k.user != userID {
			continue
		}
		l := r.s.data.ledgers[k.ledger]
		list = append(list, models.LedgerSummary{
			ID: l.ID, Name: l.Name, Role: m.Role, LastAccessedAt: m.LastAccessedAt, HasPassword: l.HasPassword(),
		})
	}
	slices.SortFunc(list, func(a, b models.LedgerSummary) int { return b.LastAccessedAt.Compare(a.LastAccessedAt) })
	return list, nil
}

func (r *Ledgers) PurgeTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := &r.s.data
	for tid, t := range d.transactions {
		if t.LedgerID == id {
			delete(d.transactions, tid)
		}
	}
	if err := r.s.fault("Ledgers.PurgeTx"); err != nil {
		return err
	}
	for iid, i := range d.installments {
		if d.cards[i.CardID].LedgerID == id {
			delete(d.installments, iid)
		}
	}
	deleteWhere(d.stocks, func(v models.Stock) bool { return v.LedgerID == id })
	deleteWhere(d.cards, func(v models.Card) bool { return v.LedgerID == id })
	deleteWhere(d.accounts, func(v models.Account) bool { return v.LedgerID == id })
	deleteWhere(d.categories, func(v models.Category) bool { return v.LedgerID == id })
	deleteWhere(d.members, func(v models.Membership) bool { return v.LedgerID == id })
	delete(d.ledgers, id)
	return nil
}

func deleteWhere[K comparable, V any](m map[K]V, match func(V) bool) {
	for k, v := range m {
		if match(v) {
			delete(m, k)
		}
	}
}

// --- memberships ---

type Members struct{ s *Store }

func (r *Members) AddTx(_ context.Context, _ pgx.Tx, m *models.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := memberKey{m.LedgerID, m.UserID}
	if _, ok := r.s.data.members[k]; ok {
		return apperr.Conflict("already exists")
	}
	m.LastAccessedAt = r.s.tick()
	r.s.data.members[k] = *m
	return nil
}

func (r *Members) Get(_ context.Context, ledgerID, userID uuid.UUID) (*models.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.data.members[memberKey{ledgerID, userID}]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &m, nil
}

func (r *Members) Access(_ context.Context, ledgerID, userID uuid.UUID) (*models.MemberAccess, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Members.Access"); err != nil {
		return nil, err
	}
	m, ok := r.s.data.members[memberKey{ledgerID, userID}]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	l := r.s.data.ledgers[ledgerID]
	return &models.MemberAccess{Membership: m, HasPassword: l.HasPassword()}, nil
}

func (r *Members) List(_ context.Context, ledgerID uuid.UUID) ([]models.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []models.Member
	for k, m := range r.s.data.members {
		if k.ledger != ledgerID {
			continue
		}
		u := r.s.data.users[k.user]
		list = append(list, models.Member{UserID: u.ID, Email: u.Email, Name: u.Name, Role: m.Role, LastAccessedAt: m.LastAccessedAt})
	}
	rank := map[models.Role]int{models.RoleOwner: 0, models.RoleEditor: 1, models.RoleViewer: 2}
	slices.SortFunc(list, func(a, b models.Member) int {
		return cmp.Or(cmp.Compare(rank[a.Role], rank[b.Role]), cmp.Compare(a.Name, b.Name))
	})
	return list, nil
}

func (r *Members) UpdateRole(_ context.Context, ledgerID, userID uuid.UUID, role models.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := memberKey{ledgerID, userID}
	m, ok := r.s.data.members[k]
	if !ok {
		return apperr.ErrNotFound
	}
	m.Role = role
	r.s.data.members[k] = m
	return nil
}

func (r *Members) Remove(_ context.Context, ledgerID, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := memberKey{ledgerID, userID}
	if _, ok := r.s.data.members[k]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.s.data.members, k)
	return nil
}

func (r *Members) TouchMembership(_ context.Context, ledgerID, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := memberKey{ledgerID, userID}
	if m, ok := r.s.data.members[k]; ok && m.LastAccessedAt.Before(at) {
		m.LastAccessedAt = at
		r.s.data.members[k] = m
	}
	return nil
}

// --- accounts ---

type Accounts struct{ s *Store }

func (r *Accounts) Create(_ context.Context, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.CreatedAt = r.s.tick()
	a.UpdatedAt = a.CreatedAt
	r.s.data.accounts[a.ID] = *a
	return nil
}

func (r *Accounts) get(ledgerID, id uuid.UUID) (*models.Account, error) {
	a, ok := r.s.data.accounts[id]
	if !ok || a.LedgerID != ledgerID {
		return nil, apperr.ErrNotFound
	}
	return &a, nil
}

func (r *Accounts) Get(_ context.Context, ledgerID, id uuid.UUID) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(ledgerID, id)
}

func (r *Accounts) GetTx(ctx context.Context, _ pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error) {
	return r.Get(ctx, ledgerID, id)
}

func (r *Accounts) GetForUpdate(ctx context.Context, _ pgx.Tx, ledgerID, id uuid.UUID) (*models.Account, error) {
	return r.Get(ctx, ledgerID, id)
}

func (r *Accounts) List(_ context.Context, ledgerID uuid.UUID) ([]*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Account
	for _, a := range r.s.data.accounts {
		if a.LedgerID == ledgerID {
			list = append(list, &a)
		}
	}
	slices.SortFunc(list, func(a, b *models.Account) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return list, nil
}

func (r *Accounts) UpdateTx(_ context.Context, _ pgx.Tx, a *models.Account, balance *models.Amount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, err := r.get(a.LedgerID, a.ID)
	if err != nil {
		return err
	}
	a.Balance = cur.Balance
	if balance != nil {
		a.Balance = *balance
	}
	a.UpdatedAt = r.s.tick()
	r.s.data.accounts[a.ID] = *a
	return nil
}

func (r *Accounts) Delete(_ context.Context, ledgerID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.get(ledgerID, id); err != nil {
		return err
	}
	for _, t := range r.s.data.transactions {
		if (t.SourceAccountID != nil && *t.SourceAccountID == id) || (t.DestinationAccountID != nil && *t.DestinationAccountID == id) {
			return errReferenced
		}
	}
	delete(r.s.data.accounts, id)
	return nil
}

func (r *Accounts) AdjustBalance(_ context.Context, _ pgx.Tx, ledgerID, id uuid.UUID, delta models.Amount) (models.Amount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Accounts.AdjustBalance"); err != nil {
		return 0, err
	}
	a, err := r.get(ledgerID, id)
	if err != nil {
		return 0, err
	}
	a.Balance += delta
	r.s.data.accounts[id] = *a
	return a.Balance, nil
}

func (r *Accounts) DeductIfSufficient(_ context.Context, _ pgx.Tx, ledgerID, id uuid.UUID, amount models.Amount) (models.Amount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, err := r.get(ledgerID, id)
	if err != nil || a.Balance < amount {
		return 0, apperr.ErrInsufficientFunds
	}
	a.Balance -= amount
	r.s.data.accounts[id] = *a
	return a.Balance, nil
}

// --- cards ---

type Cards struct{ s *Store }

func (r *Cards) Create(_ context.Context, c *models.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.CreatedAt = r.s.tick()
	r.s.data.cards[c.ID] = *c
	return nil
}

func (r *Cards) Get(_ context.Context, ledgerID, id uuid.UUID) (*models.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.cards[id]
	if !ok || c.LedgerID != ledgerID {
		return nil, apperr.ErrNotFound
	}
	return &c, nil
}

func (r *Cards) GetForShare(ctx context.Context, _ pgx.Tx, ledgerID, id uuid.UUID) (*models.Card, error) {
	return r.Get(ctx, ledgerID, id)
}

func (r *Cards) GetForUpdate(ctx context.Context, _ pgx.Tx, ledgerID, id uuid.UUID) (*models.Card, error) {
	return r.Get(ctx, ledgerID, id)
}

func (r *Cards) List(_ context.Context, ledgerID uuid.UUID, includeDeleted bool) ([]*models.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Card
	for _, c := range r.s.data.cards {
		if c.LedgerID == ledgerID && (includeDeleted || !c.Closed()) {
			list = append(list, &c)
		}
	}
	slices.SortFunc(list, func(a, b *models.Card) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return list, nil
}

func (r *Cards) Update(_ context.Context, c *models.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.data.cards[c.ID]
	if !ok || old.LedgerID != c.LedgerID || old.Closed() {
		return apperr.ErrNotFound
	}
	r.s.data.cards[c.ID] = *c
	return nil
}

func (r *Cards) SoftDeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.cards[id]
	if !ok || c.Closed() {
		return apperr.ErrNotFound
	}
	c.DeletedAt = &at
	r.s.data.cards[id] = c
	return nil
}

func (r *Cards) Liability(_ context.Context, cardID uuid.UUID) (models.Amount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total models.Amount
	for _, t := range r.s.data.transactions {
		total += models.LiabilityDelta(cardID, &t)
	}
	return total, nil
}

func (r *Cards) LiabilityTx(ctx context.Context, _ pgx.Tx, cardID uuid.UUID) (models.Amount, error) {
	return r.Liability(ctx, cardID)
}

// --- installments ---

type Installments struct{ s *Store }

func (r *Installments) CreateTx(_ context.Context, _ pgx.Tx, i *models.Installment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.installments[i.ID] = *i
	return nil
}

func (r *Installments) GetTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Installment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.data.installments[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &i, nil
}

func (r *Installments) UpdateTx(_ context.Context, _ pgx.Tx, i *models.Installment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.installments[i.ID]; !ok {
		return apperr.ErrNotFound
	}
	r.s.data.installments[i.ID] = *i
	return nil
}

func (r *Installments) DeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.installments[id]; !ok {
		return apperr.ErrNotFound
	}
	for _, t := range r.s.data.transactions {
		if t.InstallmentID != nil && *t.InstallmentID == id {
			return errReferenced
		}
	}
	delete(r.s.data.installments, id)
	return nil
}

func (r *Installments) ListByCard(_ context.Context, cardID uuid.UUID) ([]*models.Installment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Installment
	for _, i := range r.s.data.installments {
		if i.CardID == cardID {
			list = append(list, &i)
		}
	}
	slices.SortFunc(list, func(a, b *models.Installment) int { return b.StartDate.Compare(a.StartDate) })
	return list, nil
}

func (r *Installments) SetRemaining(_ context.Context, id uuid.UUID, remaining int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i, ok := r.s.data.installments[id]; ok {
		i.RemainingMonths = remaining
		r.s.data.installments[id] = i
	}
	return nil
}

// --- transactions ---

type Transactions struct{ s *Store }

func (r *Transactions) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("Transactions.CreateTx"); err != nil {
		return err
	}
	t.CreatedAt = r.s.tick()
	t.UpdatedAt = t.CreatedAt
	r.s.data.transactions[t.ID] = *t
	return nil
}

func (r *Transactions) Get(_ context.Context, ledgerID, id uuid.UUID) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.transactions[id]
	if !ok || t.LedgerID != ledgerID {
		return nil, apperr.ErrNotFound
	}
	if err := t.Infer(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Transactions) GetForUpdate(ctx context.Context, _ pgx.Tx, ledgerID, id uuid.UUID) (*models.Transaction, error) {
	return r.Get(ctx, ledgerID, id)
}

func (r *Transactions) UpdateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.data.transactions[t.ID]
	if !ok || old.LedgerID != t.LedgerID {
		return apperr.ErrNotFound
	}
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = r.s.tick()
	r.s.data.transactions[t.ID] = *t
	return nil
}

func (r *Transactions) DeleteTx(_ context.Context, _ pgx.Tx, ledgerID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.transactions[id]
	if !ok || t.LedgerID != ledgerID {
		return apperr.ErrNotFound
	}
	delete(r.s.data.transactions, id)
	return nil
}

func (r *Transactions) List(_ context.Context, ledgerID uuid.UUID, f models.TransactionFilter) ([]*models.Transaction, error) {
	f = f.Normalize()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Transaction
	for _, t := range r.s.data.transactions {
		if t.LedgerID != ledgerID || !f.Matches(&t) {
			continue
		}
		if err := t.Infer(); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	slices.SortFunc(list, func(a, b *models.Transaction) int {
		return cmp.Or(b.Date.Compare(a.Date), b.CreatedAt.Compare(a.CreatedAt))
	})
	if f.Offset >= len(list) {
		return nil, nil
	}
	list = list[f.Offset:]
	if len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

func (r *Transactions) SpendingSince(_ context.Context, ledgerID uuid.UUID, since time.Time) (models.Amount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total models.Amount
	for _, t := range r.s.data.transactions {
		if t.LedgerID != ledgerID || t.Date.Before(since) {
			continue
		}
		if err := t.Infer(); err == nil && t.IsExpense() {
			total += t.Amount
		}
	}
	return total, nil
}

// --- categories ---

type Categories struct{ s *Store }

func (r *Categories) Create(_ context.Context, c *models.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.categories[c.ID] = *c
	return nil
}

func (r *Categories) SeedTx(_ context.Context, _ pgx.Tx, ledgerID uuid.UUID, cs []*models.Category) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.data.categories {
		if c.LedgerID == ledgerID {
			return 0, nil
		}
	}
	for _, c := range cs {
		r.s.data.categories[c.ID] = *c
	}
	return len(cs), nil
}

func (r *Categories) Get(_ context.Context, ledgerID, id uuid.UUID) (*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.categories[id]
	if !ok || c.LedgerID != ledgerID {
		return nil, apperr.ErrNotFound
	}
	return &c, nil
}

func (r *Categories) List(_ context.Context, ledgerID uuid.UUID) ([]*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Category
	for _, c := range r.s.data.categories {
		if c.LedgerID == ledgerID {
			list = append(list, &c)
		}
	}
	slices.SortFunc(list, func(a, b *models.Category) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Name, b.Name))
	})
	return list, nil
}

// --- stocks ---

type Stocks struct{ s *Store }

func (r *Stocks) LockTx(_ context.Context, _ pgx.Tx, ledgerID uuid.UUID, ticker, owner string) (*models.Stock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.data.stocks {
		if st.LedgerID == ledgerID && st.Ticker == ticker && st.OwnerLabel == owner {
			return &st, nil
		}
	}
	st := models.Stock{ID: uuid.New(), LedgerID: ledgerID, Ticker: ticker, OwnerLabel: owner}
	r.s.data.stocks[st.ID] = st
	return &st, nil
}

func (r *Stocks) UpdateTx(_ context.Context, _ pgx.Tx, st *models.Stock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.stocks[st.ID]; !ok {
		return apperr.ErrNotFound
	}
	r.s.data.stocks[st.ID] = *st
	return nil
}

func (r *Stocks) DeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.stocks[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.s.data.stocks, id)
	return nil
}

func (r *Stocks) List(_ context.Context, ledgerID uuid.UUID) ([]*models.Stock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Stock
	for _, st := range r.s.data.stocks {
		if st.LedgerID == ledgerID && st.Shares > 0 {
			list = append(list, &st)
		}
	}
	slices.SortFunc(list, func(a, b *models.Stock) int {
		return cmp.Or(cmp.Compare(a.OwnerLabel, b.OwnerLabel), cmp.Compare(a.Ticker, b.Ticker))
	})
	return list, nil
}

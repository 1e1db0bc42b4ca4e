package storetest

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx satisfies pgx.Tx. Only Commit and Rollback have behavior; the fake
// repositories ignore the handle they are given.
type Tx struct {
	store    *Store
	snapshot state
	done     bool
}

var _ pgx.Tx = (*Tx)(nil)

func (t *Tx) finish(restore bool) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	if restore {
		t.store.data = t.snapshot
		t.store.Rollbacks++
	}
	t.store.mu.Unlock()
	t.store.txMu.Unlock()
	return nil
}

func (t *Tx) Commit(context.Context) error {
	t.store.mu.Lock()
	err := t.store.fault("Commit")
	t.store.mu.Unlock()
	if err != nil {
		_ = t.finish(true)
		return err
	}
	return t.finish(false)
}

func (t *Tx) Rollback(context.Context) error { return t.finish(true) }

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *Tx) Conn() *pgx.Conn { return nil }

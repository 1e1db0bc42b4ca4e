package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMembers struct {
	ledger, user uuid.UUID
	at           time.Time
}

func (r *recordingMembers) TouchMembership(_ context.Context, ledgerID, userID uuid.UUID, at time.Time) error {
	r.ledger, r.user, r.at = ledgerID, userID, at
	return nil
}

func TestTouchMembershipWorker_UsesJobCreationTime(t *testing.T) {
	members := &recordingMembers{}
	w := NewTouchMembershipWorker(members)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	args := TouchMembershipArgs{LedgerID: uuid.New(), UserID: uuid.New()}

	err := w.Work(context.Background(), &river.Job[TouchMembershipArgs]{
		JobRow: &rivertype.JobRow{CreatedAt: created},
		Args:   args,
	})
	require.NoError(t, err)
	assert.Equal(t, args.LedgerID, members.ledger)
	assert.Equal(t, args.UserID, members.user)
	assert.Equal(t, created, members.at)
}

func TestTouchMembershipArgs_UniquePerMinute(t *testing.T) {
	opts := TouchMembershipArgs{}.InsertOpts()
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Equal(t, time.Minute, opts.UniqueOpts.ByPeriod)
	assert.Equal(t, "touch_membership", TouchMembershipArgs{}.Kind())
}

type stubInserter struct {
	mu   sync.Mutex
	args []river.JobArgs
	err  error
	done chan struct{}
}

func (s *stubInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	s.mu.Lock()
	s.args = append(s.args, args)
	s.mu.Unlock()
	s.done <- struct{}{}
	return &rivertype.JobInsertResult{}, s.err
}

func TestQueueToucher_DoesNotPropagateFailures(t *testing.T) {
	ins := &stubInserter{err: errors.New("queue down"), done: make(chan struct{}, 1)}
	toucher := NewQueueToucher(ins, nil)

	ctx, cancel := context.WithCancel(context.Background())
	toucher.Touch(ctx, uuid.New(), uuid.New())
	cancel()

	select {
	case <-ins.done:
	case <-time.After(time.Second):
		t.Fatal("touch was never enqueued")
	}
	ins.mu.Lock()
	defer ins.mu.Unlock()
	require.Len(t, ins.args, 1)
	assert.IsType(t, TouchMembershipArgs{}, ins.args[0])
}

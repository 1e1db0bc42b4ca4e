package access

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Toucher records that a member used a ledger. Implementations must not block
// the request and must not report failure to it.
type Toucher interface {
	Touch(ctx context.Context, ledgerID, userID uuid.UUID)
}

// TouchMembershipArgs is the River job recording a ledger access.
type TouchMembershipArgs struct {
	LedgerID uuid.UUID `json:"ledger_id"`
	UserID   uuid.UUID `json:"user_id"`
}

func (TouchMembershipArgs) Kind() string { return "touch_membership" }

// InsertOpts coalesces bursts of requests from one member into one job per minute.
func (TouchMembershipArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true, ByPeriod: time.Minute},
	}
}

// MembershipToucher persists the access time.
type MembershipToucher interface {
	TouchMembership(ctx context.Context, ledgerID, userID uuid.UUID, at time.Time) error
}

// TouchMembershipWorker applies queued touches.
type TouchMembershipWorker struct {
	river.WorkerDefaults[TouchMembershipArgs]
	members MembershipToucher
}

func NewTouchMembershipWorker(members MembershipToucher) *TouchMembershipWorker {
	return &TouchMembershipWorker{members: members}
}

// Work stamps the job's creation time so a late run never moves the
// timestamp past the actual access.
func (w *TouchMembershipWorker) Work(ctx context.Context, job *river.Job[TouchMembershipArgs]) error {
	return w.members.TouchMembership(ctx, job.Args.LedgerID, job.Args.UserID, job.CreatedAt)
}

// JobInserter is the subset of *river.Client used to enqueue touches.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// QueueToucher enqueues touch jobs in the background.
type QueueToucher struct {
	inserter JobInserter
	timeout  time.Duration
	log      *slog.Logger
}

func NewQueueToucher(inserter JobInserter, log *slog.Logger) *QueueToucher {
	if log == nil {
		log = slog.Default()
	}
	return &QueueToucher{inserter: inserter, timeout: 5 * time.Second, log: log}
}

var _ Toucher = (*QueueToucher)(nil)

func (t *QueueToucher) Touch(ctx context.Context, ledgerID, userID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		if _, err := t.inserter.Insert(ctx, TouchMembershipArgs{LedgerID: ledgerID, UserID: userID}, nil); err != nil {
			t.log.Warn("enqueue membership touch", "ledger_id", ledgerID, "user_id", userID, "error", err)
		}
	}()
}

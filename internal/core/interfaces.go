// Package core defines the ports between the bulk job services and their stores.
package core

import (
	"context"
	"time"

	"github.com/target/bulkmail/internal/domain/model"
)

// JobRepository defines the durable job record operations.
// Executor writes are fenced by the run token handed out by Claim.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	GetForOwner(ctx context.Context, id, ownerID string) (*model.Job, error)
	ListByOwner(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	// Claim atomically moves a pending job to processing. It returns false when
	// the job is not pending (already claimed, stopped, or finished).
	Claim(ctx context.Context, id string) (*model.Job, bool, error)
	// ReserveNext claims the oldest pending job of kind or returns model.ErrNoJobsAvailable.
	ReserveNext(ctx context.Context, kind model.JobKind) (*model.Job, error)
	WaitForNotification(ctx context.Context, kind model.JobKind) error
	Status(ctx context.Context, id string) (model.JobStatus, error)
	// Checkpoint persists progress for the run identified by ref. It is accepted
	// while the job is processing or was paused mid-run, so credits debited
	// before a stop are never lost from the checkpoint.
	Checkpoint(ctx context.Context, ref model.RunRef, cp model.Checkpoint) (bool, error)
	Heartbeat(ctx context.Context, ref model.RunRef) (bool, error)
	Complete(ctx context.Context, ref model.RunRef) (bool, error)
	Fail(ctx context.Context, ref model.RunRef, errMsg string) (bool, error)
	// MarkRecorded notes that charges up to recorded were written to the ledger.
	MarkRecorded(ctx context.Context, id string, recorded int64) error
	Stop(ctx context.Context, id, ownerID string) (*model.Job, error)
	Resume(ctx context.Context, id, ownerID string) (*model.Job, error)
}

// RequeueStaleParams groups parameters for RequeueStale.
type RequeueStaleParams struct {
	StaleAfter time.Duration
	Limit      int
}

// RetryFailedParams groups parameters for RetryFailed.
type RetryFailedParams struct {
	RetryAfter time.Duration
	MaxResumes int
	Limit      int
}

// JobRecoveryRepository defines the sweeps used by the recovery daemon.
// Paused jobs are never selected.
type JobRecoveryRepository interface {
	RequeueStale(ctx context.Context, params RequeueStaleParams) ([]model.RequeuedJob, error)
	RetryFailed(ctx context.Context, params RetryFailedParams) ([]model.RequeuedJob, error)
}

// CreditLedger is the only path through which balances change.
type CreditLedger interface {
	// CheckAndDebit atomically verifies the combined balance and debits the
	// kind's preferred pool first. It returns false without mutating anything
	// when the balance is short.
	CheckAndDebit(ctx context.Context, req model.DebitRequest) (bool, error)
	RecordTransaction(ctx context.Context, req model.RecordTransactionRequest) (*model.CreditTransaction, error)
}

// CreditAccountRepository exposes read access to accounts and the ledger.
type CreditAccountRepository interface {
	GetAccount(ctx context.Context, ownerID string) (*model.CreditAccount, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]*model.CreditTransaction, error)
}

// LookupClient is the external finder/verifier.
type LookupClient interface {
	Find(ctx context.Context, in model.ItemInput) (*model.LookupResult, error)
	Verify(ctx context.Context, email string) (*model.LookupResult, error)
}

// JobTrigger starts execution of a job without blocking the caller.
type JobTrigger interface {
	Trigger(ctx context.Context, job model.RequeuedJob)
}

// IdempotencyStore remembers which job a client-supplied key produced.
type IdempotencyStore interface {
	// Reserve claims key for an in-flight submission. When the key is already
	// taken it returns the stored value and false.
	Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Bind(ctx context.Context, key, jobID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/data"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/testutil"
)

func TestLedger_SpillsIntoOtherPool(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	require.NoError(t, l.UpsertAccount(ctx, testutil.NewAccount("o", 2, 5).Build()))

	for range 3 {
		ok, err := l.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "o", Kind: model.JobKindFind, Amount: 1})
		require.NoError(t, err)
		require.True(t, ok)
	}

	acct, err := l.GetAccount(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.FindCredits)
	assert.Equal(t, int64(4), acct.VerifyCredits)
}

func TestLedger_ConcurrentDebitsAdmitAtMostBalance(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	const balance, callers = 7, 50
	require.NoError(t, l.UpsertAccount(ctx, testutil.NewAccount("o", 4, 3).Build()))

	results := make([]bool, callers)
	fns := make([]func() error, callers)
	for i := range fns {
		kind := model.JobKindFind
		if i%2 == 0 {
			kind = model.JobKindVerify
		}
		fns[i] = func() error {
			ok, err := l.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "o", Kind: kind, Amount: 1})
			results[i] = ok
			return err
		}
	}
	for _, err := range testutil.RunConcurrent(fns...) {
		require.NoError(t, err)
	}

	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	assert.Equal(t, balance, n)
	acct, err := l.GetAccount(ctx, "o")
	require.NoError(t, err)
	assert.Zero(t, acct.FindCredits)
	assert.Zero(t, acct.VerifyCredits)
}

func TestLedger_RejectsWithoutMutation(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	require.NoError(t, l.UpsertAccount(ctx, testutil.NewAccount("o", 1, 1).Build()))

	ok, err := l.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "o", Kind: model.JobKindVerify, Amount: 3})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "missing", Kind: model.JobKindVerify, Amount: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.CheckAndDebit(ctx, model.DebitRequest{OwnerID: "o", Kind: model.JobKindVerify, Amount: 0})
	require.Error(t, err)

	acct, err := l.GetAccount(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, int64(2), acct.Available())
}

func TestLedger_ListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	l := NewLedger(clock)

	for _, amt := range []int64{-1, -2, -3} {
		_, err := l.RecordTransaction(ctx, model.RecordTransactionRequest{OwnerID: "o", Amount: amt, Operation: model.CreditOperationBulkFind})
		require.NoError(t, err)
		clock.AddTime(time.Second)
	}
	_, err := l.RecordTransaction(ctx, model.RecordTransactionRequest{OwnerID: "other", Amount: -9})
	require.NoError(t, err)

	txs, err := l.ListTransactions(ctx, "o", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-3), txs[0].Amount)
	assert.Equal(t, int64(-2), txs[1].Amount)
	assert.JSONEq(t, `{}`, string(txs[0].Metadata))
}

func TestJobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	s := NewJobStore(clock)

	job, err := s.Create(ctx, testutil.NewJob(3).Build())
	require.NoError(t, err)

	claimed, ok, err := s.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Mutating a returned copy does not leak into the store.
	claimed.Items[0].Status = model.ItemStatusCompleted
	stored, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusPending, stored.Items[0].Status)

	ok, err = s.Checkpoint(ctx, claimed.Ref(), model.Checkpoint{
		Items: claimed.Items, CurrentIndex: 1, ProcessedCount: 1, SuccessCount: 1, ChargedCredits: 1,
	})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Checkpoint(ctx, claimed.Ref(), model.Checkpoint{Items: claimed.Items, ProcessedCount: 1})
	require.Error(t, err, "counters must add up")

	clock.AddTime(time.Minute)
	ok, err = s.Complete(ctx, claimed.Ref())
	require.NoError(t, err)
	require.True(t, ok)

	done, err := s.GetForOwner(ctx, job.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = s.GetForOwner(ctx, job.ID, "owner-2")
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestJobStore_RecoveryNeverTouchesPaused(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	s := NewJobStore(clock)

	running, err := s.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)
	_, _, err = s.Claim(ctx, running.ID)
	require.NoError(t, err)

	paused, err := s.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)
	_, _, err = s.Claim(ctx, paused.ID)
	require.NoError(t, err)
	_, err = s.Stop(ctx, paused.ID, "owner-1")
	require.NoError(t, err)

	clock.AddTime(time.Hour)
	requeued, err := s.RequeueStale(ctx, core.RequeueStaleParams{StaleAfter: time.Minute})
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, running.ID, requeued[0].ID)

	status, err := s.Status(ctx, paused.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, status)
}

func TestJobStore_CompleteAfterStopAtEnd(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(data.NewFixedTimeProvider(testutil.TestTime()))

	job, err := s.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)
	claimed, _, err := s.Claim(ctx, job.ID)
	require.NoError(t, err)
	_, err = s.Stop(ctx, job.ID, "owner-1")
	require.NoError(t, err)

	ok, err := s.Checkpoint(ctx, claimed.Ref(), model.Checkpoint{
		Items: claimed.Items, CurrentIndex: 1, ProcessedCount: 1, SuccessCount: 1, ChargedCredits: 1,
	})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Complete(ctx, claimed.Ref())
	require.NoError(t, err)
	assert.False(t, ok, "items remain")

	ok, err = s.Checkpoint(ctx, claimed.Ref(), model.Checkpoint{
		Items: claimed.Items, CurrentIndex: 2, ProcessedCount: 2, SuccessCount: 2, ChargedCredits: 2,
	})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Complete(ctx, claimed.Ref())
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := s.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, status)
}

func TestJobStore_RetryFailedWithUnrecordedCredits(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	s := NewJobStore(clock)

	job, err := s.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)
	claimed, _, err := s.Claim(ctx, job.ID)
	require.NoError(t, err)
	ok, err := s.Checkpoint(ctx, claimed.Ref(), model.Checkpoint{
		Items: claimed.Items, CurrentIndex: 2, ProcessedCount: 2, SuccessCount: 2, ChargedCredits: 2,
	})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Fail(ctx, claimed.Ref(), "record credit transaction: ledger unavailable")
	require.NoError(t, err)
	require.True(t, ok)

	params := core.RetryFailedParams{RetryAfter: time.Minute, MaxResumes: 3}
	clock.AddTime(time.Hour)
	requeued, err := s.RetryFailed(ctx, params)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, 2, requeued[0].CurrentIndex)

	// Once the charge is recorded there is nothing left to retry.
	claimed, _, err = s.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, s.MarkRecorded(ctx, job.ID, 2))
	_, err = s.Fail(ctx, claimed.Ref(), "complete job: timeout")
	require.NoError(t, err)
	clock.AddTime(time.Hour)
	requeued, err = s.RetryFailed(ctx, params)
	require.NoError(t, err)
	assert.Empty(t, requeued)
	_, err = s.Resume(ctx, job.ID, "owner-1")
	require.ErrorIs(t, err, model.ErrJobNotResumable)
}

func TestJobStore_WaitForNotification(t *testing.T) {
	s := NewJobStore(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.WaitForNotification(ctx, model.JobKindVerify) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, waiting := s.ready[model.JobKindVerify]
		return waiting
	}, time.Second, 5*time.Millisecond)

	_, err := s.Create(context.Background(), testutil.NewJob(1).WithKind(model.JobKindVerify).Build())
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestIdempotency_ReserveBindRelease(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	s := NewIdempotency(clock)

	_, ok, err := s.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	v, ok, err := s.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, data.IdempotencyPending, v)

	require.NoError(t, s.Bind(ctx, "k", "job-1", time.Minute))
	v, _, err = s.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "job-1", v)

	clock.AddTime(2 * time.Minute)
	_, ok, err = s.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired entries are reclaimable")

	require.NoError(t, s.Release(ctx, "k"))
}

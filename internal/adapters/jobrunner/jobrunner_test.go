package jobrunner

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bulkmail/internal/data"
	"github.com/target/bulkmail/internal/data/memstore"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/service"
	"github.com/target/bulkmail/internal/testutil"
)

// gatedLookup answers valid once gate is closed, or when the caller gives up.
type gatedLookup struct {
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedLookup) wait(ctx context.Context) (*model.LookupResult, error) {
	g.calls.Add(1)
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &model.LookupResult{Status: model.LookupStatusValid}, nil
}

func (g *gatedLookup) Find(ctx context.Context, _ model.ItemInput) (*model.LookupResult, error) {
	return g.wait(ctx)
}

func (g *gatedLookup) Verify(ctx context.Context, _ string) (*model.LookupResult, error) {
	return g.wait(ctx)
}

type fixture struct {
	jobs   *memstore.JobStore
	ledger *memstore.Ledger
	lookup *gatedLookup
	exec   *service.Executor
}

func newFixture(t *testing.T, lookup *gatedLookup) *fixture {
	t.Helper()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	f := &fixture{
		jobs:   memstore.NewJobStore(clock),
		ledger: memstore.NewLedger(clock),
		lookup: lookup,
	}
	require.NoError(t, f.ledger.UpsertAccount(context.Background(), testutil.NewAccount("owner-1", 100, 100).Build()))
	exec, err := service.NewExecutor(service.ExecutorOptions{
		Jobs:      f.jobs,
		Ledger:    f.ledger,
		Lookup:    lookup,
		BatchSize: 1,
		Logger:    slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	f.exec = exec
	return f
}

func (f *fixture) status(id string) model.JobStatus {
	s, err := f.jobs.Status(context.Background(), id)
	if err != nil {
		return ""
	}
	return s
}

func TestNewRunner_Validation(t *testing.T) {
	f := newFixture(t, &gatedLookup{})

	_, err := NewRunner(RunnerOptions{Executor: f.exec, Kind: model.JobKindFind})
	require.Error(t, err)
	_, err = NewRunner(RunnerOptions{Jobs: f.jobs, Kind: model.JobKindFind})
	require.Error(t, err)
	_, err = NewRunner(RunnerOptions{Jobs: f.jobs, Executor: f.exec, Kind: "search"})
	require.Error(t, err)
}

func TestRunner_PicksUpPendingJobs(t *testing.T) {
	f := newFixture(t, &gatedLookup{})
	ctx := context.Background()

	first, err := f.jobs.Create(ctx, testutil.NewJob(3).Build())
	require.NoError(t, err)
	second, err := f.jobs.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)
	other, err := f.jobs.Create(ctx, testutil.NewJob(1).WithKind(model.JobKindVerify).Build())
	require.NoError(t, err)

	r, err := NewRunner(RunnerOptions{
		Jobs: f.jobs, Executor: f.exec, Kind: model.JobKindFind, Concurrency: 2,
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		return f.status(first.ID) == model.JobStatusCompleted && f.status(second.ID) == model.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.JobStatusPending, f.status(other.ID), "runner only reserves its own kind")
}

func TestRunner_StartTwice(t *testing.T) {
	f := newFixture(t, &gatedLookup{})
	r, err := NewRunner(RunnerOptions{Jobs: f.jobs, Executor: f.exec, Kind: model.JobKindFind})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Stop(context.Background()), "stop is idempotent")
}

func TestRunner_StopInterruptsInFlightJob(t *testing.T) {
	lookup := &gatedLookup{gate: make(chan struct{})}
	f := newFixture(t, lookup)
	ctx := context.Background()

	r, err := NewRunner(RunnerOptions{
		Jobs: f.jobs, Executor: f.exec, Kind: model.JobKindFind,
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	job, err := f.jobs.Create(ctx, testutil.NewJob(3).Build())
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx))

	require.Eventually(t, func() bool { return lookup.calls.Load() > 0 }, 2*time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))

	after, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, after.Status)
	assert.Equal(t, 1, after.CurrentIndex, "the interrupted batch is checkpointed")
	assert.Equal(t, model.ItemStatusPending, after.Items[1].Status)
}

func TestRunner_TriggerBeforeStartOnlyNotifies(t *testing.T) {
	f := newFixture(t, &gatedLookup{})
	ctx := context.Background()
	r, err := NewRunner(RunnerOptions{Jobs: f.jobs, Executor: f.exec, Kind: model.JobKindFind})
	require.NoError(t, err)

	job, err := f.jobs.Create(ctx, testutil.NewJob(1).Build())
	require.NoError(t, err)
	r.Trigger(ctx, model.RequeuedJob{ID: job.ID, Kind: model.JobKindFind})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, model.JobStatusPending, f.status(job.ID))
}

func TestPool_TriggerRoutesByKind(t *testing.T) {
	f := newFixture(t, &gatedLookup{})
	ctx := context.Background()

	pool, err := NewPool(PoolOptions{
		Jobs:        f.jobs,
		Executor:    f.exec,
		Concurrency: map[model.JobKind]int{model.JobKindFind: 0, model.JobKindVerify: 2},
		Logger:      slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	verify, err := f.jobs.Create(ctx, testutil.NewJob(2).WithKind(model.JobKindVerify).Build())
	require.NoError(t, err)
	find, err := f.jobs.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)

	pool.Trigger(ctx, model.RequeuedJob{ID: verify.ID, Kind: model.JobKindVerify})
	pool.Trigger(ctx, model.RequeuedJob{ID: find.ID, Kind: model.JobKindFind})

	require.Eventually(t, func() bool {
		return f.status(verify.ID) == model.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.JobStatusPending, f.status(find.ID), "find is disabled on this instance")
}

func TestNewPool_NoKinds(t *testing.T) {
	f := newFixture(t, &gatedLookup{})
	_, err := NewPool(PoolOptions{
		Jobs:        f.jobs,
		Executor:    f.exec,
		Concurrency: map[model.JobKind]int{model.JobKindFind: 0, model.JobKindVerify: 0},
	})
	require.Error(t, err)
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/data"
	"github.com/target/bulkmail/internal/data/memstore"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/mocks"
	"github.com/target/bulkmail/internal/testutil"
)

func newTestRecovery(t *testing.T, repo core.JobRecoveryRepository, trigger core.JobTrigger) *RecoveryService {
	t.Helper()
	policy, err := domainjob.NewStalenessPolicy(domainjob.StalenessPolicyParams{Heartbeat: time.Minute})
	require.NoError(t, err)
	svc, err := NewRecoveryService(RecoveryServiceOptions{
		Repo:             repo,
		Policy:           policy,
		Trigger:          trigger,
		Interval:         time.Minute,
		FailedRetryDelay: time.Minute,
		MaxResumes:       3,
		Logger:           slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return svc
}

func TestNewRecoveryService_RequiresDependencies(t *testing.T) {
	_, err := NewRecoveryService(RecoveryServiceOptions{})
	require.Error(t, err)

	clock := data.NewFixedTimeProvider(testutil.TestTime())
	_, err = NewRecoveryService(RecoveryServiceOptions{Repo: memstore.NewJobStore(clock)})
	require.Error(t, err)
}

func TestRecoveryService_SweepRequeuesStaleAndSparesPaused(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	jobs := memstore.NewJobStore(clock)

	claim := func(n int) *model.Job {
		job, err := jobs.Create(ctx, testutil.NewJob(n).Build())
		require.NoError(t, err)
		claimed, ok, err := jobs.Claim(ctx, job.ID)
		require.NoError(t, err)
		require.True(t, ok)
		return claimed
	}

	orphan := claim(3)
	paused := claim(3)
	_, err := jobs.Stop(ctx, paused.ID, "owner-1")
	require.NoError(t, err)

	clock.AddTime(time.Hour)
	live := claim(3)

	trigger := mocks.NewMockJobTrigger(ctrl)
	trigger.EXPECT().Trigger(gomock.Any(), model.RequeuedJob{
		ID: orphan.ID, Kind: model.JobKindFind, CurrentIndex: 0, ResumeCount: 1,
	})

	requeued, err := newTestRecovery(t, jobs, trigger).Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, orphan.ID, requeued[0].ID)

	status := func(id string) model.JobStatus {
		s, err := jobs.Status(ctx, id)
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, model.JobStatusPending, status(orphan.ID))
	assert.Equal(t, model.JobStatusPaused, status(paused.ID))
	assert.Equal(t, model.JobStatusProcessing, status(live.ID))
}

func TestRecoveryService_SweepRetriesFailedJobs(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	jobs := memstore.NewJobStore(clock)

	job, err := jobs.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)
	claimed, _, err := jobs.Claim(ctx, job.ID)
	require.NoError(t, err)
	ok, err := jobs.Fail(ctx, claimed.Ref(), "database went away")
	require.NoError(t, err)
	require.True(t, ok)

	svc := newTestRecovery(t, jobs, nil)

	requeued, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, requeued, "failed jobs rest for the retry delay first")

	clock.AddTime(2 * time.Minute)
	requeued, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, 1, requeued[0].ResumeCount)

	after, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, after.Status)
	assert.Nil(t, after.ErrorMessage)
}

func TestRecoveryService_SweepJoinsErrorsAndStillTriggers(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRecoveryRepository(ctrl)
	trigger := mocks.NewMockJobTrigger(ctrl)

	staleErr := errors.New("stale query failed")
	retried := model.RequeuedJob{ID: "job-2", Kind: model.JobKindVerify, CurrentIndex: 5, ResumeCount: 2}

	repo.EXPECT().RequeueStale(gomock.Any(), core.RequeueStaleParams{StaleAfter: 4 * time.Minute}).
		Return(nil, staleErr)
	repo.EXPECT().RetryFailed(gomock.Any(), core.RetryFailedParams{RetryAfter: time.Minute, MaxResumes: 3}).
		Return([]model.RequeuedJob{retried}, nil)
	trigger.EXPECT().Trigger(gomock.Any(), retried)

	requeued, err := newTestRecovery(t, repo, trigger).Sweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, staleErr)
	assert.Equal(t, []model.RequeuedJob{retried}, requeued)
}

func TestRecoveryService_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRecoveryRepository(ctrl)
	repo.EXPECT().RequeueStale(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	repo.EXPECT().RetryFailed(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	svc := newTestRecovery(t, repo, nil)
	assert.Equal(t, time.Minute, svc.Interval())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recovery service did not stop")
	}
}

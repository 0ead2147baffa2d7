package recovery

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/bulkmail/internal/core"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/mocks"
	"github.com/target/bulkmail/internal/service"
)

func newService(t *testing.T, repo *mocks.MockJobRecoveryRepository) *service.RecoveryService {
	t.Helper()
	policy, err := domainjob.NewStalenessPolicy(domainjob.StalenessPolicyParams{Heartbeat: time.Second})
	require.NoError(t, err)
	svc, err := service.NewRecoveryService(service.RecoveryServiceOptions{
		Repo:     repo,
		Policy:   policy,
		Interval: 10 * time.Millisecond,
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return svc
}

func TestNewRunner(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := newService(t, mocks.NewMockJobRecoveryRepository(ctrl))

	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Service: svc, Schedule: "every minute"})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Service: svc, Schedule: "*/5 * * * *"})
	require.NoError(t, err)
	assert.NotNil(t, r.schedule)
}

func TestRunner_StartSweepsUntilStopped(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRecoveryRepository(ctrl)
	swept := make(chan struct{}, 16)
	repo.EXPECT().RequeueStale(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, core.RequeueStaleParams) ([]model.RequeuedJob, error) {
			select {
			case swept <- struct{}{}:
			default:
			}
			return nil, nil
		}).MinTimes(1)
	repo.EXPECT().RetryFailed(gomock.Any(), gomock.Any()).Return(nil, nil).MinTimes(1)

	r, err := NewRunner(RunnerOptions{Service: newService(t, repo), Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	require.Error(t, r.Start(context.Background()))

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep observed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
}

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

	"github.com/target/bulkmail/internal/data"
	"github.com/target/bulkmail/internal/data/memstore"
	"github.com/target/bulkmail/internal/domain/model"
	apperrors "github.com/target/bulkmail/internal/errors"
	"github.com/target/bulkmail/internal/mocks"
	"github.com/target/bulkmail/internal/testutil"
)

type jobServiceFixture struct {
	clock  *data.FixedTimeProvider
	jobs   *memstore.JobStore
	ledger *memstore.Ledger
	idem   *memstore.Idempotency
}

func newJobServiceFixture() *jobServiceFixture {
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	return &jobServiceFixture{
		clock:  clock,
		jobs:   memstore.NewJobStore(clock),
		ledger: memstore.NewLedger(clock),
		idem:   memstore.NewIdempotency(clock),
	}
}

func (f *jobServiceFixture) service(t *testing.T, trigger *mocks.MockJobTrigger) *JobService {
	t.Helper()
	opts := JobServiceOptions{
		Jobs:        f.jobs,
		Accounts:    f.ledger,
		Idempotency: f.idem,
		MaxItems:    5,
		Now:         f.clock.Now,
		Logger:      slog.New(slog.DiscardHandler),
	}
	if trigger != nil {
		opts.Trigger = trigger
	}
	return MustNewJobService(opts)
}

func (f *jobServiceFixture) fund(t *testing.T, acct *testutil.AccountBuilder) {
	t.Helper()
	require.NoError(t, f.ledger.UpsertAccount(context.Background(), acct.Build()))
}

func TestNewJobService_RequiresDependencies(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{})
	require.Error(t, err)

	f := newJobServiceFixture()
	_, err = NewJobService(JobServiceOptions{Jobs: f.jobs})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewJobService(JobServiceOptions{}) })
}

func TestJobService_SubmitCreatesPendingJobAndTriggers(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newJobServiceFixture()
	f.fund(t, testutil.NewAccount("owner-1", 1, 2))

	trigger := mocks.NewMockJobTrigger(ctrl)
	var fired model.RequeuedJob
	trigger.EXPECT().Trigger(gomock.Any(), gomock.Any()).
		Do(func(ctx context.Context, j model.RequeuedJob) {
			assert.NoError(t, ctx.Err())
			fired = j
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := f.service(t, trigger).Submit(ctx, SubmitParams{
		OwnerID: "owner-1",
		Kind:    model.JobKindFind,
		Items: []model.ItemInput{
			{Name: "  Ada   Lovelace ", Domain: "https://www.Example.co.uk/about"},
			{Name: "Grace Hopper", Domain: "navy.mil"},
			{Name: "Alan Turing", Domain: "bletchley.org.uk"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.TotalItems)
	assert.Equal(t, "Ada Lovelace", job.Items[0].Input.Name)
	assert.Equal(t, "example.co.uk", job.Items[0].Input.Domain)
	assert.Equal(t, model.RequeuedJob{ID: job.ID, Kind: model.JobKindFind}, fired)

	acct, err := f.ledger.GetAccount(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), acct.Available(), "admission does not debit")
}

func TestJobService_SubmitAdmission(t *testing.T) {
	expired := testutil.TestTime().Add(-time.Minute)

	tests := []struct {
		name      string
		owner     string
		kind      model.JobKind
		items     []model.ItemInput
		account   *testutil.AccountBuilder
		wantCode  apperrors.ErrorCode
		wantField string
		shortfall *apperrors.CreditShortfall
	}{
		{
			name:     "missing owner",
			owner:    "  ",
			kind:     model.JobKindFind,
			items:    testutil.FindInputs(1),
			wantCode: apperrors.ErrCodeUnauthenticated,
		},
		{
			name:      "unknown kind",
			owner:     "owner-1",
			kind:      model.JobKind("search"),
			items:     testutil.FindInputs(1),
			wantCode:  apperrors.ErrCodeValidation,
			wantField: "kind",
		},
		{
			name:      "empty items",
			owner:     "owner-1",
			kind:      model.JobKindVerify,
			wantCode:  apperrors.ErrCodeValidation,
			wantField: "items",
		},
		{
			name:      "too many items",
			owner:     "owner-1",
			kind:      model.JobKindFind,
			items:     testutil.FindInputs(6),
			wantCode:  apperrors.ErrCodeValidation,
			wantField: "items",
		},
		{
			name:      "bad item reports index",
			owner:     "owner-1",
			kind:      model.JobKindVerify,
			items:     []model.ItemInput{{Email: "a@example.com"}, {Email: "not-an-email"}},
			wantCode:  apperrors.ErrCodeValidation,
			wantField: "items[1]",
		},
		{
			name:      "validation runs before plan check",
			owner:     "owner-1",
			kind:      model.JobKindFind,
			items:     []model.ItemInput{{Name: "", Domain: "example.com"}},
			account:   testutil.NewAccount("owner-1", 10, 0).ExpiringAt(expired),
			wantCode:  apperrors.ErrCodeValidation,
			wantField: "items[0]",
		},
		{
			name:     "expired plan",
			owner:    "owner-1",
			kind:     model.JobKindFind,
			items:    testutil.FindInputs(1),
			account:  testutil.NewAccount("owner-1", 10, 0).ExpiringAt(expired),
			wantCode: apperrors.ErrCodePlanExpired,
		},
		{
			name:      "combined balance short",
			owner:     "owner-1",
			kind:      model.JobKindVerify,
			items:     testutil.VerifyInputs(4),
			account:   testutil.NewAccount("owner-1", 1, 2),
			wantCode:  apperrors.ErrCodeInsufficientCredits,
			shortfall: &apperrors.CreditShortfall{Required: 4, Available: 3},
		},
		{
			name:      "no account",
			owner:     "owner-2",
			kind:      model.JobKindFind,
			items:     testutil.FindInputs(2),
			wantCode:  apperrors.ErrCodeInsufficientCredits,
			shortfall: &apperrors.CreditShortfall{Required: 2, Available: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			f := newJobServiceFixture()
			if tt.account != nil {
				f.fund(t, tt.account)
			}
			// No Trigger expectation: a rejected submission must not fire.
			svc := f.service(t, mocks.NewMockJobTrigger(ctrl))

			job, err := svc.Submit(context.Background(), SubmitParams{
				OwnerID: tt.owner,
				Kind:    tt.kind,
				Items:   tt.items,
			})
			require.Error(t, err)
			assert.Nil(t, job)
			assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, apperrors.GetField(err))
			}
			if tt.shortfall != nil {
				got, ok := apperrors.GetShortfall(err)
				require.True(t, ok)
				assert.Equal(t, tt.shortfall, got)
			}

			jobs, err := f.jobs.ListByOwner(context.Background(), model.JobListOptions{OwnerID: "owner-1"})
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestJobService_SubmitAllowsExactBalanceAndSpill(t *testing.T) {
	f := newJobServiceFixture()
	f.fund(t, testutil.NewAccount("owner-1", 0, 3))

	job, err := f.service(t, nil).Submit(context.Background(), SubmitParams{
		OwnerID: "owner-1",
		Kind:    model.JobKindFind,
		Items:   testutil.FindInputs(3),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, job.TotalItems)
}

func TestJobService_SubmitIdempotencyReplay(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newJobServiceFixture()
	f.fund(t, testutil.NewAccount("owner-1", 5, 0))

	trigger := mocks.NewMockJobTrigger(ctrl)
	trigger.EXPECT().Trigger(gomock.Any(), gomock.Any()).Times(1)
	svc := f.service(t, trigger)

	params := SubmitParams{
		OwnerID:        "owner-1",
		Kind:           model.JobKindFind,
		Items:          testutil.FindInputs(2),
		IdempotencyKey: "req-1",
	}
	first, err := svc.Submit(context.Background(), params)
	require.NoError(t, err)

	again, err := svc.Submit(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	jobs, err := f.jobs.ListByOwner(context.Background(), model.JobListOptions{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestJobService_SubmitIdempotencyKeyScopedByOwner(t *testing.T) {
	f := newJobServiceFixture()
	f.fund(t, testutil.NewAccount("owner-1", 5, 0))
	f.fund(t, testutil.NewAccount("owner-2", 5, 0))
	svc := f.service(t, nil)

	a, err := svc.Submit(context.Background(), SubmitParams{
		OwnerID: "owner-1", Kind: model.JobKindFind, Items: testutil.FindInputs(1), IdempotencyKey: "same",
	})
	require.NoError(t, err)
	b, err := svc.Submit(context.Background(), SubmitParams{
		OwnerID: "owner-2", Kind: model.JobKindFind, Items: testutil.FindInputs(1), IdempotencyKey: "same",
	})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestJobService_SubmitIdempotencyStore(t *testing.T) {
	t.Run("in flight key conflicts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newJobServiceFixture()
		idem := mocks.NewMockIdempotencyStore(ctrl)
		idem.EXPECT().Reserve(gomock.Any(), "owner-1:k", 24*time.Hour).Return("pending", false, nil)

		svc := MustNewJobService(JobServiceOptions{Jobs: f.jobs, Accounts: f.ledger, Idempotency: idem})
		_, err := svc.Submit(context.Background(), SubmitParams{
			OwnerID: "owner-1", Kind: model.JobKindFind, Items: testutil.FindInputs(1), IdempotencyKey: "k",
		})
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("rejected submission releases key", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newJobServiceFixture()
		idem := mocks.NewMockIdempotencyStore(ctrl)
		gomock.InOrder(
			idem.EXPECT().Reserve(gomock.Any(), "owner-1:k", gomock.Any()).Return("", true, nil),
			idem.EXPECT().Release(gomock.Any(), "owner-1:k").Return(nil),
		)

		svc := MustNewJobService(JobServiceOptions{Jobs: f.jobs, Accounts: f.ledger, Idempotency: idem})
		_, err := svc.Submit(context.Background(), SubmitParams{
			OwnerID: "owner-1", Kind: model.JobKindFind, Items: testutil.FindInputs(1), IdempotencyKey: "k",
		})
		assert.True(t, apperrors.IsInsufficientCredits(err))
	})

	t.Run("store error surfaces", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newJobServiceFixture()
		idem := mocks.NewMockIdempotencyStore(ctrl)
		idem.EXPECT().Reserve(gomock.Any(), gomock.Any(), gomock.Any()).Return("", false, errors.New("redis down"))

		svc := MustNewJobService(JobServiceOptions{Jobs: f.jobs, Accounts: f.ledger, Idempotency: idem})
		_, err := svc.Submit(context.Background(), SubmitParams{
			OwnerID: "owner-1", Kind: model.JobKindFind, Items: testutil.FindInputs(1), IdempotencyKey: "k",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis down")
	})
}

func TestJobService_GetJobScopedToOwner(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture()
	svc := f.service(t, nil)
	job, err := f.jobs.Create(ctx, testutil.NewJob(3).Build())
	require.NoError(t, err)

	got, err := svc.GetJob(ctx, job.ID, "owner-1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 3)

	_, err = svc.GetJob(ctx, job.ID, "owner-2")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.GetJob(ctx, "missing", "owner-1")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.GetJob(ctx, job.ID, "")
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestJobService_ListJobs(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture()
	svc := f.service(t, nil)
	_, err := f.jobs.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)
	_, err = f.jobs.Create(ctx, testutil.NewJob(1).WithOwner("owner-2").Build())
	require.NoError(t, err)

	jobs, err := svc.ListJobs(ctx, model.JobListOptions{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Empty(t, jobs[0].Items, "list returns summaries")

	bad := model.JobStatus("done")
	_, err = svc.ListJobs(ctx, model.JobListOptions{OwnerID: "owner-1", Status: &bad})
	assert.True(t, apperrors.IsValidation(err))
}

func TestJobService_StopAndResume(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	f := newJobServiceFixture()
	trigger := mocks.NewMockJobTrigger(ctrl)
	svc := f.service(t, trigger)

	job, err := f.jobs.Create(ctx, testutil.NewJob(3).Build())
	require.NoError(t, err)

	_, err = svc.Resume(ctx, job.ID, "owner-1")
	assert.True(t, apperrors.IsConflict(err), "pending jobs are not resumable")

	stopped, err := svc.Stop(ctx, job.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, stopped.Status)

	_, err = svc.Stop(ctx, job.ID, "owner-1")
	assert.True(t, apperrors.IsConflict(err))

	_, err = svc.Stop(ctx, job.ID, "owner-2")
	assert.True(t, apperrors.IsNotFound(err))

	trigger.EXPECT().Trigger(gomock.Any(), model.RequeuedJob{ID: job.ID, Kind: model.JobKindFind})
	resumed, err := svc.Resume(ctx, job.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, resumed.Status)
}

func TestJobService_Credits(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture()
	svc := f.service(t, nil)

	view, err := svc.Credits(ctx, "owner-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", view.Account.OwnerID)
	assert.Zero(t, view.Account.Available())
	assert.NotNil(t, view.Transactions)
	assert.Empty(t, view.Transactions)

	f.fund(t, testutil.NewAccount("owner-1", 7, 3))
	_, err = f.ledger.RecordTransaction(ctx, model.RecordTransactionRequest{
		OwnerID: "owner-1", Amount: -2, Operation: model.CreditOperationBulkVerify,
	})
	require.NoError(t, err)

	view, err = svc.Credits(ctx, "owner-1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(7), view.Account.FindCredits)
	assert.Equal(t, int64(3), view.Account.VerifyCredits)
	require.Len(t, view.Transactions, 1)
	assert.Equal(t, int64(-2), view.Transactions[0].Amount)

	_, err = svc.Credits(ctx, "", 10)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestJobService_ExportJob(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture()
	svc := f.service(t, nil)
	job, err := f.jobs.Create(ctx, testutil.NewJob(2).Build())
	require.NoError(t, err)

	data, err := svc.ExportJob(ctx, job.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data[:2], "xlsx is a zip container")

	_, err = svc.ExportJob(ctx, job.ID, "owner-2")
	assert.True(t, apperrors.IsNotFound(err))
}

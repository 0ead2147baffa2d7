package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/bulkmail/internal/core"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	apperrors "github.com/target/bulkmail/internal/errors"
	"github.com/target/bulkmail/internal/export"
	"github.com/target/bulkmail/internal/observability/metrics"
	"github.com/target/bulkmail/internal/observability/statsd"
)

const (
	// DefaultMaxItems bounds the size of a single submission.
	DefaultMaxItems       = 10000
	defaultIdempotencyTTL = 24 * time.Hour
	idempotencyPending    = "pending"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Jobs           core.JobRepository           // Required: job records
	Accounts       core.CreditAccountRepository // Required: balances for admission
	Trigger        core.JobTrigger              // Optional: starts execution after submit/resume
	Idempotency    core.IdempotencyStore        // Optional: Idempotency-Key support
	IdempotencyTTL time.Duration                // Optional: defaults to 24h
	MaxItems       int                          // Optional: defaults to DefaultMaxItems
	Now            func() time.Time             // Optional: clock for plan expiry
	Logger         *slog.Logger                 // Optional: structured logger
	Metrics        statsd.Sink                  // Optional: metrics sink
}

// JobService is the submission gate and the owner-scoped query surface for bulk jobs.
//
// Submit checks, in order: an owner is present, the inputs are valid for the
// kind, the owner's plan has not expired, and the combined balance covers one
// credit per item. Nothing is debited at admission; the executor debits per
// item as it goes, so admission is a soft check.
type JobService struct {
	jobs     core.JobRepository
	accounts core.CreditAccountRepository
	trigger  core.JobTrigger
	idem     core.IdempotencyStore
	idemTTL  time.Duration
	maxItems int
	now      func() time.Time
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Accounts == nil {
		return nil, errors.New("CreditAccountRepository is required")
	}

	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		jobs:     opts.Jobs,
		accounts: opts.Accounts,
		trigger:  opts.Trigger,
		idem:     opts.Idempotency,
		idemTTL:  ttl,
		maxItems: maxItems,
		now:      now,
		logger:   logger.With("component", "job_service"),
		metrics:  opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// SubmitParams groups the inputs of Submit.
type SubmitParams struct {
	OwnerID        string
	Kind           model.JobKind
	Items          []model.ItemInput
	IdempotencyKey string
}

// Submit admits a bulk job, persists it as pending and triggers execution
// without waiting for it. A repeated IdempotencyKey returns the job the first
// submission created.
func (s *JobService) Submit(ctx context.Context, p SubmitParams) (*model.Job, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	inputs, err := s.validate(p.Kind, p.Items)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(p.IdempotencyKey)
	if key == "" || s.idem == nil {
		return s.admitAndCreate(ctx, p, inputs)
	}

	scoped := p.OwnerID + ":" + key
	existing, reserved, err := s.idem.Reserve(ctx, scoped, s.idemTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !reserved {
		return s.replay(ctx, p.OwnerID, existing)
	}

	job, err := s.admitAndCreate(ctx, p, inputs)
	if err != nil {
		if rerr := s.idem.Release(context.WithoutCancel(ctx), scoped); rerr != nil {
			s.logger.WarnContext(ctx, "release idempotency key", "error", rerr)
		}
		return nil, err
	}
	if err := s.idem.Bind(ctx, scoped, job.ID, s.idemTTL); err != nil {
		s.logger.WarnContext(ctx, "bind idempotency key", "job_id", job.ID, "error", err)
	}
	return job, nil
}

func (s *JobService) replay(ctx context.Context, ownerID, existing string) (*model.Job, error) {
	if existing == "" || existing == idempotencyPending {
		return nil, apperrors.Conflict("a submission with this idempotency key is in progress")
	}
	job, err := s.jobs.GetForOwner(ctx, existing, ownerID)
	if err != nil {
		return nil, mapJobErr(err)
	}
	s.logger.DebugContext(ctx, "idempotent submit replayed", "job_id", job.ID)
	return job, nil
}

func (s *JobService) validate(kind model.JobKind, items []model.ItemInput) ([]model.ItemInput, error) {
	if !kind.Valid() {
		return nil, apperrors.ValidationField("kind", "kind must be find or verify")
	}
	if len(items) == 0 {
		return nil, apperrors.ValidationField("items", "at least one item is required")
	}
	if len(items) > s.maxItems {
		return nil, &apperrors.AppError{
			Code:    apperrors.ErrCodeValidation,
			Message: fmt.Sprintf("at most %d items per job", s.maxItems),
			Field:   "items",
		}
	}
	inputs, err := domainjob.NormalizeInputs(kind, items)
	if err != nil {
		var inErr *domainjob.InputError
		if errors.As(err, &inErr) {
			return nil, apperrors.ValidationField(fmt.Sprintf("items[%d]", inErr.Index), inErr.Reason)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid items")
	}
	return inputs, nil
}

// admit applies the plan and balance checks. A missing account has no plan
// and no credits.
func (s *JobService) admit(ctx context.Context, ownerID string, required int) error {
	acct, err := s.accounts.GetAccount(ctx, ownerID)
	if errors.Is(err, model.ErrAccountNotFound) {
		return apperrors.InsufficientCredits(int64(required), 0)
	}
	if err != nil {
		return fmt.Errorf("load credit account: %w", err)
	}
	if acct.PlanExpired(s.now()) {
		return apperrors.PlanExpired("plan has expired")
	}
	if available := acct.Available(); available < int64(required) {
		return apperrors.InsufficientCredits(int64(required), available)
	}
	return nil
}

func (s *JobService) admitAndCreate(
	ctx context.Context,
	p SubmitParams,
	inputs []model.ItemInput,
) (*model.Job, error) {
	ownerID, kind := p.OwnerID, p.Kind
	if err := s.admit(ctx, ownerID, len(inputs)); err != nil {
		s.emitAdmission(kind, err)
		return nil, err
	}

	job, err := s.jobs.Create(ctx, &model.Job{
		OwnerID:    ownerID,
		Kind:       kind,
		Status:     model.JobStatusPending,
		Items:      model.NewItems(inputs),
		TotalItems: len(inputs),
	})
	if err != nil {
		s.emitAdmission(kind, err)
		return nil, apperrors.Wrap(apperrors.MapDBError(err), apperrors.ErrCodeInternal, "create job")
	}
	s.emitAdmission(kind, nil)

	s.logger.InfoContext(ctx, "bulk job submitted",
		"job_id", job.ID,
		"owner_id", ownerID,
		"kind", kind,
		"items", job.TotalItems,
	)
	s.fire(ctx, job)
	return job, nil
}

// fire hands the job to the executor. It must not block the caller.
func (s *JobService) fire(ctx context.Context, job *model.Job) {
	if s.trigger == nil {
		return
	}
	s.trigger.Trigger(context.WithoutCancel(ctx), model.RequeuedJob{
		ID:           job.ID,
		Kind:         job.Kind,
		CurrentIndex: job.CurrentIndex,
		ResumeCount:  job.ResumeCount,
	})
}

func (s *JobService) emitAdmission(kind model.JobKind, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Kind:       string(kind),
		Transition: "submitted",
		Result:     result,
		Err:        err,
	})
}

// GetJob returns the owner's job including every item. A job that exists but
// belongs to someone else is reported as not found.
func (s *JobService) GetJob(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	job, err := s.jobs.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, mapJobErr(err)
	}
	return job, nil
}

// ListJobs returns summaries (no items) of the owner's jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	if strings.TrimSpace(opts.OwnerID) == "" {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	if opts.Status != nil && !opts.Status.Valid() {
		return nil, apperrors.ValidationField("status", "unknown status")
	}
	jobs, err := s.jobs.ListByOwner(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stop pauses a pending or processing job. A running executor notices at its
// next batch boundary.
func (s *JobService) Stop(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	job, err := s.jobs.Stop(ctx, id, ownerID)
	if err != nil {
		return nil, mapJobErr(err)
	}
	s.logger.InfoContext(ctx, "bulk job stopped", "job_id", id, "current_index", job.CurrentIndex)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Kind:       string(job.Kind),
		Transition: "paused",
		Result:     metrics.ResultSuccess,
	})
	return job, nil
}

// Resume moves a paused or failed job with remaining items back to pending
// and triggers it. Processing restarts at the stored cursor.
func (s *JobService) Resume(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	job, err := s.jobs.Resume(ctx, id, ownerID)
	if err != nil {
		return nil, mapJobErr(err)
	}
	s.logger.InfoContext(ctx, "bulk job resumed", "job_id", id, "current_index", job.CurrentIndex)
	s.fire(ctx, job)
	return job, nil
}

// ExportJob renders the owner's job as an XLSX workbook of per-item results.
func (s *JobService) ExportJob(ctx context.Context, id, ownerID string) ([]byte, error) {
	job, err := s.GetJob(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	data, err := export.JobWorkbook(job)
	if err != nil {
		return nil, fmt.Errorf("export job %s: %w", id, err)
	}
	return data, nil
}

// CreditsView is an owner's balances plus recent ledger rows.
type CreditsView struct {
	Account      model.CreditAccount        `json:"account"`
	Transactions []*model.CreditTransaction `json:"transactions"`
}

// Credits returns the owner's balances and last limit transactions. Owners
// without an account see zero balances.
func (s *JobService) Credits(ctx context.Context, ownerID string, limit int) (*CreditsView, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	view := &CreditsView{Account: model.CreditAccount{OwnerID: ownerID}}
	acct, err := s.accounts.GetAccount(ctx, ownerID)
	switch {
	case errors.Is(err, model.ErrAccountNotFound):
		view.Transactions = []*model.CreditTransaction{}
		return view, nil
	case err != nil:
		return nil, fmt.Errorf("load credit account: %w", err)
	}
	view.Account = *acct

	txs, err := s.accounts.ListTransactions(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	if txs == nil {
		txs = []*model.CreditTransaction{}
	}
	view.Transactions = txs
	return view, nil
}

func mapJobErr(err error) error {
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		return apperrors.NotFound("job not found")
	case errors.Is(err, model.ErrJobNotStoppable):
		return apperrors.Wrap(err, apperrors.ErrCodeConflict, "job cannot be stopped")
	case errors.Is(err, model.ErrJobNotResumable):
		return apperrors.Wrap(err, apperrors.ErrCodeConflict, "job cannot be resumed")
	default:
		return err
	}
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/bulkmail/internal/core"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/observability/metrics"
	"github.com/target/bulkmail/internal/observability/statsd"
)

const defaultRecoveryInterval = 30 * time.Second

// RecoveryServiceOptions groups dependencies for RecoveryService.
type RecoveryServiceOptions struct {
	Repo     core.JobRecoveryRepository // Required
	Policy   *domainjob.StalenessPolicy // Required: resolves the stale threshold
	Trigger  core.JobTrigger            // Optional: re-dispatches requeued jobs
	Interval time.Duration              // Optional: tick interval for Run
	// FailedRetryDelay is how long a failed job rests before it is retried.
	FailedRetryDelay time.Duration
	// MaxResumes bounds automatic retries of failed jobs; zero disables them.
	MaxResumes int
	BatchLimit int
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// RecoveryService requeues orphaned processing jobs and retries failed jobs
// that still have items left. Paused jobs are never touched: a stop is the
// owner's decision.
type RecoveryService struct {
	repo       core.JobRecoveryRepository
	policy     *domainjob.StalenessPolicy
	trigger    core.JobTrigger
	interval   time.Duration
	retryDelay time.Duration
	maxResumes int
	limit      int
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewRecoveryService constructs a RecoveryService.
func NewRecoveryService(opts RecoveryServiceOptions) (*RecoveryService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRecoveryRepository is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("StalenessPolicy is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultRecoveryInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "recovery_service")

	decision := opts.Policy.Resolve()
	logger.Debug("RecoveryService initialized",
		"interval", interval,
		"stale_after", decision.Threshold,
		"stale_source", decision.Source,
		"max_resumes", opts.MaxResumes,
	)

	return &RecoveryService{
		repo:       opts.Repo,
		policy:     opts.Policy,
		trigger:    opts.Trigger,
		interval:   interval,
		retryDelay: opts.FailedRetryDelay,
		maxResumes: opts.MaxResumes,
		limit:      opts.BatchLimit,
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// Interval returns the tick interval used by Run.
func (s *RecoveryService) Interval() time.Duration { return s.interval }

// Run sweeps once after a short jitter and then on every tick until ctx is
// cancelled. Sweep errors are logged and the loop keeps going.
func (s *RecoveryService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting recovery service", "interval", s.interval)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "recovery service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *RecoveryService) tick(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		if isContextCancellation(err) {
			s.logger.Debug("recovery sweep cancelled by context", "error", err)
			return
		}
		s.logger.Error("recovery sweep failed", "error", err)
	}
}

// waitWithJitter delays up to 10% of the interval so instances started
// together do not sweep in lockstep.
func (s *RecoveryService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// Sweep requeues stale processing jobs, retries eligible failed jobs and
// triggers everything it moved back to pending. Both steps run even when the
// first fails; their errors are joined.
func (s *RecoveryService) Sweep(ctx context.Context) ([]model.RequeuedJob, error) {
	var (
		requeued []model.RequeuedJob
		errs     []error
	)

	stale, err := s.repo.RequeueStale(ctx, core.RequeueStaleParams{
		StaleAfter: s.policy.Resolve().Threshold,
		Limit:      s.limit,
	})
	metrics.EmitRecovery(s.metrics, metrics.RecoveryMetric{Operation: "requeue_stale", Count: len(stale), Err: err})
	if err != nil {
		errs = append(errs, fmt.Errorf("requeue stale jobs: %w", err))
	}
	requeued = append(requeued, stale...)

	retried, err := s.repo.RetryFailed(ctx, core.RetryFailedParams{
		RetryAfter: s.retryDelay,
		MaxResumes: s.maxResumes,
		Limit:      s.limit,
	})
	metrics.EmitRecovery(s.metrics, metrics.RecoveryMetric{Operation: "retry_failed", Count: len(retried), Err: err})
	if err != nil {
		errs = append(errs, fmt.Errorf("retry failed jobs: %w", err))
	}
	requeued = append(requeued, retried...)

	for _, j := range requeued {
		s.logger.InfoContext(ctx, "bulk job requeued",
			"job_id", j.ID,
			"kind", j.Kind,
			"current_index", j.CurrentIndex,
			"resume_count", j.ResumeCount,
		)
		if s.trigger != nil {
			s.trigger.Trigger(ctx, j)
		}
	}

	if len(errs) > 0 {
		return requeued, errors.Join(errs...)
	}
	return requeued, nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

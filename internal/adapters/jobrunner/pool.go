package jobrunner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/target/bulkmail/internal/core"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/observability/statsd"
	"github.com/target/bulkmail/internal/service"
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	Jobs     core.JobRepository
	Executor *service.Executor
	// Concurrency sets the worker slots per kind. Kinds missing from the map
	// get one slot; kinds mapped to zero or less are not run by this process.
	Concurrency map[model.JobKind]int
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// Pool runs one Runner per job kind and routes triggers to them.
type Pool struct {
	runners  map[model.JobKind]*Runner
	notifier *domainjob.DefaultNotifier
	logger   *slog.Logger
}

var _ core.JobTrigger = (*Pool)(nil)

// NewPool builds runners for every enabled kind.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: opts.Jobs})

	p := &Pool{
		runners:  make(map[model.JobKind]*Runner),
		notifier: notifier,
		logger:   logger.With("component", "job_runner_pool"),
	}
	for _, kind := range []model.JobKind{model.JobKindFind, model.JobKindVerify} {
		workers, ok := opts.Concurrency[kind]
		if !ok {
			workers = 1
		}
		if workers <= 0 {
			continue
		}
		r, err := NewRunner(RunnerOptions{
			Jobs:        opts.Jobs,
			Executor:    opts.Executor,
			Notifier:    notifier,
			Kind:        kind,
			Concurrency: workers,
			Logger:      logger,
			Metrics:     opts.Metrics,
		})
		if err != nil {
			return nil, err
		}
		p.runners[kind] = r
	}
	if len(p.runners) == 0 {
		return nil, errors.New("no job kinds enabled")
	}
	return p, nil
}

// Start starts every runner. A failure stops the runners already started.
func (p *Pool) Start(ctx context.Context) error {
	var started []*Runner
	for _, r := range p.runners {
		if err := r.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop(ctx)
			}
			return err
		}
		started = append(started, r)
	}
	return nil
}

// Stop stops every runner and the shared notifier.
func (p *Pool) Stop(ctx context.Context) error {
	var errs []error
	for _, r := range p.runners {
		if err := r.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.notifier.StopAll()
	return errors.Join(errs...)
}

// Trigger hands the job to the runner for its kind. Jobs of a kind this
// process does not run are left for the instance that does.
func (p *Pool) Trigger(ctx context.Context, job model.RequeuedJob) {
	r, ok := p.runners[job.Kind]
	if !ok {
		p.logger.DebugContext(ctx, "no local runner for kind", "job_id", job.ID, "kind", job.Kind)
		return
	}
	r.Trigger(ctx, job)
}

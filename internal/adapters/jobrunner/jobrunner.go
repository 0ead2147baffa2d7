// Package jobrunner schedules bulk job executions onto a bounded set of worker slots.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/bulkmail/internal/core"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/observability/statsd"
	"github.com/target/bulkmail/internal/service"
)

const (
	defaultErrorBackoff = time.Second
	defaultStopTimeout  = 30 * time.Second
)

// ErrAlreadyStarted is returned when Start is called on a running Runner.
var ErrAlreadyStarted = errors.New("job runner already started")

// RunnerOptions configures a Runner for one job kind.
type RunnerOptions struct {
	Jobs     core.JobRepository // Required
	Executor *service.Executor  // Required
	// Notifier wakes the reserve loop. Defaults to a notifier fed by Jobs.WaitForNotification.
	Notifier     domainjob.Notifier
	Kind         model.JobKind
	Concurrency  int           // worker slots; defaults to 1
	ErrorBackoff time.Duration // pause after a failed reserve; defaults to 1s
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// Runner executes jobs of one kind on at most Concurrency goroutines.
//
// Work arrives two ways: Trigger hands a just-submitted job straight to a free
// slot, and the reserve loop picks up whatever else is pending (submissions on
// other instances, recovered jobs, triggers that found every slot busy).
type Runner struct {
	jobs     core.JobRepository
	exec     *service.Executor
	notifier domainjob.Notifier
	ownsNtf  bool
	kind     model.JobKind
	workers  int
	backoff  time.Duration
	slots    chan struct{}
	logger   *slog.Logger
	metrics  statsd.Sink

	mu      sync.Mutex
	runCtx  context.Context //nolint:containedctx // lifetime of the started runner
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

var _ core.JobTrigger = (*Runner)(nil)

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("invalid job kind %q", opts.Kind)
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	backoff := opts.ErrorBackoff
	if backoff <= 0 {
		backoff = defaultErrorBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier, owns := opts.Notifier, false
	if notifier == nil {
		notifier, owns = domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: opts.Jobs}), true
	}

	return &Runner{
		jobs:     opts.Jobs,
		exec:     opts.Executor,
		notifier: notifier,
		ownsNtf:  owns,
		kind:     opts.Kind,
		workers:  workers,
		backoff:  backoff,
		slots:    make(chan struct{}, workers),
		logger:   logger.With("component", "job_runner", "kind", opts.Kind),
		metrics:  opts.Metrics,
	}, nil
}

// Kind returns the job kind this runner executes.
func (r *Runner) Kind() model.JobKind { return r.kind }

// Start launches the reserve loop. Executions run under a context derived
// from ctx that Stop cancels.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}
	r.runCtx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.started = true

	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(r.runCtx)
	}()
	return nil
}

// Stop cancels in-flight executions and waits for them to write their final
// checkpoint, or until ctx ends. Interrupted jobs stay processing and are
// requeued by recovery once their heartbeat goes stale.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("stop %s runner: %w", r.kind, ctx.Err())
	}
	if r.ownsNtf {
		r.notifier.StopAll()
	}
	r.logger.InfoContext(ctx, "job runner stopped", "error", err)
	return err
}

// Run starts the runner and blocks until ctx is cancelled, then stops it.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultStopTimeout)
	defer cancel()
	return r.Stop(stopCtx)
}

// Trigger runs the job on a free slot without blocking. When every slot is
// busy, or the runner is not started, it only wakes the reserve loop.
func (r *Runner) Trigger(ctx context.Context, job model.RequeuedJob) {
	r.mu.Lock()
	runCtx, started := r.runCtx, r.started
	if started && r.tryAcquire() {
		r.wg.Add(1)
		r.mu.Unlock()
		r.logger.DebugContext(ctx, "job triggered", "job_id", job.ID)
		go func() {
			defer r.wg.Done()
			defer r.release()
			if _, err := r.exec.Run(runCtx, job.ID); err != nil {
				r.logger.ErrorContext(runCtx, "run triggered job", "job_id", job.ID, "error", err)
			}
		}()
		return
	}
	r.mu.Unlock()
	r.notifier.Notify(r.kind)
}

func (r *Runner) loop(ctx context.Context) {
	unsub, notify := r.notifier.Subscribe(r.kind)
	defer unsub()

	for ctx.Err() == nil {
		if !r.acquire(ctx) {
			return
		}
		job, err := r.jobs.ReserveNext(ctx, r.kind)
		switch {
		case err == nil:
			r.spawn(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			r.release()
			if !waitForNotify(ctx, notify) {
				return
			}
		default:
			r.release()
			if ctx.Err() != nil {
				return
			}
			r.logger.ErrorContext(ctx, "reserve next job", "error", err)
			if !sleep(ctx, r.backoff) {
				return
			}
		}
	}
}

// spawn executes a reserved job on the slot the loop already holds.
func (r *Runner) spawn(ctx context.Context, job *model.Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()
		r.exec.Execute(ctx, job)
	}()
}

func (r *Runner) acquire(ctx context.Context) bool {
	select {
	case r.slots <- struct{}{}:
		r.gaugeBusy()
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) tryAcquire() bool {
	select {
	case r.slots <- struct{}{}:
		r.gaugeBusy()
		return true
	default:
		return false
	}
}

func (r *Runner) release() {
	<-r.slots
	r.gaugeBusy()
}

func (r *Runner) gaugeBusy() {
	if r.metrics == nil {
		return
	}
	r.metrics.Gauge("job_runner.busy_slots", float64(len(r.slots)), map[string]string{"kind": string(r.kind)})
}

// waitForNotify blocks until a wake-up arrives. A closed channel means the
// notifier shut down.
func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		return ok
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/domain/model"
	obserrors "github.com/target/bulkmail/internal/observability/errors"
	"github.com/target/bulkmail/internal/observability/metrics"
	"github.com/target/bulkmail/internal/observability/notify"
	"github.com/target/bulkmail/internal/observability/statsd"
)

const (
	// DefaultBatchSize is the number of items looked up concurrently between checkpoints.
	DefaultBatchSize = 10
	// DefaultHeartbeatInterval is how often a running job refreshes its updated_at.
	DefaultHeartbeatInterval = 15 * time.Second

	defaultFinalizeTimeout = 10 * time.Second
)

// RunOutcome describes how an executor run ended.
type RunOutcome string

const (
	// OutcomeSkipped means the job was not pending and nothing ran.
	OutcomeSkipped RunOutcome = "skipped"
	// OutcomeCompleted means every item reached a terminal state.
	OutcomeCompleted RunOutcome = "completed"
	// OutcomePaused means the owner stopped the job between batches.
	OutcomePaused RunOutcome = "paused"
	// OutcomeFailed means an uncaught storage or ledger error ended the run.
	OutcomeFailed RunOutcome = "failed"
	// OutcomeSuperseded means another run took over the job (requeued as stale).
	OutcomeSuperseded RunOutcome = "superseded"
	// OutcomeInterrupted means the process is shutting down. The job stays
	// processing until the recovery daemon requeues it.
	OutcomeInterrupted RunOutcome = "interrupted"
)

// RunResult summarises one executor run.
type RunResult struct {
	JobID     string
	Outcome   RunOutcome
	Attempted int   // items processed during this run
	Charged   int64 // credits debited during this run
	Err       error
}

// FailureNotifier alerts operators about jobs that ended failed.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}

// ExecutorOptions groups dependencies for Executor.
type ExecutorOptions struct {
	Jobs              core.JobRepository // Required
	Ledger            core.CreditLedger  // Required
	Lookup            core.LookupClient  // Required
	BatchSize         int                // Optional: defaults to DefaultBatchSize
	HeartbeatInterval time.Duration      // Optional: defaults to DefaultHeartbeatInterval
	FinalizeTimeout   time.Duration      // Optional: bound on end-of-run writes after shutdown
	Notifier          FailureNotifier    // Optional
	Logger            *slog.Logger
	Metrics           statsd.Sink
}

// Executor drives a claimed job through its items.
//
// Charging is per attempt: every item the executor hands to the lookup
// service costs one credit whether the lookup succeeds, returns a negative
// verdict, or errors. Items skipped because the balance ran out cost nothing.
// Each item is debited before its lookup, so the balance never goes negative.
type Executor struct {
	jobs            core.JobRepository
	ledger          core.CreditLedger
	lookup          core.LookupClient
	batchSize       int
	heartbeat       time.Duration
	finalizeTimeout time.Duration
	notifier        FailureNotifier
	logger          *slog.Logger
	metrics         statsd.Sink
}

// NewExecutor constructs an Executor.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Ledger == nil:
		return nil, errors.New("CreditLedger is required")
	case opts.Lookup == nil:
		return nil, errors.New("LookupClient is required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	hb := opts.HeartbeatInterval
	if hb <= 0 {
		hb = DefaultHeartbeatInterval
	}
	finalize := opts.FinalizeTimeout
	if finalize <= 0 {
		finalize = defaultFinalizeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		jobs:            opts.Jobs,
		ledger:          opts.Ledger,
		lookup:          opts.Lookup,
		batchSize:       batch,
		heartbeat:       hb,
		finalizeTimeout: finalize,
		notifier:        opts.Notifier,
		logger:          logger.With("component", "executor"),
		metrics:         opts.Metrics,
	}, nil
}

// Run claims the job and executes it. A job that is not pending is skipped.
func (e *Executor) Run(ctx context.Context, id string) (RunResult, error) {
	job, ok, err := e.jobs.Claim(ctx, id)
	if err != nil {
		return RunResult{JobID: id}, fmt.Errorf("claim job %s: %w", id, err)
	}
	if !ok {
		return RunResult{JobID: id, Outcome: OutcomeSkipped}, nil
	}
	return e.Execute(ctx, job), nil
}

// run is the in-memory state of one execution. Only the executor goroutine touches it.
type run struct {
	job       *model.Job
	items     []model.Item
	cursor    int
	processed int
	success   int
	failed    int
	charged   int64 // cumulative for the job, including earlier runs
	attempted int
	runCharge int64
}

func newRun(job *model.Job) *run {
	items := make([]model.Item, len(job.Items))
	copy(items, job.Items)
	return &run{
		job:       job,
		items:     items,
		cursor:    job.CurrentIndex,
		processed: job.ProcessedCount,
		success:   job.SuccessCount,
		failed:    job.FailedCount,
		charged:   job.ChargedCredits,
	}
}

func (r *run) checkpoint() model.Checkpoint {
	items := make([]model.Item, len(r.items))
	copy(items, r.items)
	return model.Checkpoint{
		Items:          items,
		CurrentIndex:   r.cursor,
		ProcessedCount: r.processed,
		SuccessCount:   r.success,
		FailedCount:    r.failed,
		ChargedCredits: r.charged,
	}
}

// Execute processes a job the caller already claimed. It resumes at the
// stored cursor and returns once the job completed, failed, was stopped, was
// taken over by another run, or ctx ended.
func (e *Executor) Execute(ctx context.Context, job *model.Job) RunResult {
	start := time.Now()
	logger := e.logger.With("job_id", job.ID, "kind", job.Kind)
	logger.InfoContext(ctx, "bulk job started",
		"current_index", job.CurrentIndex,
		"total_items", job.TotalItems,
		"resume_count", job.ResumeCount,
	)

	stopHeartbeat := e.startHeartbeat(ctx, job.Ref(), logger)
	r := newRun(job)
	outcome, runErr := e.process(ctx, r)
	stopHeartbeat()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.finalizeTimeout)
	defer cancel()

	switch outcome {
	case OutcomeCompleted:
		// The ledger row is written before the status flip so a failed write
		// leaves the job failed with the reason instead of silently completed.
		if err := e.record(fctx, r); err != nil {
			outcome, runErr = OutcomeFailed, err
			e.fail(fctx, r, runErr, logger)
			break
		}
		ok, err := e.jobs.Complete(fctx, job.Ref())
		switch {
		case err != nil:
			// The job stays processing; recovery requeues it and the next
			// run completes it without further lookups.
			outcome, runErr = OutcomeFailed, fmt.Errorf("complete job: %w", err)
		case !ok:
			outcome = OutcomeSuperseded
		}
	case OutcomeFailed:
		e.recordBestEffort(fctx, r, logger)
		e.fail(fctx, r, runErr, logger)
	case OutcomePaused, OutcomeInterrupted:
		e.recordBestEffort(fctx, r, logger)
	}

	result := metrics.ResultSuccess
	if outcome == OutcomeFailed {
		result = metrics.ResultError
	}
	metrics.EmitJobLifecycle(e.metrics, metrics.JobMetric{
		Kind:       string(job.Kind),
		Transition: string(outcome),
		Result:     result,
		Duration:   time.Since(start),
		Err:        runErr,
	})

	attrs := []any{
		"outcome", outcome,
		"current_index", r.cursor,
		"attempted", r.attempted,
		"charged", r.runCharge,
		"duration", time.Since(start),
	}
	if runErr != nil {
		logger.ErrorContext(ctx, "bulk job run ended", append(attrs, "error", runErr)...)
	} else {
		logger.InfoContext(ctx, "bulk job run ended", attrs...)
	}

	return RunResult{
		JobID:     job.ID,
		Outcome:   outcome,
		Attempted: r.attempted,
		Charged:   r.runCharge,
		Err:       runErr,
	}
}

// process walks the remaining items batch by batch. The status is re-read
// before every batch so a stop takes effect at the next boundary; the batch in
// flight always finishes and is checkpointed.
func (e *Executor) process(ctx context.Context, r *run) (RunOutcome, error) {
	total := len(r.items)
	for r.cursor < total {
		if ctx.Err() != nil {
			return OutcomeInterrupted, nil
		}
		status, err := e.jobs.Status(ctx, r.job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeInterrupted, nil
			}
			return OutcomeFailed, fmt.Errorf("read job status: %w", err)
		}
		if status != model.JobStatusProcessing {
			if status == model.JobStatusPaused {
				return OutcomePaused, nil
			}
			return OutcomeSuperseded, nil
		}

		end := min(r.cursor+e.batchSize, total)
		batchErr := e.runBatch(ctx, r, end)

		ok, err := e.saveCheckpoint(ctx, r)
		if err != nil {
			return OutcomeFailed, errors.Join(batchErr, fmt.Errorf("checkpoint: %w", err))
		}
		if batchErr != nil {
			return OutcomeFailed, batchErr
		}
		if !ok {
			return OutcomeSuperseded, nil
		}
	}
	return OutcomeCompleted, nil
}

func (e *Executor) saveCheckpoint(ctx context.Context, r *run) (bool, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.finalizeTimeout)
	defer cancel()
	return e.jobs.Checkpoint(cctx, r.job.Ref(), r.checkpoint())
}

type slot struct {
	index int
	paid  bool
	res   *model.LookupResult
	err   error
}

// runBatch debits items [r.cursor, end) in array order, runs the paid lookups
// concurrently and applies outcomes in array order. A debit error stops the
// batch at that item; lookups already paid for still run and are applied.
func (e *Executor) runBatch(ctx context.Context, r *run, end int) error {
	start := time.Now()
	slots := make([]slot, 0, end-r.cursor)

	var debitErr error
	for i := r.cursor; i < end; i++ {
		paid, err := e.ledger.CheckAndDebit(ctx, model.DebitRequest{
			OwnerID: r.job.OwnerID,
			Kind:    r.job.Kind,
			Amount:  1,
		})
		if err != nil {
			debitErr = fmt.Errorf("debit credits for item %d: %w", i, err)
			break
		}
		slots = append(slots, slot{index: i, paid: paid})
	}

	var g errgroup.Group
	for i := range slots {
		if !slots[i].paid {
			continue
		}
		g.Go(func() error {
			slots[i].res, slots[i].err = e.lookupItem(ctx, r.job.Kind, r.items[slots[i].index].Input)
			return nil
		})
	}
	_ = g.Wait()

	bm := metrics.BatchMetric{Kind: string(r.job.Kind)}
	for _, s := range slots {
		r.items[s.index] = applyOutcome(r.job.Kind, r.items[s.index], s)
		r.processed++
		r.attempted++
		switch {
		case !s.paid:
			r.failed++
			bm.Skipped++
		case r.items[s.index].Status == model.ItemStatusCompleted:
			r.success++
			bm.Succeeded++
		default:
			r.failed++
			bm.Failed++
		}
		if s.paid {
			r.charged++
			r.runCharge++
			bm.Charged++
		}
		r.cursor = s.index + 1
	}
	bm.Duration = time.Since(start)
	metrics.EmitBatch(e.metrics, bm)
	return debitErr
}

func (e *Executor) lookupItem(ctx context.Context, kind model.JobKind, in model.ItemInput) (*model.LookupResult, error) {
	if kind == model.JobKindVerify {
		return e.lookup.Verify(ctx, in.Email)
	}
	return e.lookup.Find(ctx, in)
}

// applyOutcome sets the item's terminal state. Lookup errors and verdicts that
// are not a success for the job kind fail the item; the credit stays consumed.
func applyOutcome(kind model.JobKind, item model.Item, s slot) model.Item {
	switch {
	case !s.paid:
		item.Status = model.ItemStatusFailed
		item.Error = model.ItemErrInsufficientCredits
	case s.err != nil:
		item.Status = model.ItemStatusFailed
		item.Error = s.err.Error()
	case s.res == nil:
		item.Status = model.ItemStatusFailed
		item.Error = "empty lookup result"
	case s.res.Status.Succeeded(kind):
		item.Status = model.ItemStatusCompleted
		item.Result = s.res
		item.Error = ""
	default:
		item.Status = model.ItemStatusFailed
		item.Result = s.res
		item.Error = "lookup returned status " + string(s.res.Status)
	}
	return item
}

// record writes one ledger row for the credits charged since the last
// recorded run and advances the job's recorded mark.
func (e *Executor) record(ctx context.Context, r *run) error {
	delta := r.charged - r.job.RecordedCredits
	if delta <= 0 {
		return nil
	}
	meta, err := json.Marshal(model.JobTransactionMetadata{
		JobID:     r.job.ID,
		Bulk:      true,
		ItemCount: int(delta),
	})
	if err != nil {
		return fmt.Errorf("marshal transaction metadata: %w", err)
	}
	if _, err := e.ledger.RecordTransaction(ctx, model.RecordTransactionRequest{
		OwnerID:   r.job.OwnerID,
		Amount:    -delta,
		Operation: model.OperationFor(r.job.Kind),
		Metadata:  meta,
	}); err != nil {
		return fmt.Errorf("record credit transaction: %w", err)
	}
	if err := e.jobs.MarkRecorded(ctx, r.job.ID, r.charged); err != nil {
		return fmt.Errorf("mark credits recorded: %w", err)
	}
	r.job.RecordedCredits = r.charged
	return nil
}

func (e *Executor) recordBestEffort(ctx context.Context, r *run, logger *slog.Logger) {
	if err := e.record(ctx, r); err != nil {
		logger.ErrorContext(ctx, "record credit transaction", "error", err)
	}
}

func (e *Executor) fail(ctx context.Context, r *run, cause error, logger *slog.Logger) {
	ok, err := e.jobs.Fail(ctx, r.job.Ref(), cause.Error())
	if err != nil {
		logger.ErrorContext(ctx, "fail job error", "error", err, "original_error", cause)
		return
	}
	if !ok || e.notifier == nil {
		return
	}
	e.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:          r.job.ID,
		Kind:           string(r.job.Kind),
		OwnerID:        r.job.OwnerID,
		Error:          cause.Error(),
		ErrorClass:     obserrors.Classify(cause),
		ProcessedCount: r.processed,
		TotalItems:     r.job.TotalItems,
		ChargedCredits: r.charged,
		OccurredAt:     time.Now().UTC(),
		Metadata:       map[string]string{"resume_count": strconv.Itoa(r.job.ResumeCount)},
	})
}

// startHeartbeat refreshes the job's updated_at until the returned stop func runs.
func (e *Executor) startHeartbeat(ctx context.Context, ref model.RunRef, logger *slog.Logger) func() {
	hctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
				ok, err := e.jobs.Heartbeat(hctx, ref)
				switch {
				case err != nil && hctx.Err() == nil:
					logger.WarnContext(hctx, "heartbeat failed", "error", err)
				case err == nil && !ok:
					logger.DebugContext(hctx, "heartbeat rejected, job no longer owned by this run")
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

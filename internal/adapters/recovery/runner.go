// Package recovery runs the heartbeat recovery sweep in the background.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/bulkmail/internal/service"
)

// Runner drives a RecoveryService either on its fixed interval or on a cron
// schedule.
type Runner struct {
	svc      *service.RecoveryService
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Service *service.RecoveryService // Required
	// Schedule is an optional five-field cron expression ("*/1 * * * *").
	// When empty the service's own interval is used.
	Schedule string
	Logger   *slog.Logger
}

// NewRunner creates a recovery runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Service == nil {
		return nil, errors.New("recovery service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{svc: opts.Service, logger: logger.With("component", "recovery_runner")}

	if expr := strings.TrimSpace(opts.Schedule); expr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		sched, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("parse recovery schedule %q: %w", expr, err)
		}
		r.schedule = sched
	}
	return r, nil
}

// Start runs the sweep loop in the background until Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("recovery runner already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		if err := r.Run(runCtx); err != nil {
			r.logger.ErrorContext(runCtx, "recovery runner exited", "error", err)
		}
	}()
	return nil
}

// Stop cancels the loop and waits for the sweep in progress, or until ctx ends.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop recovery runner: %w", ctx.Err())
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.schedule == nil {
		return r.svc.Run(ctx)
	}

	r.logger.InfoContext(ctx, "starting scheduled recovery runner")
	for {
		now := time.Now()
		timer := time.NewTimer(r.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-timer.C:
			requeued, err := r.svc.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "recovery sweep failed", "error", err)
				continue
			}
			if len(requeued) > 0 {
				r.logger.InfoContext(ctx, "recovery sweep requeued jobs", "count", len(requeued))
			}
		}
	}
}

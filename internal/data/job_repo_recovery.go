package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/data/pgxutil"
	"github.com/target/bulkmail/internal/domain/model"
)

// Advisory lock namespace for recovery sweeps.
// Major key 2000 is reserved for bulk job recovery.
var (
	recoveryLockRequeueStale = pgxutil.AdvisoryKey{Major: 2000, Minor: 1}
	recoveryLockRetryFailed  = pgxutil.AdvisoryKey{Major: 2000, Minor: 2}
)

const defaultRecoveryBatch = 100

var (
	_ core.JobRepository           = (*JobRepo)(nil)
	_ core.JobRecoveryRepository   = (*JobRepo)(nil)
	_ core.CreditLedger            = (*CreditRepo)(nil)
	_ core.CreditAccountRepository = (*CreditRepo)(nil)
	_ core.IdempotencyStore        = (*RedisIdempotencyRepo)(nil)
)

// RequeueStale moves processing jobs whose heartbeat is older than StaleAfter
// back to pending. The cursor is kept so the next claim resumes where the
// crashed executor stopped. Only one instance sweeps at a time; the others
// return an empty result.
func (r *JobRepo) RequeueStale(ctx context.Context, params core.RequeueStaleParams) ([]model.RequeuedJob, error) {
	if params.StaleAfter <= 0 {
		return nil, fmt.Errorf("stale_after must be positive, got %s", params.StaleAfter)
	}
	cutoff := r.timeProvider.Now().Add(-params.StaleAfter).UTC()

	return r.sweep(ctx, sweepParams{
		lock: recoveryLockRequeueStale,
		query: `
			WITH stale AS (
				SELECT id FROM bulk_jobs
				WHERE status = 'processing' AND updated_at < $1
				ORDER BY updated_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			UPDATE bulk_jobs j
			SET status = 'pending',
			    run_token = NULL,
			    resume_count = j.resume_count + 1,
			    updated_at = $3
			FROM stale
			WHERE j.id = stale.id
			RETURNING j.id, j.kind, j.current_index, j.resume_count`,
		args: []any{cutoff, batchLimit(params.Limit), r.timeProvider.Now().UTC()},
	})
}

// RetryFailed requeues failed jobs that still have items left or unrecorded
// credits and have not exhausted MaxResumes. The error message is cleared.
func (r *JobRepo) RetryFailed(ctx context.Context, params core.RetryFailedParams) ([]model.RequeuedJob, error) {
	if params.MaxResumes <= 0 {
		return nil, nil
	}
	cutoff := r.timeProvider.Now().Add(-params.RetryAfter).UTC()

	return r.sweep(ctx, sweepParams{
		lock: recoveryLockRetryFailed,
		query: `
			WITH retry AS (
				SELECT id FROM bulk_jobs
				WHERE status = 'failed'
				  AND (current_index < total_items OR recorded_credits < charged_credits)
				  AND resume_count < $1
				  AND updated_at < $2
				ORDER BY updated_at
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			UPDATE bulk_jobs j
			SET status = 'pending',
			    run_token = NULL,
			    error_message = NULL,
			    resume_count = j.resume_count + 1,
			    updated_at = $4
			FROM retry
			WHERE j.id = retry.id
			RETURNING j.id, j.kind, j.current_index, j.resume_count`,
		args: []any{params.MaxResumes, cutoff, batchLimit(params.Limit), r.timeProvider.Now().UTC()},
	})
}

type sweepParams struct {
	lock  pgxutil.AdvisoryKey
	query string
	args  []any
}

func (r *JobRepo) sweep(ctx context.Context, p sweepParams) ([]model.RequeuedJob, error) {
	var out []model.RequeuedJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, p.lock)
			if err != nil || !locked {
				return err
			}

			rows, err := tx.Query(ctx, p.query, p.args...)
			if err != nil {
				return fmt.Errorf("requeue jobs: %w", err)
			}
			requeued, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RequeuedJob, error) {
				var j model.RequeuedJob
				scanErr := row.Scan(&j.ID, &j.Kind, &j.CurrentIndex, &j.ResumeCount)
				return j, scanErr
			})
			if err != nil {
				return fmt.Errorf("collect requeued jobs: %w", err)
			}

			kinds := make(map[model.JobKind]struct{})
			for _, j := range requeued {
				kinds[j.Kind] = struct{}{}
			}
			for kind := range kinds {
				if err := pgxutil.Notify(ctx, tx, jobReadyChannel(kind), ""); err != nil {
					return err
				}
			}
			out = requeued
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		r.logger.InfoContext(ctx, "requeued bulk jobs", "count", len(out), "lock_minor", p.lock.Minor)
	}
	return out, nil
}

func batchLimit(limit int) int {
	if limit <= 0 {
		return defaultRecoveryBatch
	}
	return limit
}

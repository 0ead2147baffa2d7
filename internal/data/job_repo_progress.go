package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/target/bulkmail/internal/data/pgxutil"
	"github.com/target/bulkmail/internal/domain/model"
)

func execAffected(res sql.Result, err error, op string) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}

// Checkpoint persists items, cursor, counters and charged credits for the run.
// A paused job still accepts the checkpoint of the batch that was in flight
// when it was stopped. Any other status, or a different run token, rejects it.
func (r *JobRepo) Checkpoint(ctx context.Context, ref model.RunRef, cp model.Checkpoint) (bool, error) {
	if ref.Token == "" {
		return false, model.ErrRunTokenRequired
	}
	items, err := model.MarshalItems(cp.Items)
	if err != nil {
		return false, err
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET items = $3,
		    current_index = $4,
		    processed_count = $5,
		    success_count = $6,
		    failed_count = $7,
		    charged_credits = $8,
		    updated_at = $9
		WHERE id = $1
		  AND run_token = $2
		  AND status IN ('processing', 'paused')
		  AND total_items = jsonb_array_length($3::jsonb)
	`, ref.JobID, ref.Token, items,
		cp.CurrentIndex, cp.ProcessedCount, cp.SuccessCount, cp.FailedCount, cp.ChargedCredits,
		r.timeProvider.Now().UTC(),
	)
	return execAffected(res, err, "checkpoint job")
}

// Heartbeat refreshes updated_at on a processing job owned by ref's run.
func (r *JobRepo) Heartbeat(ctx context.Context, ref model.RunRef) (bool, error) {
	if ref.Token == "" {
		return false, model.ErrRunTokenRequired
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET updated_at = $3
		WHERE id = $1 AND run_token = $2 AND status = 'processing'
	`, ref.JobID, ref.Token, r.timeProvider.Now().UTC())
	return execAffected(res, err, "heartbeat job")
}

// Complete marks a processing job completed and stamps completed_at. A job
// stopped while its last batch was in flight has nothing left to pause, so it
// completes too.
func (r *JobRepo) Complete(ctx context.Context, ref model.RunRef) (bool, error) {
	if ref.Token == "" {
		return false, model.ErrRunTokenRequired
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET status = 'completed',
		    error_message = NULL,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND run_token = $2
		  AND (status = 'processing' OR (status = 'paused' AND current_index >= total_items))
	`, ref.JobID, ref.Token, now)
	return execAffected(res, err, "complete job")
}

// Fail marks a processing job failed with errMsg. Progress is left intact.
func (r *JobRepo) Fail(ctx context.Context, ref model.RunRef, errMsg string) (bool, error) {
	if ref.Token == "" {
		return false, model.ErrRunTokenRequired
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET status = 'failed',
		    error_message = $3,
		    updated_at = $4
		WHERE id = $1 AND run_token = $2 AND status = 'processing'
	`, ref.JobID, ref.Token, errMsg, r.timeProvider.Now().UTC())
	return execAffected(res, err, "fail job")
}

// MarkRecorded advances recorded_credits; it never moves backwards.
func (r *JobRepo) MarkRecorded(ctx context.Context, id string, recorded int64) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET recorded_credits = GREATEST(recorded_credits, $2)
		WHERE id = $1
	`, id, recorded); err != nil {
		return fmt.Errorf("mark recorded credits: %w", err)
	}
	return nil
}

// Stop pauses a pending or processing job of ownerID. The executor notices on
// its next status read and exits without touching the status.
func (r *JobRepo) Stop(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if !validJobID(id) {
		return nil, model.ErrJobNotFound
	}
	row := r.DB.QueryRowContext(ctx, `
		UPDATE bulk_jobs
		SET status = 'paused',
		    updated_at = $3
		WHERE id = $1 AND owner_id = $2 AND status IN ('pending', 'processing')
		RETURNING `+jobColumns,
		id, ownerID, r.timeProvider.Now().UTC(),
	)
	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.transitionMiss(ctx, id, ownerID, model.ErrJobNotStoppable)
	}
	if err != nil {
		return nil, fmt.Errorf("stop job: %w", err)
	}
	return job, nil
}

// Resume returns a paused or failed job with remaining items or unrecorded
// credits to pending and resets its automatic retry budget.
func (r *JobRepo) Resume(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if !validJobID(id) {
		return nil, model.ErrJobNotFound
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
				UPDATE bulk_jobs
				SET status = 'pending',
				    error_message = NULL,
				    resume_count = 0,
				    updated_at = $3
				WHERE id = $1 AND owner_id = $2
				  AND status IN ('paused', 'failed')
				  AND (current_index < total_items OR recorded_credits < charged_credits)
				RETURNING `+jobColumns,
				id, ownerID, r.timeProvider.Now().UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("resume job: %w", qerr)
			}
			j, cerr := collectJobFromRows(rows)
			rows.Close()
			if cerr != nil {
				return cerr
			}
			job = j
			return pgxutil.Notify(ctx, tx, jobReadyChannel(j.Kind), j.ID)
		},
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.transitionMiss(ctx, id, ownerID, model.ErrJobNotResumable)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// transitionMiss distinguishes an unknown job from one in the wrong state.
func (r *JobRepo) transitionMiss(ctx context.Context, id, ownerID string, stateErr error) error {
	if _, err := r.GetForOwner(ctx, id, ownerID); err != nil {
		return err
	}
	return stateErr
}

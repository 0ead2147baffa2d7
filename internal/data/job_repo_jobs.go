package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/bulkmail/internal/data/pgxutil"
	"github.com/target/bulkmail/internal/domain/model"
)

// SQL used by ReserveNext to atomically claim the oldest pending job of a kind.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM bulk_jobs
    WHERE kind = $1 AND status = 'pending'
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE bulk_jobs j
  SET
    status = 'processing',
    run_token = $2,
    error_message = NULL,
    updated_at = $3
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + qualifiedJobColumns

// qualifiedJobColumns is jobColumns prefixed for the aliased UPDATE ... FROM form.
const qualifiedJobColumns = `j.id, j.owner_id, j.kind, j.status, j.items, j.total_items, j.current_index,
  j.processed_count, j.success_count, j.failed_count, j.error_message, j.resume_count,
  j.charged_credits, j.recorded_credits, j.run_token, j.created_at, j.updated_at, j.completed_at`

// Create inserts a pending job and notifies executors of its kind in the same transaction.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	if !job.Kind.Valid() {
		return nil, fmt.Errorf("invalid job kind: %s", job.Kind)
	}
	if strings.TrimSpace(job.OwnerID) == "" {
		return nil, errors.New("owner_id is required")
	}
	if len(job.Items) == 0 {
		return nil, errors.New("job has no items")
	}

	items, err := model.MarshalItems(job.Items)
	if err != nil {
		return nil, err
	}

	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.timeProvider.Now().UTC()

	var created *model.Job
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, `
				INSERT INTO bulk_jobs (id, owner_id, kind, status, items, total_items, created_at, updated_at)
				VALUES ($1, $2, $3, 'pending', $4, $5, $6, $6)
				RETURNING `+jobColumns,
				id, job.OwnerID, job.Kind, items, len(job.Items), now,
			)
			if qerr != nil {
				return fmt.Errorf("insert job: %w", qerr)
			}
			j, cerr := collectJobFromRows(rows)
			rows.Close()
			if cerr != nil {
				return fmt.Errorf("collect job: %w", cerr)
			}
			created = j
			return pgxutil.Notify(ctx, tx, jobReadyChannel(j.Kind), j.ID)
		},
	}); txErr != nil {
		return nil, txErr
	}

	return created, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if !validJobID(id) {
		return nil, model.ErrJobNotFound
	}
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM bulk_jobs WHERE id = $1`, id)
}

// GetForOwner retrieves a job only if ownerID owns it. A job owned by someone
// else is reported as not found.
func (r *JobRepo) GetForOwner(ctx context.Context, id, ownerID string) (*model.Job, error) {
	if !validJobID(id) {
		return nil, model.ErrJobNotFound
	}
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM bulk_jobs WHERE id = $1 AND owner_id = $2`, id, ownerID)
}

func (r *JobRepo) getOne(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListByOwner returns job summaries, newest first. Items are not loaded.
func (r *JobRepo) ListByOwner(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + jobSummaryColumns + ` FROM bulk_jobs WHERE owner_id = $1`
	args := []any{opts.OwnerID}
	if opts.Status != nil {
		query += ` AND status = $2`
		args = append(args, *opts.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Job
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Claim moves a pending job to processing and assigns a fresh run token.
// It returns false when the job is not pending.
func (r *JobRepo) Claim(ctx context.Context, id string) (*model.Job, bool, error) {
	if !validJobID(id) {
		return nil, false, model.ErrJobNotFound
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE bulk_jobs
		SET status = 'processing',
		    run_token = $2,
		    error_message = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns,
		id, uuid.NewString(), now,
	)
	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, false, getErr
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("claim job: %w", err)
	}
	return job, true, nil
}

// ReserveNext claims the oldest pending job of the given kind.
func (r *JobRepo) ReserveNext(ctx context.Context, kind model.JobKind) (*model.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid job kind: %s", kind)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, reserveNextUpdateSQL, kind, uuid.NewString(), r.timeProvider.Now().UTC())
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// WaitForNotification blocks until a job of kind is announced or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	return pgxutil.WaitForNotification(ctx, r.DB, jobReadyChannel(kind))
}

// Status re-reads only the status column.
func (r *JobRepo) Status(ctx context.Context, id string) (model.JobStatus, error) {
	if !validJobID(id) {
		return "", model.ErrJobNotFound
	}
	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM bulk_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read job status: %w", err)
	}
	return status, nil
}

// validJobID keeps malformed ids from reaching the uuid column as a cast error.
func validJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	items                  []byte
	errorMessage, runToken sql.NullString
	completedAt            sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Kind,
		&job.Status,
		&d.items,
		&job.TotalItems,
		&job.CurrentIndex,
		&job.ProcessedCount,
		&job.SuccessCount,
		&job.FailedCount,
		&d.errorMessage,
		&job.ResumeCount,
		&job.ChargedCredits,
		&job.RecordedCredits,
		&d.runToken,
		&job.CreatedAt,
		&job.UpdatedAt,
		&d.completedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) error {
	if len(d.items) > 0 {
		if err := json.Unmarshal(d.items, &job.Items); err != nil {
			return fmt.Errorf("decode items: %w", err)
		}
	}
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	if d.runToken.Valid {
		job.RunToken = d.runToken.String
	}
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return nil
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

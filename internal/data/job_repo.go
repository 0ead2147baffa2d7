package data

import (
	"database/sql"
	"log/slog"

	"github.com/target/bulkmail/internal/domain/model"
)

// RepoConfig holds configuration options for the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for bulk job records.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

// jobReadyChannel is the NOTIFY channel executors of kind listen on.
func jobReadyChannel(kind model.JobKind) string {
	return "bulk_job_ready_" + string(kind)
}

const jobColumns = `
  id,
  owner_id,
  kind,
  status,
  items,
  total_items,
  current_index,
  processed_count,
  success_count,
  failed_count,
  error_message,
  resume_count,
  charged_credits,
  recorded_credits,
  run_token,
  created_at,
  updated_at,
  completed_at
`

// jobSummaryColumns mirrors jobColumns but leaves the item array out of list queries.
const jobSummaryColumns = `
  id,
  owner_id,
  kind,
  status,
  NULL::jsonb AS items,
  total_items,
  current_index,
  processed_count,
  success_count,
  failed_count,
  error_message,
  resume_count,
  charged_credits,
  recorded_credits,
  run_token,
  created_at,
  updated_at,
  completed_at
`

const defaultListLimit = 50

const maxListLimit = 500

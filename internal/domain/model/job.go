// Package model defines the core data types shared by the bulk job subsystem.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobKind selects the lookup operation and the preferred credit pool.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current status of a bulk job.
type JobStatus string

// ItemStatus represents the processing state of a single item.
type ItemStatus string

const (
	// JobKindFind discovers an address from a name and domain.
	JobKindFind JobKind = "find"
	// JobKindVerify checks deliverability of an existing address.
	JobKindVerify JobKind = "verify"

	// JobStatusPending indicates a job is waiting for an executor.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates an executor currently owns the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates every item reached a terminal state.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the executor aborted on an unexpected error.
	JobStatusFailed JobStatus = "failed"
	// JobStatusPaused indicates the owner stopped the job.
	JobStatusPaused JobStatus = "paused"

	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// ItemErrInsufficientCredits is recorded on items skipped for lack of credits.
const ItemErrInsufficientCredits = "insufficient_credits"

// ErrNoJobsAvailable is returned when no pending jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for JobKind.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jk := JobKind(v)
	if jk.Valid() {
		*k = jk
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// Valid returns true if the JobKind is valid.
func (k JobKind) Valid() bool {
	return k == JobKindFind || k == JobKindVerify
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusPaused:
		return true
	}
	return false
}

// Terminal reports whether polling clients can stop polling.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusPaused
}

// Terminal reports whether the item has a final outcome.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// ItemInput is the raw unit of work. Find items carry Name and Domain (Role optional),
// verify items carry Email.
type ItemInput struct {
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
	Role   string `json:"role,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Item is one entry in a job's ordered work list.
type Item struct {
	Input  ItemInput     `json:"input"`
	Status ItemStatus    `json:"status"`
	Result *LookupResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Job is a persisted unit of bulk work.
// ChargedCredits is the cumulative number of credits debited for the job and
// RecordedCredits the part of it already written to the ledger.
type Job struct {
	ID              string     `json:"id"                      db:"id"`
	OwnerID         string     `json:"owner_id"                db:"owner_id"`
	Kind            JobKind    `json:"kind"                    db:"kind"`
	Status          JobStatus  `json:"status"                  db:"status"`
	Items           []Item     `json:"items,omitempty"         db:"items"`
	TotalItems      int        `json:"total_items"             db:"total_items"`
	CurrentIndex    int        `json:"current_index"           db:"current_index"`
	ProcessedCount  int        `json:"processed_count"         db:"processed_count"`
	SuccessCount    int        `json:"success_count"           db:"success_count"`
	FailedCount     int        `json:"failed_count"            db:"failed_count"`
	ErrorMessage    *string    `json:"error_message,omitempty" db:"error_message"`
	ResumeCount     int        `json:"resume_count"            db:"resume_count"`
	ChargedCredits  int64      `json:"charged_credits"         db:"charged_credits"`
	RecordedCredits int64      `json:"-"                       db:"recorded_credits"`
	RunToken        string     `json:"-"                       db:"run_token"`
	CreatedAt       time.Time  `json:"created_at"              db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"              db:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"  db:"completed_at"`
}

// Remaining returns the number of items at or after the cursor.
func (j *Job) Remaining() int {
	if j.CurrentIndex >= j.TotalItems {
		return 0
	}
	return j.TotalItems - j.CurrentIndex
}

// Unsettled reports whether items remain or charged credits are not yet in
// the ledger. A run over an unsettled job with no items left only records the
// outstanding charge and completes.
func (j *Job) Unsettled() bool {
	return j.Remaining() > 0 || j.RecordedCredits < j.ChargedCredits
}

// Resumable reports whether a stopped or failed job still has work left.
func (j *Job) Resumable() bool {
	return (j.Status == JobStatusPaused || j.Status == JobStatusFailed) && j.Unsettled()
}

// Ref returns the fencing reference for the current run.
func (j *Job) Ref() RunRef {
	return RunRef{JobID: j.ID, Token: j.RunToken}
}

// Summary returns a copy without the item array, for list views.
func (j *Job) Summary() *Job {
	cp := *j
	cp.Items = nil
	return &cp
}

// Checkpoint is the durable progress written after every item or batch.
type Checkpoint struct {
	Items          []Item
	CurrentIndex   int
	ProcessedCount int
	SuccessCount   int
	FailedCount    int
	ChargedCredits int64
}

// Validate enforces the counter invariants.
func (c Checkpoint) Validate(total int) error {
	if c.ProcessedCount != c.SuccessCount+c.FailedCount {
		return fmt.Errorf("processed %d != success %d + failed %d", c.ProcessedCount, c.SuccessCount, c.FailedCount)
	}
	if c.ProcessedCount > total || c.CurrentIndex > total {
		return fmt.Errorf("progress beyond %d items", total)
	}
	if len(c.Items) != total {
		return fmt.Errorf("items length %d != total %d", len(c.Items), total)
	}
	return nil
}

// SubmitJobRequest represents a request to create a new bulk job.
type SubmitJobRequest struct {
	Kind  JobKind     `json:"kind"`
	Items []ItemInput `json:"items"`
}

// NewItems builds the pending item array for a submission.
func NewItems(inputs []ItemInput) []Item {
	items := make([]Item, len(inputs))
	for i, in := range inputs {
		items[i] = Item{Input: in, Status: ItemStatusPending}
	}
	return items
}

// MarshalItems encodes items for storage.
func MarshalItems(items []Item) (json.RawMessage, error) {
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	return b, nil
}

// JobListOptions scopes and pages ListByOwner.
type JobListOptions struct {
	OwnerID string
	Status  *JobStatus
	Limit   int
	Offset  int
}

// RequeuedJob identifies a job the recovery daemon moved back to pending.
type RequeuedJob struct {
	ID           string  `json:"id"`
	Kind         JobKind `json:"kind"`
	CurrentIndex int     `json:"current_index"`
	ResumeCount  int     `json:"resume_count"`
}

// RunRef fences executor writes to the run that claimed the job. A requeued
// and re-claimed job gets a new token, so a stale executor's writes are rejected.
type RunRef struct {
	JobID string
	Token string
}

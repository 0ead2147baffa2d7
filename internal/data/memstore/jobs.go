// Package memstore holds in-memory implementations of the job store, credit
// ledger and idempotency store. They follow the same contracts as the
// Postgres and Redis repositories and back tests and single-process dev runs.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/data"
	"github.com/target/bulkmail/internal/domain/model"
)

// JobStore is an in-memory core.JobRepository and core.JobRecoveryRepository.
type JobStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	ready map[model.JobKind]chan struct{}
	clock data.TimeProvider
}

var (
	_ core.JobRepository         = (*JobStore)(nil)
	_ core.JobRecoveryRepository = (*JobStore)(nil)
)

// NewJobStore creates an empty store. A nil clock uses wall time.
func NewJobStore(clock data.TimeProvider) *JobStore {
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	return &JobStore{
		jobs:  make(map[string]*model.Job),
		ready: make(map[model.JobKind]chan struct{}),
		clock: clock,
	}
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	if j.Items != nil {
		cp.Items = make([]model.Item, len(j.Items))
		for i, it := range j.Items {
			cp.Items[i] = it
			if it.Result != nil {
				r := *it.Result
				cp.Items[i].Result = &r
			}
		}
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		cp.ErrorMessage = &msg
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// notifyLocked wakes every WaitForNotification caller for kind.
func (s *JobStore) notifyLocked(kind model.JobKind) {
	if ch, ok := s.ready[kind]; ok {
		close(ch)
		delete(s.ready, kind)
	}
}

// Create stores a pending copy of job.
func (s *JobStore) Create(_ context.Context, job *model.Job) (*model.Job, error) {
	if job == nil || !job.Kind.Valid() || strings.TrimSpace(job.OwnerID) == "" || len(job.Items) == 0 {
		return nil, errInvalidJob
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j := cloneJob(job)
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := s.clock.Now().UTC()
	j.Status = model.JobStatusPending
	j.TotalItems = len(j.Items)
	j.CurrentIndex, j.ProcessedCount, j.SuccessCount, j.FailedCount = 0, 0, 0, 0
	j.ErrorMessage, j.CompletedAt, j.RunToken = nil, nil, ""
	j.CreatedAt, j.UpdatedAt = now, now
	s.jobs[j.ID] = j
	s.notifyLocked(j.Kind)
	return cloneJob(j), nil
}

// GetByID returns a copy of the job.
func (s *JobStore) GetByID(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// GetForOwner returns the job only to its owner.
func (s *JobStore) GetForOwner(_ context.Context, id, ownerID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, model.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// ListByOwner returns summaries, newest first.
func (s *JobStore) ListByOwner(_ context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*model.Job
	for _, j := range s.jobs {
		if j.OwnerID != opts.OwnerID || (opts.Status != nil && j.Status != *opts.Status) {
			continue
		}
		all = append(all, j.Summary())
	}
	slices.SortFunc(all, func(a, b *model.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	offset := min(max(opts.Offset, 0), len(all))
	all = all[offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (s *JobStore) claimLocked(j *model.Job) *model.Job {
	j.Status = model.JobStatusProcessing
	j.RunToken = uuid.NewString()
	j.ErrorMessage = nil
	j.UpdatedAt = s.clock.Now().UTC()
	return cloneJob(j)
}

// Claim moves a pending job to processing.
func (s *JobStore) Claim(_ context.Context, id string) (*model.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false, model.ErrJobNotFound
	}
	if j.Status != model.JobStatusPending {
		return nil, false, nil
	}
	return s.claimLocked(j), true, nil
}

// ReserveNext claims the oldest pending job of kind.
func (s *JobStore) ReserveNext(_ context.Context, kind model.JobKind) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *model.Job
	for _, j := range s.jobs {
		if j.Kind != kind || j.Status != model.JobStatusPending {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) {
			next = j
		}
	}
	if next == nil {
		return nil, model.ErrNoJobsAvailable
	}
	return s.claimLocked(next), nil
}

// WaitForNotification blocks until a job of kind becomes pending or ctx ends.
func (s *JobStore) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	s.mu.Lock()
	ch, ok := s.ready[kind]
	if !ok {
		ch = make(chan struct{})
		s.ready[kind] = ch
	}
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current status.
func (s *JobStore) Status(_ context.Context, id string) (model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return "", model.ErrJobNotFound
	}
	return j.Status, nil
}

// runLocked returns the job if ref still owns it and its status is one of allowed.
func (s *JobStore) runLocked(ref model.RunRef, allowed ...model.JobStatus) (*model.Job, bool, error) {
	if ref.Token == "" {
		return nil, false, model.ErrRunTokenRequired
	}
	j, ok := s.jobs[ref.JobID]
	if !ok {
		return nil, false, model.ErrJobNotFound
	}
	if j.RunToken != ref.Token || !slices.Contains(allowed, j.Status) {
		return nil, false, nil
	}
	return j, true, nil
}

// Checkpoint persists progress for the run.
func (s *JobStore) Checkpoint(_ context.Context, ref model.RunRef, cp model.Checkpoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.runLocked(ref, model.JobStatusProcessing, model.JobStatusPaused)
	if err != nil || !ok {
		return false, err
	}
	if err := cp.Validate(j.TotalItems); err != nil {
		return false, err
	}
	tmp := cloneJob(&model.Job{Items: cp.Items})
	j.Items = tmp.Items
	j.CurrentIndex = cp.CurrentIndex
	j.ProcessedCount = cp.ProcessedCount
	j.SuccessCount = cp.SuccessCount
	j.FailedCount = cp.FailedCount
	j.ChargedCredits = cp.ChargedCredits
	j.UpdatedAt = s.clock.Now().UTC()
	return true, nil
}

// Heartbeat refreshes UpdatedAt while the run owns a processing job.
func (s *JobStore) Heartbeat(_ context.Context, ref model.RunRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.runLocked(ref, model.JobStatusProcessing)
	if err != nil || !ok {
		return false, err
	}
	j.UpdatedAt = s.clock.Now().UTC()
	return true, nil
}

// Complete marks the job completed.
func (s *JobStore) Complete(_ context.Context, ref model.RunRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.runLocked(ref, model.JobStatusProcessing, model.JobStatusPaused)
	if err != nil || !ok {
		return false, err
	}
	if j.Status == model.JobStatusPaused && j.Remaining() > 0 {
		return false, nil
	}
	now := s.clock.Now().UTC()
	j.Status = model.JobStatusCompleted
	j.ErrorMessage = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return true, nil
}

// Fail marks the job failed with msg.
func (s *JobStore) Fail(_ context.Context, ref model.RunRef, msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.runLocked(ref, model.JobStatusProcessing)
	if err != nil || !ok {
		return false, err
	}
	j.Status = model.JobStatusFailed
	j.ErrorMessage = &msg
	j.UpdatedAt = s.clock.Now().UTC()
	return true, nil
}

// MarkRecorded advances RecordedCredits.
func (s *JobStore) MarkRecorded(_ context.Context, id string, recorded int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.ErrJobNotFound
	}
	j.RecordedCredits = max(j.RecordedCredits, recorded)
	return nil
}

// Stop pauses a pending or processing job.
func (s *JobStore) Stop(_ context.Context, id, ownerID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, model.ErrJobNotFound
	}
	if j.Status != model.JobStatusPending && j.Status != model.JobStatusProcessing {
		return nil, model.ErrJobNotStoppable
	}
	j.Status = model.JobStatusPaused
	j.UpdatedAt = s.clock.Now().UTC()
	return cloneJob(j), nil
}

// Resume returns an unsettled paused or failed job to pending.
func (s *JobStore) Resume(_ context.Context, id, ownerID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, model.ErrJobNotFound
	}
	if !j.Resumable() {
		return nil, model.ErrJobNotResumable
	}
	j.Status = model.JobStatusPending
	j.ErrorMessage = nil
	j.ResumeCount = 0
	j.UpdatedAt = s.clock.Now().UTC()
	s.notifyLocked(j.Kind)
	return cloneJob(j), nil
}

type sweepFilter func(j *model.Job, now time.Time) bool

func (s *JobStore) sweep(limit int, match sweepFilter) []model.RequeuedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()

	var hits []*model.Job
	for _, j := range s.jobs {
		if match(j, now) {
			hits = append(hits, j)
		}
	}
	slices.SortFunc(hits, func(a, b *model.Job) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	if limit <= 0 {
		limit = 100
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]model.RequeuedJob, 0, len(hits))
	for _, j := range hits {
		j.Status = model.JobStatusPending
		j.RunToken = ""
		j.ErrorMessage = nil
		j.ResumeCount++
		j.UpdatedAt = now
		out = append(out, model.RequeuedJob{ID: j.ID, Kind: j.Kind, CurrentIndex: j.CurrentIndex, ResumeCount: j.ResumeCount})
		s.notifyLocked(j.Kind)
	}
	return out
}

// RequeueStale returns processing jobs with an old heartbeat to pending.
func (s *JobStore) RequeueStale(_ context.Context, params core.RequeueStaleParams) ([]model.RequeuedJob, error) {
	if params.StaleAfter <= 0 {
		return nil, errInvalidStaleAfter
	}
	return s.sweep(params.Limit, func(j *model.Job, now time.Time) bool {
		return j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(now.Add(-params.StaleAfter))
	}), nil
}

// RetryFailed returns unsettled failed jobs with retry budget to pending.
func (s *JobStore) RetryFailed(_ context.Context, params core.RetryFailedParams) ([]model.RequeuedJob, error) {
	if params.MaxResumes <= 0 {
		return nil, nil
	}
	return s.sweep(params.Limit, func(j *model.Job, now time.Time) bool {
		return j.Status == model.JobStatusFailed &&
			j.Unsettled() &&
			j.ResumeCount < params.MaxResumes &&
			j.UpdatedAt.Before(now.Add(-params.RetryAfter))
	}), nil
}

// Package httpx provides the HTTP API of the bulk email job service.
package httpx

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/bulkmail/internal/domain/model"
	"github.com/target/bulkmail/internal/service"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 200
	defaultCreditLimit = 20
	maxCreditLimit     = 100

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// JobHandlers provides HTTP handlers for bulk jobs and the caller's credits.
type JobHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

func (h *JobHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *JobHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if writeServiceError(w, r, err) {
		h.logger().ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"owner_id", OwnerFromContext(r.Context()),
			"error", err,
		)
	}
}

// Submit admits a bulk job and returns 202 with its summary. Execution
// happens in the background; clients poll the status endpoint.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), service.SubmitParams{
		OwnerID:        OwnerFromContext(r.Context()),
		Kind:           req.Kind,
		Items:          req.Items,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/bulk-jobs/"+job.ID)
	WriteJSON(w, http.StatusAccepted, job.Summary())
}

// List returns summaries of the caller's jobs, newest first.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)
	opts := model.JobListOptions{
		OwnerID: OwnerFromContext(r.Context()),
		Limit:   limit,
		Offset:  offset,
	}
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		st := model.JobStatus(strings.ToLower(s))
		opts.Status = &st
	}

	jobs, err := h.Svc.ListJobs(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "limit": limit, "offset": offset})
}

// Get returns the full job including every item.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.GetJob(r.Context(), id, OwnerFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Stop pauses the job at its next batch boundary.
func (h *JobHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.Svc.Stop(r.Context(), id, OwnerFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Resume requeues a paused or failed job from its cursor.
func (h *JobHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.Resume(r.Context(), id, OwnerFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, job.Summary())
}

// Export streams the per-item results as an XLSX workbook.
func (h *JobHandlers) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data, err := h.Svc.ExportJob(r.Context(), id, OwnerFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "bulk-job-"+id+".xlsx"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger().WarnContext(r.Context(), "export write failed", "job_id", id, "error", err)
	}
}

// Credits returns the caller's balances and recent ledger transactions.
func (h *JobHandlers) Credits(w http.ResponseWriter, r *http.Request) {
	limit, _ := ParseLimitOffset(r, defaultCreditLimit, maxCreditLimit)
	view, err := h.Svc.Credits(r.Context(), OwnerFromContext(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

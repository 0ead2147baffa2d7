// Package metrics emits bulk job metrics through a statsd.Sink.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/bulkmail/internal/observability/errors"
	"github.com/target/bulkmail/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Kind       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":       in.Kind,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("bulk_job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("bulk_job.duration", in.Duration, CloneTags(tags))
	}
}

// BatchMetric summarises one executor batch.
type BatchMetric struct {
	Kind      string
	Succeeded int
	Failed    int
	Skipped   int // items failed for lack of credits, no lookup attempted
	Charged   int64
	Duration  time.Duration
}

// EmitBatch emits item outcome counters and the credits charged by a batch.
func EmitBatch(sink statsd.Sink, in BatchMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"kind": in.Kind}

	for outcome, n := range map[string]int{
		"success":              in.Succeeded,
		"failed":               in.Failed,
		"insufficient_credits": in.Skipped,
	} {
		if n == 0 {
			continue
		}
		t := CloneTags(tags)
		t["outcome"] = outcome
		sink.Count("bulk_job.items", int64(n), t)
	}
	if in.Charged > 0 {
		sink.Count("credits.debited", in.Charged, CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("bulk_job.batch_duration", in.Duration, CloneTags(tags))
	}
}

// RecoveryMetric summarises one recovery sweep.
type RecoveryMetric struct {
	Operation string // requeue_stale or retry_failed
	Count     int
	Err       error
}

// EmitRecovery emits the outcome of a recovery sweep.
func EmitRecovery(sink statsd.Sink, in RecoveryMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Count == 0:
		result = ResultNoop
	}
	tags := map[string]string{
		"operation": in.Operation,
		"result":    result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("recovery.sweep", 1, tags)
	if in.Count > 0 {
		sink.Count("recovery.jobs_requeued", int64(in.Count), CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

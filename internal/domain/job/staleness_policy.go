package job

import (
	"errors"
	"time"
)

// ErrInvalidHeartbeat indicates the configured heartbeat interval is not positive.
var ErrInvalidHeartbeat = errors.New("heartbeat interval must be positive")

// StalenessSource identifies how a staleness threshold was resolved.
type StalenessSource string

const (
	// StalenessSourceMultiple indicates the threshold is heartbeat * multiple.
	StalenessSourceMultiple StalenessSource = "multiple"
	// StalenessSourceMin indicates the threshold was raised to the configured floor.
	StalenessSourceMin StalenessSource = "min"
	// StalenessSourceMax indicates the threshold was lowered to the configured ceiling.
	StalenessSourceMax StalenessSource = "max"
)

// StalenessPolicy decides when a processing job without heartbeats is considered orphaned.
// The threshold is always a multiple of the heartbeat interval so a live executor
// that misses one or two beats is never requeued underneath itself.
type StalenessPolicy struct {
	heartbeat time.Duration
	multiple  int
	min       time.Duration
	max       time.Duration
}

// StalenessPolicyParams configures a StalenessPolicy.
type StalenessPolicyParams struct {
	Heartbeat time.Duration
	Multiple  int
	Min       time.Duration
	Max       time.Duration
}

// DefaultStalenessMultiple is used when Multiple is not positive.
const DefaultStalenessMultiple = 4

// NewStalenessPolicy constructs a StalenessPolicy.
func NewStalenessPolicy(p StalenessPolicyParams) (*StalenessPolicy, error) {
	if p.Heartbeat <= 0 {
		return nil, ErrInvalidHeartbeat
	}
	if p.Multiple <= 0 {
		p.Multiple = DefaultStalenessMultiple
	}
	// The floor can never drop below two beats.
	if p.Min < 2*p.Heartbeat {
		p.Min = 2 * p.Heartbeat
	}
	if p.Max > 0 && p.Max < p.Min {
		p.Max = p.Min
	}
	return &StalenessPolicy{
		heartbeat: p.Heartbeat,
		multiple:  p.Multiple,
		min:       p.Min,
		max:       p.Max,
	}, nil
}

// Heartbeat returns the configured heartbeat interval.
func (p *StalenessPolicy) Heartbeat() time.Duration {
	if p == nil {
		return 0
	}
	return p.heartbeat
}

// StalenessDecision captures the resolved threshold.
type StalenessDecision struct {
	Threshold time.Duration
	Source    StalenessSource
}

// Clamped reports whether the threshold hit a configured bound.
func (d StalenessDecision) Clamped() bool {
	return d.Source != StalenessSourceMultiple
}

// Resolve returns the staleness threshold.
func (p *StalenessPolicy) Resolve() StalenessDecision {
	if p == nil {
		return StalenessDecision{}
	}
	threshold := p.heartbeat * time.Duration(p.multiple)
	switch {
	case threshold < p.min:
		return StalenessDecision{Threshold: p.min, Source: StalenessSourceMin}
	case p.max > 0 && threshold > p.max:
		return StalenessDecision{Threshold: p.max, Source: StalenessSourceMax}
	default:
		return StalenessDecision{Threshold: threshold, Source: StalenessSourceMultiple}
	}
}

// IsStale reports whether a job last touched at updatedAt is orphaned at now.
func (p *StalenessPolicy) IsStale(updatedAt, now time.Time) bool {
	return now.Sub(updatedAt) > p.Resolve().Threshold
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeExecutor runs the bulk job workers.
	ServiceModeExecutor ServiceMode = "executor"
	// ServiceModeRecovery runs the heartbeat recovery daemon.
	ServiceModeRecovery ServiceMode = "recovery"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeExecutor, ServiceModeRecovery}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.ToLower(strings.TrimSpace(part))
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeExecutor, ServiceModeRecovery:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, executor, recovery)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ExecutorConfig contains bulk executor configuration.
type ExecutorConfig struct {
	// FindConcurrency and VerifyConcurrency bound concurrently running jobs per kind.
	FindConcurrency   int `env:"EXECUTOR_FIND_CONCURRENCY"   envDefault:"2"`
	VerifyConcurrency int `env:"EXECUTOR_VERIFY_CONCURRENCY" envDefault:"2"`

	// BatchSize is the number of items looked up between checkpoints.
	BatchSize int `env:"EXECUTOR_BATCH_SIZE" envDefault:"10"`

	// HeartbeatInterval is how often a running job refreshes updatedAt.
	HeartbeatInterval time.Duration `env:"EXECUTOR_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// PollInterval bounds how long an idle worker waits for a notification before polling.
	PollInterval time.Duration `env:"EXECUTOR_POLL_INTERVAL" envDefault:"30s"`

	// ErrorBackoff is the pause after a failed reservation.
	ErrorBackoff time.Duration `env:"EXECUTOR_ERROR_BACKOFF" envDefault:"2s"`

	// FinalizeTimeout bounds end-of-run writes after shutdown was requested.
	FinalizeTimeout time.Duration `env:"EXECUTOR_FINALIZE_TIMEOUT" envDefault:"10s"`

	// MaxItems caps the size of one submission.
	MaxItems int `env:"EXECUTOR_MAX_ITEMS" envDefault:"10000"`
}

// Sanitize applies guardrails to executor configuration values.
func (e *ExecutorConfig) Sanitize() {
	if e.FindConcurrency < 0 {
		e.FindConcurrency = 0
	}
	if e.VerifyConcurrency < 0 {
		e.VerifyConcurrency = 0
	}
	if e.BatchSize < 1 {
		e.BatchSize = 1
	}
	if e.BatchSize > 100 {
		e.BatchSize = 100
	}
	if e.HeartbeatInterval < time.Second {
		e.HeartbeatInterval = time.Second
	}
	if e.PollInterval < time.Second {
		e.PollInterval = time.Second
	}
	if e.ErrorBackoff <= 0 {
		e.ErrorBackoff = 2 * time.Second
	}
	if e.FinalizeTimeout <= 0 {
		e.FinalizeTimeout = 10 * time.Second
	}
	if e.MaxItems < 1 {
		e.MaxItems = 1
	}
}

// RecoveryConfig contains heartbeat recovery daemon configuration.
type RecoveryConfig struct {
	// Interval is the recovery tick interval. Ignored when Schedule is set.
	Interval time.Duration `env:"RECOVERY_INTERVAL" envDefault:"1m"`

	// Schedule is an optional five-field cron expression that replaces Interval.
	Schedule string `env:"RECOVERY_SCHEDULE"`

	// StalenessMultiple, StalenessMin and StalenessMax resolve the stale
	// threshold from the executor heartbeat interval.
	StalenessMultiple int           `env:"RECOVERY_STALENESS_MULTIPLE" envDefault:"4"`
	StalenessMin      time.Duration `env:"RECOVERY_STALENESS_MIN"      envDefault:"2m"`
	StalenessMax      time.Duration `env:"RECOVERY_STALENESS_MAX"      envDefault:"30m"`

	// FailedRetryDelay is how long a failed job rests before automatic retry.
	FailedRetryDelay time.Duration `env:"RECOVERY_FAILED_RETRY_DELAY" envDefault:"5m"`

	// MaxResumes bounds automatic retries of a failed job; zero disables them.
	MaxResumes int `env:"RECOVERY_MAX_RESUMES" envDefault:"3"`

	// BatchLimit caps how many jobs one tick requeues.
	BatchLimit int `env:"RECOVERY_BATCH_LIMIT" envDefault:"100"`
}

// Sanitize applies guardrails to recovery configuration values.
func (r *RecoveryConfig) Sanitize() {
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Interval < 5*time.Second {
		r.Interval = 5 * time.Second
	}
	if r.StalenessMultiple < 2 {
		r.StalenessMultiple = 2
	}
	if r.StalenessMax > 0 && r.StalenessMax < r.StalenessMin {
		r.StalenessMax = r.StalenessMin
	}
	if r.FailedRetryDelay < 0 {
		r.FailedRetryDelay = 0
	}
	if r.MaxResumes < 0 {
		r.MaxResumes = 0
	}
	if r.BatchLimit < 1 {
		r.BatchLimit = 1
	}
	if r.BatchLimit > 10000 {
		r.BatchLimit = 10000
	}
}

// ParseSchedule parses a standard five-field cron expression.
//
//nolint:ireturn // cron.Schedule is the library's abstraction over spec and descriptor schedules.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// IdempotencyConfig controls Idempotency-Key handling on submission.
type IdempotencyConfig struct {
	// Enabled stores keys in Redis; when false the header is ignored.
	Enabled bool          `env:"IDEMPOTENCY_ENABLED" envDefault:"true"`
	TTL     time.Duration `env:"IDEMPOTENCY_TTL"     envDefault:"24h"`
}

// Sanitize applies guardrails to idempotency configuration values.
func (i *IdempotencyConfig) Sanitize() {
	if i.TTL < time.Minute {
		i.TTL = time.Minute
	}
}

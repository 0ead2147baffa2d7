package config

import (
	"strings"
	"time"
)

// LookupConfig configures the external email finder/verifier client.
type LookupConfig struct {
	BaseURL string        `env:"LOOKUP_BASE_URL"`
	APIKey  string        `env:"LOOKUP_API_KEY"`
	Timeout time.Duration `env:"LOOKUP_TIMEOUT"  envDefault:"10s"`

	// RateLimit is requests per second across all workers in this process; 0 disables limiting.
	RateLimit float64 `env:"LOOKUP_RATE_LIMIT" envDefault:"20"`
	Burst     int     `env:"LOOKUP_BURST"      envDefault:"20"`

	// JMESPath expressions locating fields in the provider response.
	StatusPath     string `env:"LOOKUP_STATUS_PATH"     envDefault:"status"`
	EmailPath      string `env:"LOOKUP_EMAIL_PATH"      envDefault:"email"`
	ConfidencePath string `env:"LOOKUP_CONFIDENCE_PATH" envDefault:"confidence"`
}

// Sanitize applies guardrails to lookup configuration values.
func (l *LookupConfig) Sanitize() {
	l.BaseURL = strings.TrimRight(strings.TrimSpace(l.BaseURL), "/")
	l.APIKey = strings.TrimSpace(l.APIKey)
	if l.Timeout <= 0 {
		l.Timeout = 10 * time.Second
	}
	if l.RateLimit < 0 {
		l.RateLimit = 0
	}
	if l.Burst < 1 {
		l.Burst = 1
	}
}

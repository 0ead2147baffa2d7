package config

import (
	"log/slog"
	"strings"
	"time"
)

const defaultMetricsPrefix = "bulkmail"

// ObservabilityConfig groups configuration that controls logging and metrics.
type ObservabilityConfig struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// Level maps LogLevel onto slog, defaulting to info.
func (c *ObservabilityConfig) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"METRICS_PREFIX"         envDefault:"bulkmail"`

	// Tags is a comma separated key:value list stamped on every metric, e.g. env:prod,region:us.
	Tags map[string]string `env:"METRICS_TAGS"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if c.Prefix = strings.TrimSpace(c.Prefix); c.Prefix == "" {
		c.Prefix = defaultMetricsPrefix
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls operator alerts for failed bulk jobs.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"3"`

	Slack     SlackNotificationConfig     `envPrefix:"SLACK_"`
	PagerDuty PagerDutyNotificationConfig `envPrefix:"PAGERDUTY_"`
}

// SlackNotificationConfig configures the Slack webhook sink.
type SlackNotificationConfig struct {
	Enabled      bool   `env:"ENABLED"        envDefault:"false"`
	WebhookURL   string `env:"WEBHOOK_URL"`
	Channel      string `env:"CHANNEL"`
	Username     string `env:"USERNAME"       envDefault:"bulkmail"`
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

// PagerDutyNotificationConfig configures the PagerDuty Events API sink.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"bulkmail"`
	Component  string `env:"COMPONENT"   envDefault:"executor"`
}

// Sanitize disables sinks that cannot deliver and clamps delivery settings.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)
	c.Slack.Channel = strings.TrimSpace(c.Slack.Channel)
	c.Slack.JobURLPrefix = strings.TrimSpace(c.Slack.JobURLPrefix)
	if !c.Enabled || c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}

	c.PagerDuty.RoutingKey = strings.TrimSpace(c.PagerDuty.RoutingKey)
	if !c.Enabled || c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// HasSinks reports whether at least one sink survived sanitisation.
func (c *ObservabilityNotificationsConfig) HasSinks() bool {
	return c.Enabled && (c.Slack.Enabled || c.PagerDuty.Enabled)
}

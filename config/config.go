package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: caller authentication
//   - database.go: Postgres and Redis
//   - http.go: HTTP server
//   - services.go: service modes, executor and recovery
//   - lookup.go: the external finder/verifier
//   - observability.go: logging and metrics
type AppConfig struct {
	// IsDev relaxes production guardrails (dev auth without a default owner warning, text logs).
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled service modes.
	Services string `env:"SERVICES" envDefault:"http,executor,recovery"`

	Executor    ExecutorConfig
	Recovery    RecoveryConfig
	Lookup      LookupConfig
	Idempotency IdempotencyConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.HTTP.Sanitize()
	c.Executor.Sanitize()
	c.Recovery.Sanitize()
	c.Lookup.Sanitize()
	c.Idempotency.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode treats APP_ENV=development like DEV=true.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// Validate reports configuration that cannot start the enabled services.
func (c *AppConfig) Validate() error {
	services, err := c.GetEnabledServices()
	if err != nil {
		return err
	}

	var errs []error
	if services[ServiceModeHTTP] {
		if err := c.Auth.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if services[ServiceModeExecutor] && c.Lookup.BaseURL == "" {
		errs = append(errs, errors.New("LOOKUP_BASE_URL is required when the executor is enabled"))
	}
	if c.Recovery.Schedule != "" {
		if _, err := ParseSchedule(c.Recovery.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("RECOVERY_SCHEDULE: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsEnabled reports whether the given service mode is enabled.
func (c *AppConfig) IsEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

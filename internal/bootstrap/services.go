package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/bulkmail/config"
	"github.com/target/bulkmail/internal/adapters/jobrunner"
	"github.com/target/bulkmail/internal/adapters/lookup"
	"github.com/target/bulkmail/internal/adapters/recovery"
	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/data"
	domainjob "github.com/target/bulkmail/internal/domain/job"
	"github.com/target/bulkmail/internal/domain/model"
	httpx "github.com/target/bulkmail/internal/http"
	"github.com/target/bulkmail/internal/observability/notify/pagerduty"
	"github.com/target/bulkmail/internal/observability/notify/slack"
	"github.com/target/bulkmail/internal/observability/statsd"
	"github.com/target/bulkmail/internal/ports"
	"github.com/target/bulkmail/internal/service"
	"github.com/target/bulkmail/internal/service/failurenotifier"
)

// shutdownWaitTimeout is the maximum time to wait for a background service to stop.
const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds the application services built for the enabled modes.
// Components of a disabled mode are nil.
type ServiceContainer struct {
	Jobs          *service.JobService
	Authenticator ports.Authenticator
	HealthChecks  map[string]httpx.HealthCheck

	Executor *service.Executor
	Pool     *jobrunner.Pool

	Recovery *recovery.Runner

	Metrics *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: enables Idempotency-Key support
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports; no business rules here.
type serviceRepositories struct {
	Jobs        *data.JobRepo
	Credits     *data.CreditRepo
	Idempotency *data.RedisIdempotencyRepo
}

func buildRepositories(deps *ServiceDeps, logger *slog.Logger) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: logger}
	repos := &serviceRepositories{
		Jobs:    data.NewJobRepo(deps.DB, repoCfg),
		Credits: data.NewCreditRepo(deps.DB, repoCfg),
	}
	if deps.RedisClient != nil && deps.Config.Idempotency.Enabled {
		repos.Idempotency = data.NewRedisIdempotencyRepo(deps.RedisClient)
	}
	return repos
}

// buildMetrics returns the statsd client, or nil when metrics are disabled or the
// client cannot be created. Metrics never block startup.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Tags:    cfg.Tags,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// buildFailureNotifier registers the configured alert sinks. A sink that
// cannot be constructed is logged and skipped; nil means no sink is active.
func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	if !cfg.HasSinks() {
		return nil
	}

	var sinks []failurenotifier.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}
	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}
	if len(sinks) == 0 {
		return nil
	}

	logger.Info("job failure notifications enabled", "sinks", len(sinks))
	return failurenotifier.NewService(failurenotifier.Options{
		Logger: logger,
		Sinks:  sinks,
		// Covers every retry of the slowest sink.
		DeliveryTimeout: cfg.Timeout * time.Duration(cfg.RetryLimit+2),
	})
}

// NewServices wires repositories, the executor, the recovery daemon and the
// submission gate for the enabled service modes.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service dependencies with config are required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return nil, fmt.Errorf("determine enabled services: %w", err)
	}

	repos := buildRepositories(deps, logger)
	container := &ServiceContainer{Metrics: buildMetrics(logger, cfg.Observability.Metrics)}

	var sink statsd.Sink
	if container.Metrics != nil {
		sink = container.Metrics
	}

	var trigger core.JobTrigger
	if enabled[config.ServiceModeExecutor] {
		if err := buildExecutor(container, executorDeps{cfg: cfg, repos: repos, sink: sink, logger: logger}); err != nil {
			return nil, err
		}
		trigger = container.Pool
	}

	if enabled[config.ServiceModeRecovery] {
		runner, err := buildRecovery(recoveryDeps{cfg: cfg, repo: repos.Jobs, trigger: trigger, sink: sink, logger: logger})
		if err != nil {
			return nil, err
		}
		container.Recovery = runner
	}

	if enabled[config.ServiceModeHTTP] {
		if err := buildAPI(ctx, container, apiDeps{deps: deps, repos: repos, trigger: trigger, sink: sink}); err != nil {
			return nil, err
		}
	}

	return container, nil
}

type executorDeps struct {
	cfg    *config.AppConfig
	repos  *serviceRepositories
	sink   statsd.Sink
	logger *slog.Logger
}

func buildExecutor(container *ServiceContainer, deps executorDeps) error {
	lookupCfg := deps.cfg.Lookup
	client, err := lookup.NewClient(lookup.Options{
		BaseURL:   lookupCfg.BaseURL,
		APIKey:    lookupCfg.APIKey,
		Timeout:   lookupCfg.Timeout,
		RateLimit: lookupCfg.RateLimit,
		Burst:     lookupCfg.Burst,
		Paths: lookup.ResultPaths{
			Status:     lookupCfg.StatusPath,
			Email:      lookupCfg.EmailPath,
			Confidence: lookupCfg.ConfidencePath,
		},
		Logger: deps.logger,
	})
	if err != nil {
		return fmt.Errorf("create lookup client: %w", err)
	}

	var notifier service.FailureNotifier
	if n := buildFailureNotifier(deps.logger, deps.cfg.Observability.Notifications); n != nil {
		notifier = n
	}

	execCfg := deps.cfg.Executor
	executor, err := service.NewExecutor(service.ExecutorOptions{
		Jobs:              deps.repos.Jobs,
		Ledger:            deps.repos.Credits,
		Lookup:            client,
		BatchSize:         execCfg.BatchSize,
		HeartbeatInterval: execCfg.HeartbeatInterval,
		FinalizeTimeout:   execCfg.FinalizeTimeout,
		Notifier:          notifier,
		Logger:            deps.logger,
		Metrics:           deps.sink,
	})
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}

	pool, err := jobrunner.NewPool(jobrunner.PoolOptions{
		Jobs:     deps.repos.Jobs,
		Executor: executor,
		Concurrency: map[model.JobKind]int{
			model.JobKindFind:   execCfg.FindConcurrency,
			model.JobKindVerify: execCfg.VerifyConcurrency,
		},
		Logger:  deps.logger,
		Metrics: deps.sink,
	})
	if err != nil {
		return fmt.Errorf("create job runner pool: %w", err)
	}

	container.Executor = executor
	container.Pool = pool
	return nil
}

type recoveryDeps struct {
	cfg     *config.AppConfig
	repo    core.JobRecoveryRepository
	trigger core.JobTrigger
	sink    statsd.Sink
	logger  *slog.Logger
}

func buildRecovery(deps recoveryDeps) (*recovery.Runner, error) {
	recCfg := deps.cfg.Recovery
	policy, err := domainjob.NewStalenessPolicy(domainjob.StalenessPolicyParams{
		Heartbeat: deps.cfg.Executor.HeartbeatInterval,
		Multiple:  recCfg.StalenessMultiple,
		Min:       recCfg.StalenessMin,
		Max:       recCfg.StalenessMax,
	})
	if err != nil {
		return nil, fmt.Errorf("create staleness policy: %w", err)
	}

	svc, err := service.NewRecoveryService(service.RecoveryServiceOptions{
		Repo:             deps.repo,
		Policy:           policy,
		Trigger:          deps.trigger,
		Interval:         recCfg.Interval,
		FailedRetryDelay: recCfg.FailedRetryDelay,
		MaxResumes:       recCfg.MaxResumes,
		BatchLimit:       recCfg.BatchLimit,
		Logger:           deps.logger,
		Metrics:          deps.sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create recovery service: %w", err)
	}

	runner, err := recovery.NewRunner(recovery.RunnerOptions{
		Service:  svc,
		Schedule: recCfg.Schedule,
		Logger:   deps.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create recovery runner: %w", err)
	}
	return runner, nil
}

type apiDeps struct {
	deps    *ServiceDeps
	repos   *serviceRepositories
	trigger core.JobTrigger
	sink    statsd.Sink
}

func buildAPI(ctx context.Context, container *ServiceContainer, a apiDeps) error {
	cfg := a.deps.Config
	logger := a.deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := service.JobServiceOptions{
		Jobs:           a.repos.Jobs,
		Accounts:       a.repos.Credits,
		Trigger:        a.trigger,
		IdempotencyTTL: cfg.Idempotency.TTL,
		MaxItems:       cfg.Executor.MaxItems,
		Logger:         logger,
		Metrics:        a.sink,
	}
	if a.repos.Idempotency != nil {
		opts.Idempotency = a.repos.Idempotency
	} else if cfg.Idempotency.Enabled {
		logger.WarnContext(ctx, "idempotency keys disabled: redis client not configured")
	}

	jobs, err := service.NewJobService(opts)
	if err != nil {
		return fmt.Errorf("create job service: %w", err)
	}

	authn, err := BuildAuthenticator(ctx, AuthConfig{Auth: cfg.Auth, IsDev: cfg.IsDev, Logger: logger})
	if err != nil {
		return err
	}

	container.Jobs = jobs
	container.Authenticator = authn
	container.HealthChecks = buildHealthChecks(a.deps.DB, a.repos.Idempotency)
	return nil
}

func buildHealthChecks(db *sql.DB, idem *data.RedisIdempotencyRepo) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if idem != nil {
		checks["redis"] = idem.Health
	}
	return checks
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

func buildBackgroundServices(services *ServiceContainer) []backgroundService {
	if services == nil {
		return nil
	}
	var out []backgroundService
	if services.Pool != nil {
		out = append(out, backgroundService{
			mode:  config.ServiceModeExecutor,
			name:  "executor",
			start: services.Pool.Start,
			stop:  services.Pool.Stop,
		})
	}
	if services.Recovery != nil {
		out = append(out, backgroundService{
			mode:  config.ServiceModeRecovery,
			name:  "recovery",
			start: services.Recovery.Start,
			stop:  services.Recovery.Stop,
		})
	}
	return out
}

// startBackgroundServices starts services in order. If one fails, the ones
// already running are stopped again and the error is returned.
func startBackgroundServices(ctx context.Context, services []backgroundService, logger *slog.Logger) ([]backgroundService, error) {
	started := make([]backgroundService, 0, len(services))
	for _, svc := range services {
		if err := svc.start(ctx); err != nil {
			stopBackgroundServices(started, logger)
			return nil, fmt.Errorf("%s failed to start: %w", svc.name, err)
		}
		logger.InfoContext(ctx, "background service started", "service", svc.name, "mode", svc.mode)
		started = append(started, svc)
	}
	return started, nil
}

// stopBackgroundServices stops services in reverse start order, each under its own timeout.
func stopBackgroundServices(services []backgroundService, logger *slog.Logger) {
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		ctx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		if err := svc.stop(ctx); err != nil {
			logger.Warn("background service did not stop cleanly", "service", svc.name, "error", err)
		} else {
			logger.Info(svc.name + " stopped")
		}
		cancel()
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Services == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	background, err := startBackgroundServices(serviceCtx, buildBackgroundServices(cfg.Services), logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	var server *http.Server
	if cfg.Config.IsEnabled(config.ServiceModeHTTP) {
		server = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
			ErrCh:    errCh,
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		signals:         quit,
		errCh:           errCh,
		httpServer:      server,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
		backgrounds:     background,
		metrics:         cfg.Services.Metrics,
		logger:          logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	signals         <-chan os.Signal
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	backgrounds     []backgroundService
	metrics         *statsd.Client
	logger          *slog.Logger
}

// waitForShutdown waits for a shutdown signal or a service error, then stops everything.
func waitForShutdown(cfg shutdownConfig) error {
	var runErr error
	select {
	case sig := <-cfg.signals:
		cfg.logger.Info("shutting down services...", "signal", sig.String())
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		runErr = err
	}

	if err := gracefulStop(cfg); err != nil {
		if runErr != nil {
			cfg.logger.Error("graceful stop failed", "error", err)
			return runErr
		}
		return err
	}
	return runErr
}

// gracefulStop stops intake first, then the background workers, then flushes metrics.
func gracefulStop(cfg shutdownConfig) error {
	var errs []error
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Server:  cfg.httpServer,
			Timeout: cfg.shutdownTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}

	stopBackgroundServices(cfg.backgrounds, cfg.logger)

	if cfg.metrics != nil {
		if err := cfg.metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metrics client: %w", err))
		}
	}
	return errors.Join(errs...)
}

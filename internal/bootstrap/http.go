package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/bulkmail/config"
	httpx "github.com/target/bulkmail/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives ListenAndServe failures. Optional.
	ErrCh chan<- error
}

// StartHTTPServer builds the API handler and starts serving in the background.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil || cfg.Services == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpCfg := config.HTTPConfig{}
	if cfg.Config != nil {
		httpCfg = cfg.Config.HTTP
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Jobs:             cfg.Services.Jobs,
		Authenticator:    cfg.Services.Authenticator,
		HealthChecks:     cfg.Services.HealthChecks,
		CompressionLevel: httpCfg.CompressionLevel,
		Logger:           logger,
	})

	return startServer(logger, newServer(httpCfg, handler), cfg.ErrCh)
}

func newServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		ReadTimeout:       30 * time.Second,
		// Exports of large jobs are written in one response.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

func startServer(logger *slog.Logger, server *http.Server, errCh chan<- error) *http.Server {
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if errCh != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()
	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server, letting in-flight requests finish.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "HTTP server stopped")
	}

	return nil
}

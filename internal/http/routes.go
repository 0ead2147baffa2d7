package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/bulkmail/internal/ports"
	"github.com/target/bulkmail/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs          *service.JobService
	Authenticator ports.Authenticator
	// HealthChecks run on /healthz; a failing check turns it into a 503.
	HealthChecks map[string]HealthCheck
	// Now is used for principal expiry; defaults to time.Now.
	Now func() time.Time
	// CompressionLevel is the gzip level for JSON responses; zero uses the default.
	CompressionLevel int
	Logger           *slog.Logger
}

// NewRouter creates the API router wrapped in recovery, logging, and compression middleware.
func NewRouter(services RouterServices) http.Handler {
	if services.Jobs == nil || services.Authenticator == nil {
		panic("httpx: NewRouter requires Jobs and Authenticator") //nolint:forbidigo // Fail fast during server setup.
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	health := &healthHandler{checks: services.HealthChecks, logger: logger}
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	auth := RequireAuth(AuthOptions{
		Authenticator: services.Authenticator,
		Now:           services.Now,
		Logger:        logger,
	})
	registerJobRoutes(mux, &JobHandlers{Svc: services.Jobs, Logger: logger}, auth)

	var h http.Handler = mux
	h = Compression(CompressionConfig{Level: services.CompressionLevel, Logger: logger})(h)
	h = Logging(logger)(h)
	return Recover(logger)(h)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers, auth func(http.Handler) http.Handler) {
	wrap := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	mux.Handle("POST /api/bulk-jobs", wrap(h.Submit))
	mux.Handle("GET /api/bulk-jobs", wrap(h.List))
	mux.Handle("GET /api/bulk-jobs/{id}", wrap(h.Get))
	mux.Handle("GET /api/bulk-jobs/{id}/status", wrap(h.Get))
	mux.Handle("POST /api/bulk-jobs/{id}/stop", wrap(h.Stop))
	mux.Handle("POST /api/bulk-jobs/{id}/resume", wrap(h.Resume))
	mux.Handle("GET /api/bulk-jobs/{id}/export.xlsx", wrap(h.Export))
	mux.Handle("GET /api/credits", wrap(h.Credits))
}

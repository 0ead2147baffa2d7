package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	healthResponse   = `{"status":"ok"}`
	degradedResponse = `{"status":"unavailable"}`
	healthTimeout    = 2 * time.Second
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// healthHandler returns 200 when every check passes and 503 otherwise.
type healthHandler struct {
	checks map[string]HealthCheck
	logger *slog.Logger
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, healthResponse
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				if h.logger != nil {
					h.logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
				}
				status, body = http.StatusServiceUnavailable, degradedResponse
				break
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, body); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

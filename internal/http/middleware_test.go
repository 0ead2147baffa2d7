package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
	mockauth "github.com/target/bulkmail/internal/mocks/auth"
	"github.com/target/bulkmail/internal/ports"
)

type failingAuthenticator struct{ err error }

func (a failingAuthenticator) Authenticate(context.Context, ports.Credentials) (domainauth.Principal, error) {
	return domainauth.Principal{}, a.err
}

func TestRequireAuth_StoresPrincipal(t *testing.T) {
	authn := mockauth.NewStaticAuthenticator(map[string]domainauth.Principal{
		"good": {OwnerID: "owner-9", Email: "o9@example.com"},
	})
	var seen domainauth.Principal
	h := RequireAuth(AuthOptions{Authenticator: authn})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "owner-9", seen.OwnerID)
	assert.Equal(t, 1, authn.Calls())
}

func TestRequireAuth_AuthenticatorOutageIs401(t *testing.T) {
	called := false
	h := RequireAuth(AuthOptions{
		Authenticator: failingAuthenticator{err: errors.New("jwks fetch: connection refused")},
		Logger:        slog.New(slog.DiscardHandler),
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestCredentialsFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		authz  string
		owner  string
		expect ports.Credentials
	}{
		{name: "bearer", authz: "Bearer abc", expect: ports.Credentials{BearerToken: "abc"}},
		{name: "case insensitive scheme", authz: "BEARER  abc ", expect: ports.Credentials{BearerToken: "abc"}},
		{name: "basic ignored", authz: "Basic dXNlcjpwYXNz", expect: ports.Credentials{}},
		{name: "owner header", owner: "owner-3", expect: ports.Credentials{OwnerHeader: "owner-3"}},
		{name: "none", expect: ports.Credentials{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authz != "" {
				r.Header.Set("Authorization", tt.authz)
			}
			if tt.owner != "" {
				r.Header.Set(HeaderOwnerID, tt.owner)
			}
			assert.Equal(t, tt.expect, credentialsFromRequest(r))
		})
	}
}

func TestRecover_WritesJSON500(t *testing.T) {
	h := Recover(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal","message":"internal server error"}`, w.Body.String())
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/bulk-jobs", nil))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/bulk-jobs"`)
}

func TestCompression_GzipsJSONOnly(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"k":"v"}`), 100)
	h := Compression(CompressionConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bin" {
			w.Header().Set("Content-Type", xlsxContentType)
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		_, _ = w.Write(payload)
	}))

	r := httptest.NewRequest(http.MethodGet, "/json", nil)
	r.Header.Set("Accept-Encoding", "br, gzip;q=0.8")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)

	r = httptest.NewRequest(http.MethodGet, "/bin", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, w.Body.Bytes())

	r = httptest.NewRequest(http.MethodGet, "/json", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
}

func TestAcceptsGzip(t *testing.T) {
	cases := map[string]bool{
		"":                   false,
		"gzip":               true,
		"GZIP":               true,
		"deflate, gzip":      true,
		"gzip;q=0":           false,
		"gzip; q=0.0":        false,
		"gzip;q=0.5":         true,
		"x-gzip":             false,
		"br;q=1.0, identity": false,
	}
	for header, want := range cases {
		assert.Equal(t, want, acceptsGzip(header), header)
	}
}

func TestHealthHandler(t *testing.T) {
	ok := &healthHandler{}
	w := httptest.NewRecorder()
	ok.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, healthResponse, w.Body.String())

	w = httptest.NewRecorder()
	ok.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())

	var deadline time.Time
	bad := &healthHandler{checks: map[string]HealthCheck{
		"postgres": func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return errors.New("connection refused")
		},
	}}
	w = httptest.NewRecorder()
	bad.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, degradedResponse, w.Body.String())
	assert.False(t, deadline.IsZero(), "checks run under a timeout")
}

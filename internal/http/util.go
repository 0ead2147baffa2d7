package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
	"github.com/target/bulkmail/internal/ports"
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// ParseLimitOffset parses common pagination params and clamps to sane bounds.
// - defLimit: default limit when not specified
// - maxLimit: maximum allowed limit (values > maxLimit are clamped to maxLimit).
func ParseLimitOffset(r *http.Request, defLimit, maxLimit int) (int, int) {
	if maxLimit < 1 {
		maxLimit = 1
	}

	lim := parseIntQuery(r, "limit", defLimit)
	off := parseIntQuery(r, "offset", 0)
	if lim < 1 {
		lim = 1
	}
	if lim > maxLimit {
		lim = maxLimit
	}
	if off < 0 {
		off = 0
	}
	return lim, off
}

// pathID returns the {id} path value, writing a 400 when it is missing.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("job id is required"),
		})
		return "", false
	}
	return id, true
}

// credentialsFromRequest extracts the identity-bearing headers.
func credentialsFromRequest(r *http.Request) ports.Credentials {
	creds := ports.Credentials{OwnerHeader: r.Header.Get(HeaderOwnerID)}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(authz, " "); ok && strings.EqualFold(scheme, "Bearer") {
		creds.BearerToken = strings.TrimSpace(token)
	}
	return creds
}

// isCredentialError reports whether err is an authentication outcome rather
// than an authenticator outage.
func isCredentialError(err error) bool {
	return errors.Is(err, domainauth.ErrNoCredentials) || errors.Is(err, domainauth.ErrInvalidCredentials)
}

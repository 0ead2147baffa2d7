package httpx

import (
	"context"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
)

// Request headers understood by the API.
const (
	HeaderOwnerID        = "X-Owner-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// principalKey is an unexported context key type to avoid collisions across packages.
type principalKey struct{}

// SetPrincipalInContext returns a child context that carries the caller.
func SetPrincipalInContext(ctx context.Context, p domainauth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller and whether one is present.
func PrincipalFromContext(ctx context.Context) (domainauth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domainauth.Principal)
	if !ok || p.OwnerID == "" {
		return domainauth.Principal{}, false
	}
	return p, true
}

// OwnerFromContext returns the caller's owner id, or "" when unauthenticated.
func OwnerFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.OwnerID
}

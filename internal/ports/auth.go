// Package ports defines the interfaces the HTTP layer needs from identity adapters.
// Implementations live in internal/adapters.
package ports

import (
	"context"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
)

// Credentials are the identity-bearing parts of a request.
type Credentials struct {
	BearerToken string // from "Authorization: Bearer <token>"
	OwnerHeader string // from "X-Owner-ID", honoured only by the dev authenticator
}

// Authenticator resolves request credentials to a principal. It returns
// domainauth.ErrNoCredentials when nothing usable was presented and an error
// wrapping domainauth.ErrInvalidCredentials when credentials were rejected.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (domainauth.Principal, error)
}

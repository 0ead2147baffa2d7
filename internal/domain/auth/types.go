// Package auth holds the caller identity types shared by the HTTP layer and
// the authenticator adapters.
package auth

import (
	"errors"
	"time"
)

var (
	// ErrNoCredentials means the request carried nothing to authenticate.
	ErrNoCredentials = errors.New("no credentials presented")
	// ErrInvalidCredentials means credentials were presented but rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Principal is the authenticated caller. OwnerID scopes every job and credit
// account the caller can see.
type Principal struct {
	OwnerID   string
	Email     string
	ExpiresAt time.Time // zero when the credential does not expire
}

// Valid reports whether the principal identifies an owner and has not expired at now.
func (p Principal) Valid(now time.Time) bool {
	if p.OwnerID == "" {
		return false
	}
	return p.ExpiresAt.IsZero() || now.Before(p.ExpiresAt)
}

// Package auth contains hand-written test doubles for the auth ports.
package auth

import (
	"context"
	"fmt"
	"sync"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
	"github.com/target/bulkmail/internal/ports"
)

var _ ports.Authenticator = (*StaticAuthenticator)(nil)

// StaticAuthenticator maps bearer tokens to principals. Unknown tokens are
// rejected and an empty token reports no credentials.
type StaticAuthenticator struct {
	mu     sync.Mutex
	tokens map[string]domainauth.Principal
	calls  int
}

// NewStaticAuthenticator creates an authenticator that accepts the given tokens.
func NewStaticAuthenticator(tokens map[string]domainauth.Principal) *StaticAuthenticator {
	m := make(map[string]domainauth.Principal, len(tokens))
	for k, v := range tokens {
		m[k] = v
	}
	return &StaticAuthenticator{tokens: m}
}

// Authenticate implements ports.Authenticator.
func (a *StaticAuthenticator) Authenticate(_ context.Context, creds ports.Credentials) (domainauth.Principal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if creds.BearerToken == "" {
		return domainauth.Principal{}, domainauth.ErrNoCredentials
	}
	p, ok := a.tokens[creds.BearerToken]
	if !ok {
		return domainauth.Principal{}, fmt.Errorf("unknown token: %w", domainauth.ErrInvalidCredentials)
	}
	return p, nil
}

// Calls returns how many times Authenticate ran.
func (a *StaticAuthenticator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Package devauth provides a header-based Authenticator for local development.
package devauth

import (
	"context"
	"strings"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
	"github.com/target/bulkmail/internal/ports"
)

// Config controls the dev authenticator.
type Config struct {
	// DefaultOwnerID is used when a request has no X-Owner-ID header.
	// Leave empty to reject such requests.
	DefaultOwnerID string
	Email          string
}

// Provider trusts the X-Owner-ID header. Never enable it in production.
type Provider struct {
	defaultOwner string
	email        string
}

var _ ports.Authenticator = (*Provider)(nil)

// NewProvider constructs a dev authenticator from Config.
func NewProvider(cfg Config) *Provider {
	return &Provider{
		defaultOwner: strings.TrimSpace(cfg.DefaultOwnerID),
		email:        strings.TrimSpace(cfg.Email),
	}
}

// Authenticate returns the owner named by the header, or the default owner.
func (p *Provider) Authenticate(_ context.Context, creds ports.Credentials) (domainauth.Principal, error) {
	owner := strings.TrimSpace(creds.OwnerHeader)
	if owner == "" {
		owner = p.defaultOwner
	}
	if owner == "" {
		return domainauth.Principal{}, domainauth.ErrNoCredentials
	}
	return domainauth.Principal{OwnerID: owner, Email: p.email}, nil
}

// Package oidc authenticates API callers by verifying OIDC bearer tokens.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
	"github.com/target/bulkmail/internal/ports"
)

// Provider verifies ID tokens issued by the configured issuer and maps their
// subject to the owner id.
type Provider struct {
	verifier   *gooidc.IDTokenVerifier
	httpClient *http.Client
	ownerClaim string
}

var _ ports.Authenticator = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	// DiscoveryURL is the issuer URL, with or without the
	// /.well-known/openid-configuration suffix.
	DiscoveryURL string
	// ClientID is the expected audience of presented tokens.
	ClientID string
	// OwnerClaim picks the claim used as owner id; defaults to "sub".
	OwnerClaim string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// NewProvider discovers the issuer and builds a token verifier.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	// go-oidc reuses the client from ctx for discovery and later JWKS fetches.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	ownerClaim := config.OwnerClaim
	if ownerClaim == "" {
		ownerClaim = "sub"
	}

	return &Provider{
		verifier:   op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		httpClient: httpClient,
		ownerClaim: ownerClaim,
	}, nil
}

// Authenticate verifies the bearer token and returns its principal.
func (p *Provider) Authenticate(ctx context.Context, creds ports.Credentials) (domainauth.Principal, error) {
	raw := strings.TrimSpace(creds.BearerToken)
	if raw == "" {
		return domainauth.Principal{}, domainauth.ErrNoCredentials
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return domainauth.Principal{}, fmt.Errorf("%w: %w", domainauth.ErrInvalidCredentials, err)
	}

	var claims map[string]any
	if err := tok.Claims(&claims); err != nil {
		return domainauth.Principal{}, fmt.Errorf("%w: parse claims: %w", domainauth.ErrInvalidCredentials, err)
	}

	owner := stringClaim(claims, p.ownerClaim)
	if owner == "" {
		return domainauth.Principal{}, fmt.Errorf("%w: token has no %q claim", domainauth.ErrInvalidCredentials, p.ownerClaim)
	}

	return domainauth.Principal{
		OwnerID:   owner,
		Email:     firstNonEmpty(stringClaim(claims, "email"), stringClaim(claims, "mail")),
		ExpiresAt: tok.Expiry,
	}, nil
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return strings.TrimSpace(s)
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

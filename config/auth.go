package config

import (
	"errors"
	"fmt"
	"strings"
)

// AuthMode represents how API callers are identified.
type AuthMode string

const (
	// AuthModeOIDC verifies bearer ID tokens against an OIDC issuer.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeDev trusts the X-Owner-ID header (for development only).
	AuthModeDev AuthMode = "dev"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oidc", "dev":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, dev)", v)
	}
}

// OIDCConfig contains bearer token verification settings.
type OIDCConfig struct {
	DiscoveryURL string `env:"DISCOVERY_URL"`
	ClientID     string `env:"CLIENT_ID"     envDefault:"bulkmail"`
	// OwnerClaim names the token claim used as owner id.
	OwnerClaim string `env:"OWNER_CLAIM" envDefault:"sub"`
}

// DevAuthConfig controls the dev authenticator identity.
// Used when AUTH_MODE=dev for development and testing.
type DevAuthConfig struct {
	// DefaultOwnerID is used when a request has no X-Owner-ID header.
	DefaultOwnerID string `env:"DEFAULT_OWNER_ID"`
	Email          string `env:"EMAIL"            envDefault:"dev@example.com"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Mode    AuthMode      `env:"AUTH_MODE" envDefault:"oidc"`
	OIDC    OIDCConfig    `envPrefix:"AUTH_OIDC_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims whitespace from auth settings.
func (a *AuthConfig) Sanitize() {
	a.OIDC.DiscoveryURL = strings.TrimSpace(a.OIDC.DiscoveryURL)
	a.OIDC.ClientID = strings.TrimSpace(a.OIDC.ClientID)
	if a.OIDC.OwnerClaim = strings.TrimSpace(a.OIDC.OwnerClaim); a.OIDC.OwnerClaim == "" {
		a.OIDC.OwnerClaim = "sub"
	}
	a.DevAuth.DefaultOwnerID = strings.TrimSpace(a.DevAuth.DefaultOwnerID)
}

// Validate reports missing settings for the selected mode.
func (a *AuthConfig) Validate() error {
	if a.Mode == AuthModeOIDC && (a.OIDC.DiscoveryURL == "" || a.OIDC.ClientID == "") {
		return errors.New("AUTH_OIDC_DISCOVERY_URL and AUTH_OIDC_CLIENT_ID are required when AUTH_MODE=oidc")
	}
	return nil
}

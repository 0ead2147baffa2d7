package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/bulkmail/config"
	"github.com/target/bulkmail/internal/adapters/devauth"
	"github.com/target/bulkmail/internal/adapters/oidc"
	"github.com/target/bulkmail/internal/ports"
)

// AuthConfig contains configuration for the request authenticator.
type AuthConfig struct {
	Auth   config.AuthConfig
	IsDev  bool
	Logger *slog.Logger
}

// BuildAuthenticator returns the authenticator for the configured auth mode.
//
//nolint:ireturn // the mode decides which adapter backs the port.
func BuildAuthenticator(ctx context.Context, cfg AuthConfig) (ports.Authenticator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeDev:
		if !cfg.IsDev {
			logger.WarnContext(ctx, "dev authentication enabled outside development; X-Owner-ID is trusted as-is")
		}
		if cfg.Auth.DevAuth.DefaultOwnerID == "" {
			logger.InfoContext(ctx, "dev authentication requires the X-Owner-ID header")
		}
		return devauth.NewProvider(devauth.Config{
			DefaultOwnerID: cfg.Auth.DevAuth.DefaultOwnerID,
			Email:          cfg.Auth.DevAuth.Email,
		}), nil

	case config.AuthModeOIDC:
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			DiscoveryURL: cfg.Auth.OIDC.DiscoveryURL,
			ClientID:     cfg.Auth.OIDC.ClientID,
			OwnerClaim:   cfg.Auth.OIDC.OwnerClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("create OIDC provider: %w", err)
		}
		logger.InfoContext(ctx, "OIDC authentication enabled",
			"discovery_url", cfg.Auth.OIDC.DiscoveryURL,
			"owner_claim", cfg.Auth.OIDC.OwnerClaim,
		)
		return prov, nil

	default:
		return nil, errors.New("unsupported auth mode: " + string(cfg.Auth.Mode))
	}
}

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/bulkmail/internal/domain/auth"
	"github.com/target/bulkmail/internal/ports"
)

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator(map[string]domainauth.Principal{"tok": {OwnerID: "owner-1"}})
	ctx := context.Background()

	p, err := a.Authenticate(ctx, ports.Credentials{BearerToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "owner-1", p.OwnerID)

	_, err = a.Authenticate(ctx, ports.Credentials{})
	assert.ErrorIs(t, err, domainauth.ErrNoCredentials)

	_, err = a.Authenticate(ctx, ports.Credentials{BearerToken: "nope"})
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)

	assert.Equal(t, 3, a.Calls())
}

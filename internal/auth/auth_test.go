package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppredict/oppredict/internal/domain"
)

func TestPolicy_AdminAllowed(t *testing.T) {
	p := NewPolicy([]string{"admin-1", " admin-2 "})

	assert.NoError(t, p.Authorize(context.Background(), "admin-1", domain.ActionResolveMarket))
	assert.NoError(t, p.Authorize(context.Background(), "admin-2", domain.ActionDeleteMarket))
}

func TestPolicy_NonAdminRejected(t *testing.T) {
	p := NewPolicy([]string{"admin-1"})

	err := p.Authorize(context.Background(), "someone-else", domain.ActionResolveMarket)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPolicy_EmptyGrantRejectsEveryone(t *testing.T) {
	p := NewPolicy(nil)

	err := p.Authorize(context.Background(), "", domain.ActionResolveMarket)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenIdentity_RoundTrip(t *testing.T) {
	ti := NewTokenIdentity("secret")

	token, err := ti.Mint("user-42")
	require.NoError(t, err)

	user, err := ti.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", user.ID)
}

func TestTokenIdentity_WrongSecret(t *testing.T) {
	token, err := NewTokenIdentity("secret-a").Mint("user-42")
	require.NoError(t, err)

	_, err = NewTokenIdentity("secret-b").Resolve(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenIdentity_TamperedID(t *testing.T) {
	ti := NewTokenIdentity("secret")
	token, err := ti.Mint("user-42")
	require.NoError(t, err)

	forged, err := ti.Mint("user-43")
	require.NoError(t, err)

	// Splice the forged ID onto the original signature.
	origParts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	spliced := origParts[0] + "." + forgedParts[1] + "." + origParts[2]

	_, err = ti.Resolve(context.Background(), spliced)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenIdentity_Malformed(t *testing.T) {
	ti := NewTokenIdentity("secret")

	for _, token := range []string{
		"",
		"v1",
		"v1.only-two",
		"v2.aaaa.bbbb",
		"v1.%%%.bbbb",
		"v1..sig",
	} {
		_, err := ti.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrUnauthorized, "token %q", token)
	}
}

func TestTokenIdentity_MintEmptyID(t *testing.T) {
	_, err := NewTokenIdentity("secret").Mint("")
	assert.Error(t, err)
}

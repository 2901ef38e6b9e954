package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
)

var jwtService = New(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

const testPrincipal = domain.Principal("alice")

func Test_Issue(t *testing.T) {
	token, err := jwtService.Issue(testPrincipal, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, testPrincipal.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_Issue_UniqueTokenIDs(t *testing.T) {
	first, err := jwtService.Issue(testPrincipal, time.Hour)
	require.NoError(t, err)
	second, err := jwtService.Issue(testPrincipal, time.Hour)
	require.NoError(t, err)

	a, err := jwtService.ValidateToken(first)
	require.NoError(t, err)
	b, err := jwtService.ValidateToken(second)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.Issue(testPrincipal, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	assert.Contains(t, err.Error(), "expired")
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := New("different-signing-key", "test-issuer", "test-audience")

	token, err := other.Issue(testPrincipal, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func Test_ValidateToken_WrongIssuer(t *testing.T) {
	other := New("test-signing-key", "other-issuer", "test-audience")

	token, err := other.Issue(testPrincipal, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func Test_Principal(t *testing.T) {
	token, err := jwtService.Issue(testPrincipal, time.Hour)
	require.NoError(t, err)

	principal, err := jwtService.Principal(token)
	require.NoError(t, err)
	assert.Equal(t, testPrincipal, principal)
}

func Test_Adapter(t *testing.T) {
	adapter := NewServiceAdapter(jwtService)

	token, err := jwtService.Issue(testPrincipal, time.Hour)
	require.NoError(t, err)

	claims, err := adapter.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, testPrincipal.String(), claims.Principal)
	assert.NotEmpty(t, claims.TokenID)

	_, err = adapter.ValidateToken("garbage")
	require.Error(t, err)
}

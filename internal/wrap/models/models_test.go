package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
)

func testHash(t *testing.T) domain.CredentialHash {
	t.Helper()
	h, err := domain.ParseCredentialHash(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return h
}

func TestNewPendingProof(t *testing.T) {
	hash := testHash(t)

	t.Run("valid request", func(t *testing.T) {
		p, err := NewPendingProof("alice", "webauthn", hash, 100, 10)
		require.NoError(t, err)
		assert.Equal(t, domain.Height(100), p.CreatedAt)
		assert.Equal(t, domain.Height(110), p.ExpiresAt)
		assert.Equal(t, domain.Nonce(0), p.Nonce, "nonce is assigned later")
	})

	t.Run("zero expiry window", func(t *testing.T) {
		_, err := NewPendingProof("alice", "webauthn", hash, 100, 0)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
	})

	t.Run("empty method", func(t *testing.T) {
		_, err := NewPendingProof("alice", "", hash, 100, 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
	})

	t.Run("method at the boundary", func(t *testing.T) {
		_, err := NewPendingProof("alice", strings.Repeat("m", MaxMethodLen), hash, 100, 10)
		require.NoError(t, err)
	})

	t.Run("oversized method", func(t *testing.T) {
		_, err := NewPendingProof("alice", strings.Repeat("m", MaxMethodLen+1), hash, 100, 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
	})
}

func TestPendingProof_Expiry(t *testing.T) {
	hash := testHash(t)
	p, err := NewPendingProof("alice", "webauthn", hash, 100, 10)
	require.NoError(t, err)

	assert.False(t, p.IsExpired(100), "at creation")
	assert.False(t, p.IsExpired(109))
	assert.False(t, p.IsExpired(110), "exactly at expiry is still valid")
	assert.True(t, p.IsExpired(111), "one past expiry fails")
}

// TestPendingProof_CanComplete_Order pins the order in which completion
// failures surface: user mismatch before method mismatch before expiry.
func TestPendingProof_CanComplete_Order(t *testing.T) {
	hash := testHash(t)
	p, err := NewPendingProof("alice", "webauthn", hash, 100, 10)
	require.NoError(t, err)

	t.Run("wrong user wins over wrong method and expiry", func(t *testing.T) {
		err := p.CanComplete("mallory", "passkey", 999)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong method wins over expiry", func(t *testing.T) {
		err := p.CanComplete("alice", "passkey", 999)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidMethod))
	})

	t.Run("expiry surfaces last", func(t *testing.T) {
		err := p.CanComplete("alice", "webauthn", 111)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofExpired))
	})

	t.Run("boundary completion succeeds", func(t *testing.T) {
		assert.NoError(t, p.CanComplete("alice", "webauthn", 110))
	})
}

func TestWrappedIdentity_Lifecycle(t *testing.T) {
	hash := testHash(t)
	p, err := NewPendingProof("alice", "webauthn", hash, 100, 10)
	require.NoError(t, err)

	w := NewWrappedIdentity(p, 7, 105)
	assert.True(t, w.IsActive())
	assert.Equal(t, domain.Principal("alice"), w.User)
	assert.Equal(t, "webauthn", w.Method)
	assert.Equal(t, domain.TokenID(7), w.TokenID)
	assert.Equal(t, domain.Height(105), w.WrappedAt)
	assert.Nil(t, w.RevokedAt)

	t.Run("revocation is one-way", func(t *testing.T) {
		require.NoError(t, w.Revoke(120))
		assert.False(t, w.IsActive())
		require.NotNil(t, w.RevokedAt)
		assert.Equal(t, domain.Height(120), *w.RevokedAt)
		assert.Equal(t, domain.Height(120), w.UpdatedAt)

		err := w.Revoke(130)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
		assert.Equal(t, domain.Height(120), *w.RevokedAt, "second attempt must not restamp")
	})
}

package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
)

func TestNewMetadata(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		m, err := NewMetadata("webauthn", "device: yubikey", 42)
		require.NoError(t, err)
		assert.True(t, m.Status, "tokens mint active")
		assert.Equal(t, domain.Height(42), m.MintedAt)
		assert.Equal(t, domain.TokenID(0), m.TokenID, "ID assigned by the ledger")
	})

	t.Run("auth method bounds", func(t *testing.T) {
		cases := []struct {
			name   string
			method string
			ok     bool
		}{
			{"empty", "", false},
			{"single byte", "x", true},
			{"at limit", strings.Repeat("m", MaxAuthMethodLen), true},
			{"over limit", strings.Repeat("m", MaxAuthMethodLen+1), false},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewMetadata(tc.method, "", 1)
				if tc.ok {
					assert.NoError(t, err)
					return
				}
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAuthMethod))
			})
		}
	})

	t.Run("extra measured in runes", func(t *testing.T) {
		_, err := NewMetadata("webauthn", strings.Repeat("é", MaxExtraLen), 1)
		assert.NoError(t, err, "256 two-byte runes fit")

		_, err = NewMetadata("webauthn", strings.Repeat("é", MaxExtraLen+1), 1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMetadataTooLong))
	})
}

func TestMetadata_UpdateExtra(t *testing.T) {
	m, err := NewMetadata("webauthn", "before", 42)
	require.NoError(t, err)

	require.NoError(t, m.UpdateExtra("after"))
	assert.Equal(t, "after", m.Extra)
	assert.Equal(t, "webauthn", m.AuthMethod, "update must not touch the method")
	assert.Equal(t, domain.Height(42), m.MintedAt)
	assert.True(t, m.Status)

	err = m.UpdateExtra(strings.Repeat("x", MaxExtraLen+1))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMetadataTooLong))
	assert.Equal(t, "after", m.Extra, "failed update leaves the record alone")

	require.NoError(t, m.UpdateExtra(""), "clearing is allowed")
	assert.Empty(t, m.Extra)
}

func TestMetadata_SetStatus(t *testing.T) {
	m, err := NewMetadata("webauthn", "", 42)
	require.NoError(t, err)

	m.SetStatus(false)
	assert.False(t, m.Status)
	m.SetStatus(false)
	assert.False(t, m.Status, "idempotent overwrite")
	m.SetStatus(true)
	assert.True(t, m.Status)
}

// Package models defines the soulbound token record and its validation
// rules. A token is an ownership entry plus a metadata entry keyed by the
// same ID, created and deleted together, never transferred.
package models

import (
	"unicode/utf8"

	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
)

const (
	// MinAuthMethodLen and MaxAuthMethodLen bound the authentication
	// method recorded at mint, in bytes.
	MinAuthMethodLen = 1
	MaxAuthMethodLen = 50

	// MaxExtraLen bounds the free-form metadata payload, in runes.
	MaxExtraLen = 256
)

// Metadata is the descriptive record attached to a minted token.
//
// Invariants:
//   - AuthMethod is 1..50 bytes and never changes after mint.
//   - Extra is at most 256 runes; it is the only field UpdateExtra touches.
//   - Status starts true at mint and is overwritten only by SetStatus.
//   - MintedAt is the mint height and never changes.
type Metadata struct {
	TokenID    domain.TokenID
	AuthMethod string
	Extra      string
	Status     bool
	MintedAt   domain.Height
}

// ValidateAuthMethod checks the mint-time method against its byte bounds.
func ValidateAuthMethod(authMethod string) error {
	if len(authMethod) < MinAuthMethodLen || len(authMethod) > MaxAuthMethodLen {
		return dErrors.New(dErrors.CodeInvalidAuthMethod, "auth method must be 1..50 bytes")
	}
	return nil
}

// ValidateExtra checks the free-form payload against its rune bound.
func ValidateExtra(extra string) error {
	if utf8.RuneCountInString(extra) > MaxExtraLen {
		return dErrors.New(dErrors.CodeMetadataTooLong, "metadata exceeds 256 characters")
	}
	return nil
}

// NewMetadata builds the record for a token minted at the given height.
// The ID is assigned by the caller once the ledger sequence advances.
func NewMetadata(authMethod, extra string, at domain.Height) (*Metadata, error) {
	if err := ValidateAuthMethod(authMethod); err != nil {
		return nil, err
	}
	if err := ValidateExtra(extra); err != nil {
		return nil, err
	}
	return &Metadata{
		AuthMethod: authMethod,
		Extra:      extra,
		Status:     true,
		MintedAt:   at,
	}, nil
}

// UpdateExtra replaces the free-form payload, leaving every other field
// untouched.
func (m *Metadata) UpdateExtra(extra string) error {
	if err := ValidateExtra(extra); err != nil {
		return err
	}
	m.Extra = extra
	return nil
}

// SetStatus overwrites the status flag. Authorization is the caller's
// concern; the record accepts any value, including the one already set.
func (m *Metadata) SetStatus(status bool) {
	m.Status = status
}

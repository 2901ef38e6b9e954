package domain

import (
	"strconv"

	dErrors "soulbind/pkg/domain-errors"
)

// Height is the logical block height: the only clock the ledger observes.
// Heights never move backwards; expiry and every recorded timestamp are
// expressed in heights, not wall time.
type Height uint64

// Nonce identifies a pending wrap proof. Nonces are allocated from a dense
// sequence starting at zero and are never reused, including for proofs that
// expire without completing.
type Nonce uint64

// TokenID identifies a soulbound token. IDs are allocated from a dense
// sequence starting at one and are never reused, including after a burn.
type TokenID uint64

// ParseHeight parses a decimal height from external input.
func ParseHeight(s string) (Height, error) {
	v, err := parseUint(s, "height")
	return Height(v), err
}

// ParseNonce parses a decimal nonce from external input.
func ParseNonce(s string) (Nonce, error) {
	v, err := parseUint(s, "nonce")
	return Nonce(v), err
}

// ParseTokenID parses a decimal token ID from external input.
//
// Errors: CodeInvalidInput for non-numeric input and for zero, which is
// below the first ID the ledger can ever allocate.
func ParseTokenID(s string) (TokenID, error) {
	v, err := parseUint(s, "token id")
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "token id must be positive")
	}
	return TokenID(v), nil
}

func parseUint(s, what string) (uint64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	return v, nil
}

// String returns the decimal representation of the height.
func (h Height) String() string { return strconv.FormatUint(uint64(h), 10) }

// String returns the decimal representation of the nonce.
func (n Nonce) String() string { return strconv.FormatUint(uint64(n), 10) }

// String returns the decimal representation of the token ID.
func (t TokenID) String() string { return strconv.FormatUint(uint64(t), 10) }

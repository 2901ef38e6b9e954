package domain

import (
	"encoding/hex"
	"encoding/json"

	dErrors "soulbind/pkg/domain-errors"
)

// CredentialHashLen is the exact length of a credential digest in bytes.
const CredentialHashLen = 32

// CredentialHash is the opaque 32-byte digest of an externally verified
// credential. The ledger never interprets it; it is carried through the
// wrap workflow and compared only by the oracle off-band.
//
// Usage: construct via ParseCredentialHash at trust boundaries. The wire
// representation is lowercase hex without a prefix.
type CredentialHash [CredentialHashLen]byte

// ParseCredentialHash constructs a CredentialHash from its hex encoding.
//
// Errors: CodeInvalidInput when the input is not exactly 64 hex characters.
func ParseCredentialHash(s string) (CredentialHash, error) {
	var h CredentialHash
	if s == "" {
		return h, dErrors.New(dErrors.CodeInvalidInput, "credential hash cannot be empty")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, dErrors.New(dErrors.CodeInvalidInput, "credential hash must be hex encoded")
	}
	if len(raw) != CredentialHashLen {
		return h, dErrors.New(dErrors.CodeInvalidInput, "credential hash must be exactly 32 bytes")
	}
	copy(h[:], raw)
	return h, nil
}

// String returns the lowercase hex encoding of the hash.
func (h CredentialHash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON encodes the hash in its hex wire form.
func (h CredentialHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes the hash from its hex wire form.
func (h *CredentialHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "credential hash must be a hex string")
	}
	parsed, err := ParseCredentialHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// IsZero reports whether the hash is all zero bytes. A zero digest is
// representable and valid on the ledger; this exists for callers that seed
// test fixtures.
func (h CredentialHash) IsZero() bool {
	return h == CredentialHash{}
}

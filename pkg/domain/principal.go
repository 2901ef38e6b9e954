package domain

import (
	"strings"
	"unicode/utf8"

	dErrors "soulbind/pkg/domain-errors"
)

// MaxPrincipalLen is the maximum encoded length of a principal in bytes.
const MaxPrincipalLen = 128

// Principal is a domain value that identifies an actor on the ledger: a
// caller, a token owner, the oracle, or the settlement authority.
// Invariant: non-empty, at most MaxPrincipalLen bytes, valid UTF-8 with no
// control characters. Principals are compared by exact byte equality; there
// is no case folding or normalization.
//
// Usage: construct via ParsePrincipal at trust boundaries; direct casting
// bypasses validation.
type Principal string

// ParsePrincipal constructs a Principal from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, oversized,
// non-UTF-8, or contains control characters; no other errors are expected.
func ParsePrincipal(s string) (Principal, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal cannot be empty")
	}
	if len(s) > MaxPrincipalLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal exceeds maximum length")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal must be valid UTF-8")
	}
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal cannot be blank")
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", dErrors.New(dErrors.CodeInvalidInput, "principal contains control characters")
		}
	}
	return Principal(s), nil
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool {
	return p == ""
}

// String returns the string representation of the principal.
func (p Principal) String() string {
	return string(p)
}

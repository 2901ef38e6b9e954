package models

import (
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
)

// MaxMethodLen is the maximum length of an authentication method name in
// bytes.
const MaxMethodLen = 32

// PendingProof is a single-use claim ticket in the wrap workflow.
//
// Invariants:
//   - Nonce is unique forever; the sequence never reuses a value
//   - Method is non-empty and at most MaxMethodLen bytes
//   - ExpiresAt = CreatedAt + the requested window, window >= 1
//   - A proof is destroyed only by successful completion; expiry never
//     deletes it, it only makes completion impossible
//
// Expired proofs therefore stay queryable forever. There is no sweeper by
// design: the record is the audit trail of the attempt.
type PendingProof struct {
	Nonce          domain.Nonce          `json:"nonce"`
	User           domain.Principal      `json:"user"`
	Method         string                `json:"method"`
	CredentialHash domain.CredentialHash `json:"credential_hash"`
	CreatedAt      domain.Height         `json:"created_at"`
	ExpiresAt      domain.Height         `json:"expires_at"`
}

// NewPendingProof validates the wrap request and returns a proof without a
// nonce. The nonce is allocated later, inside the same atomic unit that
// persists the proof, so failed requests never consume sequence values.
func NewPendingProof(user domain.Principal, method string, hash domain.CredentialHash, at domain.Height, expiresInBlocks uint64) (*PendingProof, error) {
	if expiresInBlocks == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "expiry window must be at least one block")
	}
	if method == "" {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "method cannot be empty")
	}
	if len(method) > MaxMethodLen {
		return nil, dErrors.New(dErrors.CodeInvalidProof, "method must be 32 bytes or less")
	}
	return &PendingProof{
		User:           user,
		Method:         method,
		CredentialHash: hash,
		CreatedAt:      at,
		ExpiresAt:      at + domain.Height(expiresInBlocks),
	}, nil
}

// IsExpired reports whether the proof can no longer be completed at the
// given height. A proof completed exactly at its expiry height is still
// valid; only heights beyond it fail.
func (p *PendingProof) IsExpired(at domain.Height) bool {
	return at > p.ExpiresAt
}

// CanComplete checks the oracle-supplied completion against the proof.
// The checks run in a fixed order so callers observe stable failure kinds:
// user mismatch, then method mismatch, then expiry.
func (p *PendingProof) CanComplete(user domain.Principal, method string, at domain.Height) error {
	if user != p.User {
		return dErrors.New(dErrors.CodeUnauthorized, "completion user does not match proof")
	}
	if method != p.Method {
		return dErrors.New(dErrors.CodeInvalidMethod, "completion method does not match proof")
	}
	if p.IsExpired(at) {
		return dErrors.New(dErrors.CodeProofExpired, "proof expiry window has passed")
	}
	return nil
}

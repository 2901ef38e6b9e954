package models

import (
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
)

// WrappedIdentity is the permanent record that a principal completed the
// wrap workflow.
//
// Invariants:
//   - At most one record per principal, ever; existence in any state
//     permanently blocks a new wrap attempt for that principal
//   - Created only by oracle-verified completion, Active=true
//   - The only mutation is revocation: Active flips to false exactly once
//   - Records are never deleted; revocation is one-way and final
type WrappedIdentity struct {
	User      domain.Principal `json:"user"`
	Method    string           `json:"method"`
	TokenID   domain.TokenID   `json:"token_id"`
	Active    bool             `json:"active"`
	WrappedAt domain.Height    `json:"wrapped_at"`
	RevokedAt *domain.Height   `json:"revoked_at,omitempty"`
	UpdatedAt domain.Height    `json:"updated_at"`
}

// NewWrappedIdentity materializes the identity record from a completed
// proof. TokenID is the oracle-supplied reference, recorded as opaque data.
func NewWrappedIdentity(proof *PendingProof, tokenID domain.TokenID, at domain.Height) *WrappedIdentity {
	return &WrappedIdentity{
		User:      proof.User,
		Method:    proof.Method,
		TokenID:   tokenID,
		Active:    true,
		WrappedAt: at,
		UpdatedAt: at,
	}
}

// IsActive reports whether the identity has not been revoked.
func (w *WrappedIdentity) IsActive() bool {
	return w.Active
}

// CanRevoke checks whether the identity can transition to revoked.
// Use with ApplyRevocation inside a transactional callback.
func (w *WrappedIdentity) CanRevoke() error {
	if !w.Active {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "identity is already revoked")
	}
	return nil
}

// ApplyRevocation transitions the identity to revoked and stamps when.
// Call CanRevoke first to validate the transition.
func (w *WrappedIdentity) ApplyRevocation(at domain.Height) {
	w.Active = false
	w.RevokedAt = &at
	w.UpdatedAt = at
}

// Revoke validates and applies revocation in one call.
// Prefer CanRevoke + ApplyRevocation inside transactional callbacks.
func (w *WrappedIdentity) Revoke(at domain.Height) error {
	if err := w.CanRevoke(); err != nil {
		return err
	}
	w.ApplyRevocation(at)
	return nil
}

// Package state persists the ledger: pending proofs, wrapped identities,
// soulbound tokens with their owner counts, and the configuration scalars.
// Stores are pure I/O. Ordered failure checks and event emission belong to
// the services; the store's job is to make every mutation atomic and to
// keep the nonce and token sequences strictly serialized.
package state

import (
	"context"

	tokenmodels "soulbind/internal/token/models"
	wrapmodels "soulbind/internal/wrap/models"
	"soulbind/pkg/domain"
)

// Genesis holds the values seeded exactly once into a fresh ledger.
// ContractOwner is fixed for the lifetime of the deployment; reseeding an
// initialized store is a no-op.
type Genesis struct {
	ContractOwner domain.Principal
	MaxTokens     uint64
	MintFee       uint64
}

// Reader is the read-only surface of ledger state. Lookups return
// sentinel.ErrNotFound for missing rows and for the optional scalars
// (oracle, auth wrapper) while unset. Reads never mutate.
type Reader interface {
	GetProof(ctx context.Context, nonce domain.Nonce) (*wrapmodels.PendingProof, error)
	GetIdentity(ctx context.Context, user domain.Principal) (*wrapmodels.WrappedIdentity, error)

	TokenOwner(ctx context.Context, id domain.TokenID) (domain.Principal, error)
	TokenMetadata(ctx context.Context, id domain.TokenID) (*tokenmodels.Metadata, error)
	OwnerCount(ctx context.Context, owner domain.Principal) (uint64, error)
	LastTokenID(ctx context.Context) (domain.TokenID, error)

	ContractOwner(ctx context.Context) (domain.Principal, error)
	Oracle(ctx context.Context) (domain.Principal, error)
	AuthWrapper(ctx context.Context) (domain.Principal, error)
	MaxTokens(ctx context.Context) (uint64, error)
	MintFee(ctx context.Context) (uint64, error)
}

// View is the full surface visible inside one atomic unit. Writes exist
// only here, so a service cannot mutate the ledger outside RunInTx.
//
// Sequence contract:
//   - NextNonce returns the current counter and then advances it; the
//     first call on a fresh ledger returns 0.
//   - NextTokenID advances the counter and returns the new value; the
//     first call on a fresh ledger returns 1. IDs are never reused.
//
// InsertToken and DeleteToken maintain ownership, metadata, and the
// per-owner live count together; callers never touch counts directly.
type View interface {
	Reader

	InsertProof(ctx context.Context, proof *wrapmodels.PendingProof) error
	DeleteProof(ctx context.Context, nonce domain.Nonce) error
	NextNonce(ctx context.Context) (domain.Nonce, error)

	InsertIdentity(ctx context.Context, rec *wrapmodels.WrappedIdentity) error
	UpdateIdentity(ctx context.Context, rec *wrapmodels.WrappedIdentity) error
	SetOracle(ctx context.Context, oracle domain.Principal) error

	InsertToken(ctx context.Context, owner domain.Principal, meta *tokenmodels.Metadata) error
	DeleteToken(ctx context.Context, id domain.TokenID) error
	UpdateTokenMetadata(ctx context.Context, meta *tokenmodels.Metadata) error
	NextTokenID(ctx context.Context) (domain.TokenID, error)

	SetAuthWrapper(ctx context.Context, wrapper domain.Principal) error
	SetMaxTokens(ctx context.Context, limit uint64) error
	SetMintFee(ctx context.Context, fee uint64) error
}

// Store runs atomic units against the ledger. Either every write in fn is
// applied or none is; units observe and produce a total order, which is
// what keeps the two sequences dense.
type Store interface {
	Reader
	RunInTx(ctx context.Context, fn func(v View) error) error
}

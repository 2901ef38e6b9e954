package state

import (
	"context"
	"maps"
	"sync"

	tokenmodels "soulbind/internal/token/models"
	wrapmodels "soulbind/internal/wrap/models"
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	"soulbind/pkg/platform/sentinel"
)

// tables is the raw ledger content. Map values are structs, not pointers,
// so cloning the maps is enough to snapshot the whole ledger.
type tables struct {
	proofs      map[domain.Nonce]wrapmodels.PendingProof
	identities  map[domain.Principal]wrapmodels.WrappedIdentity
	owners      map[domain.TokenID]domain.Principal
	metadata    map[domain.TokenID]tokenmodels.Metadata
	ownerCounts map[domain.Principal]uint64

	contractOwner domain.Principal
	oracle        domain.Principal
	authWrapper   domain.Principal
	maxTokens     uint64
	mintFee       uint64
	lastTokenID   domain.TokenID
	nonceCounter  domain.Nonce
}

func (t *tables) clone() tables {
	snap := *t
	snap.proofs = maps.Clone(t.proofs)
	snap.identities = maps.Clone(t.identities)
	snap.owners = maps.Clone(t.owners)
	snap.metadata = maps.Clone(t.metadata)
	snap.ownerCounts = maps.Clone(t.ownerCounts)
	return snap
}

// MemoryStore keeps the ledger in process memory. One mutex guards all
// tables: the nonce and token sequences need a total order across units,
// so units do not shard.
//
// RunInTx snapshots the tables before running fn and restores them if fn
// fails, so a unit that errors after a partial write leaves no trace.
type MemoryStore struct {
	mu sync.RWMutex
	t  tables
}

// NewMemory builds a ledger seeded with the genesis values.
func NewMemory(g Genesis) *MemoryStore {
	return &MemoryStore{t: tables{
		proofs:        make(map[domain.Nonce]wrapmodels.PendingProof),
		identities:    make(map[domain.Principal]wrapmodels.WrappedIdentity),
		owners:        make(map[domain.TokenID]domain.Principal),
		metadata:      make(map[domain.TokenID]tokenmodels.Metadata),
		ownerCounts:   make(map[domain.Principal]uint64),
		contractOwner: g.ContractOwner,
		maxTokens:     g.MaxTokens,
		mintFee:       g.MintFee,
	}}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(v View) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "unit aborted: context cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "unit aborted: context cancelled")
	}

	snap := s.t.clone()
	if err := fn(&memView{t: &s.t}); err != nil {
		s.t = snap
		return err
	}
	return nil
}

func (s *MemoryStore) GetProof(ctx context.Context, nonce domain.Nonce) (*wrapmodels.PendingProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).GetProof(ctx, nonce)
}

func (s *MemoryStore) GetIdentity(ctx context.Context, user domain.Principal) (*wrapmodels.WrappedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).GetIdentity(ctx, user)
}

func (s *MemoryStore) TokenOwner(ctx context.Context, id domain.TokenID) (domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).TokenOwner(ctx, id)
}

func (s *MemoryStore) TokenMetadata(ctx context.Context, id domain.TokenID) (*tokenmodels.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).TokenMetadata(ctx, id)
}

func (s *MemoryStore) OwnerCount(ctx context.Context, owner domain.Principal) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).OwnerCount(ctx, owner)
}

func (s *MemoryStore) LastTokenID(ctx context.Context) (domain.TokenID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).LastTokenID(ctx)
}

func (s *MemoryStore) ContractOwner(ctx context.Context) (domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).ContractOwner(ctx)
}

func (s *MemoryStore) Oracle(ctx context.Context) (domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).Oracle(ctx)
}

func (s *MemoryStore) AuthWrapper(ctx context.Context) (domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).AuthWrapper(ctx)
}

func (s *MemoryStore) MaxTokens(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).MaxTokens(ctx)
}

func (s *MemoryStore) MintFee(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memView{t: &s.t}).MintFee(ctx)
}

// memView accesses the tables without locking; the caller holds the store
// mutex for the duration of the unit.
type memView struct {
	t *tables
}

func (v *memView) GetProof(_ context.Context, nonce domain.Nonce) (*wrapmodels.PendingProof, error) {
	p, ok := v.t.proofs[nonce]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (v *memView) InsertProof(_ context.Context, proof *wrapmodels.PendingProof) error {
	if _, ok := v.t.proofs[proof.Nonce]; ok {
		return sentinel.ErrConflict
	}
	v.t.proofs[proof.Nonce] = *proof
	return nil
}

func (v *memView) DeleteProof(_ context.Context, nonce domain.Nonce) error {
	if _, ok := v.t.proofs[nonce]; !ok {
		return sentinel.ErrNotFound
	}
	delete(v.t.proofs, nonce)
	return nil
}

func (v *memView) NextNonce(_ context.Context) (domain.Nonce, error) {
	n := v.t.nonceCounter
	v.t.nonceCounter++
	return n, nil
}

func (v *memView) GetIdentity(_ context.Context, user domain.Principal) (*wrapmodels.WrappedIdentity, error) {
	rec, ok := v.t.identities[user]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

func (v *memView) InsertIdentity(_ context.Context, rec *wrapmodels.WrappedIdentity) error {
	if _, ok := v.t.identities[rec.User]; ok {
		return sentinel.ErrConflict
	}
	v.t.identities[rec.User] = *rec
	return nil
}

func (v *memView) UpdateIdentity(_ context.Context, rec *wrapmodels.WrappedIdentity) error {
	if _, ok := v.t.identities[rec.User]; !ok {
		return sentinel.ErrNotFound
	}
	v.t.identities[rec.User] = *rec
	return nil
}

func (v *memView) SetOracle(_ context.Context, oracle domain.Principal) error {
	v.t.oracle = oracle
	return nil
}

func (v *memView) TokenOwner(_ context.Context, id domain.TokenID) (domain.Principal, error) {
	owner, ok := v.t.owners[id]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return owner, nil
}

func (v *memView) TokenMetadata(_ context.Context, id domain.TokenID) (*tokenmodels.Metadata, error) {
	meta, ok := v.t.metadata[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &meta, nil
}

func (v *memView) InsertToken(_ context.Context, owner domain.Principal, meta *tokenmodels.Metadata) error {
	if _, ok := v.t.owners[meta.TokenID]; ok {
		return sentinel.ErrConflict
	}
	v.t.owners[meta.TokenID] = owner
	v.t.metadata[meta.TokenID] = *meta
	v.t.ownerCounts[owner]++
	return nil
}

func (v *memView) DeleteToken(_ context.Context, id domain.TokenID) error {
	owner, ok := v.t.owners[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(v.t.owners, id)
	delete(v.t.metadata, id)
	if v.t.ownerCounts[owner] <= 1 {
		delete(v.t.ownerCounts, owner)
	} else {
		v.t.ownerCounts[owner]--
	}
	return nil
}

func (v *memView) UpdateTokenMetadata(_ context.Context, meta *tokenmodels.Metadata) error {
	if _, ok := v.t.metadata[meta.TokenID]; !ok {
		return sentinel.ErrNotFound
	}
	v.t.metadata[meta.TokenID] = *meta
	return nil
}

func (v *memView) NextTokenID(_ context.Context) (domain.TokenID, error) {
	v.t.lastTokenID++
	return v.t.lastTokenID, nil
}

func (v *memView) OwnerCount(_ context.Context, owner domain.Principal) (uint64, error) {
	return v.t.ownerCounts[owner], nil
}

func (v *memView) LastTokenID(_ context.Context) (domain.TokenID, error) {
	return v.t.lastTokenID, nil
}

func (v *memView) ContractOwner(_ context.Context) (domain.Principal, error) {
	if v.t.contractOwner.IsZero() {
		return "", sentinel.ErrNotFound
	}
	return v.t.contractOwner, nil
}

func (v *memView) Oracle(_ context.Context) (domain.Principal, error) {
	if v.t.oracle.IsZero() {
		return "", sentinel.ErrNotFound
	}
	return v.t.oracle, nil
}

func (v *memView) AuthWrapper(_ context.Context) (domain.Principal, error) {
	if v.t.authWrapper.IsZero() {
		return "", sentinel.ErrNotFound
	}
	return v.t.authWrapper, nil
}

func (v *memView) SetAuthWrapper(_ context.Context, wrapper domain.Principal) error {
	v.t.authWrapper = wrapper
	return nil
}

func (v *memView) MaxTokens(_ context.Context) (uint64, error) {
	return v.t.maxTokens, nil
}

func (v *memView) SetMaxTokens(_ context.Context, limit uint64) error {
	v.t.maxTokens = limit
	return nil
}

func (v *memView) MintFee(_ context.Context) (uint64, error) {
	return v.t.mintFee, nil
}

func (v *memView) SetMintFee(_ context.Context, fee uint64) error {
	v.t.mintFee = fee
	return nil
}

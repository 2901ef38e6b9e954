package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tokenmodels "soulbind/internal/token/models"
	wrapmodels "soulbind/internal/wrap/models"
	"soulbind/pkg/domain"
	"soulbind/pkg/platform/sentinel"
)

func newTestStore() *MemoryStore {
	return NewMemory(Genesis{ContractOwner: "owner", MaxTokens: 100, MintFee: 5})
}

func newTestProof(t *testing.T, user domain.Principal, nonce domain.Nonce) *wrapmodels.PendingProof {
	t.Helper()
	hash, err := domain.ParseCredentialHash(strings.Repeat("cd", 32))
	require.NoError(t, err)
	p, err := wrapmodels.NewPendingProof(user, "webauthn", hash, 10, 5)
	require.NoError(t, err)
	p.Nonce = nonce
	return p
}

func newTestMetadata(t *testing.T, id domain.TokenID) *tokenmodels.Metadata {
	t.Helper()
	meta, err := tokenmodels.NewMetadata("webauthn", "", 10)
	require.NoError(t, err)
	meta.TokenID = id
	return meta
}

func TestMemoryStore_Genesis(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	owner, err := s.ContractOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("owner"), owner)

	maxTokens, err := s.MaxTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), maxTokens)

	fee, err := s.MintFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), fee)

	_, err = s.Oracle(ctx)
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "oracle starts unset")
	_, err = s.AuthWrapper(ctx)
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "auth wrapper starts unset")

	last, err := s.LastTokenID(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenID(0), last)
}

func TestMemoryStore_Sequences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	err := s.RunInTx(ctx, func(v View) error {
		n0, err := v.NextNonce(ctx)
		require.NoError(t, err)
		n1, err := v.NextNonce(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Nonce(0), n0, "nonces start at zero")
		assert.Equal(t, domain.Nonce(1), n1)

		id1, err := v.NextTokenID(ctx)
		require.NoError(t, err)
		id2, err := v.NextTokenID(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.TokenID(1), id1, "token IDs start at one")
		assert.Equal(t, domain.TokenID(2), id2)

		last, err := v.LastTokenID(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.TokenID(2), last)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_Proofs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.GetProof(ctx, 0)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	proof := newTestProof(t, "alice", 0)
	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		return v.InsertProof(ctx, proof)
	}))

	got, err := s.GetProof(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, *proof, *got)

	got.Method = "tampered"
	unchanged, err := s.GetProof(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "webauthn", unchanged.Method, "reads hand out copies")

	err = s.RunInTx(ctx, func(v View) error {
		return v.InsertProof(ctx, proof)
	})
	assert.ErrorIs(t, err, sentinel.ErrConflict, "nonce is unique")

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		return v.DeleteProof(ctx, 0)
	}))
	_, err = s.GetProof(ctx, 0)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	err = s.RunInTx(ctx, func(v View) error {
		return v.DeleteProof(ctx, 0)
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_Identities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	proof := newTestProof(t, "alice", 0)
	rec := wrapmodels.NewWrappedIdentity(proof, 1, 12)

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		return v.InsertIdentity(ctx, rec)
	}))

	err := s.RunInTx(ctx, func(v View) error {
		return v.InsertIdentity(ctx, rec)
	})
	assert.ErrorIs(t, err, sentinel.ErrConflict, "one record per principal")

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		got, err := v.GetIdentity(ctx, "alice")
		if err != nil {
			return err
		}
		if err := got.Revoke(20); err != nil {
			return err
		}
		return v.UpdateIdentity(ctx, got)
	}))

	got, err := s.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, got.Active)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, domain.Height(20), *got.RevokedAt)

	err = s.RunInTx(ctx, func(v View) error {
		ghost := wrapmodels.NewWrappedIdentity(newTestProof(t, "bob", 1), 2, 12)
		return v.UpdateIdentity(ctx, ghost)
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_TokensMaintainOwnerCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		if err := v.InsertToken(ctx, "alice", newTestMetadata(t, 1)); err != nil {
			return err
		}
		return v.InsertToken(ctx, "alice", newTestMetadata(t, 2))
	}))

	count, err := s.OwnerCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	owner, err := s.TokenOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("alice"), owner)

	err = s.RunInTx(ctx, func(v View) error {
		return v.InsertToken(ctx, "bob", newTestMetadata(t, 1))
	})
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		return v.DeleteToken(ctx, 1)
	}))
	count, err = s.OwnerCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	_, err = s.TokenOwner(ctx, 1)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.TokenMetadata(ctx, 1)
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "ownership and metadata leave together")

	err = s.RunInTx(ctx, func(v View) error {
		return v.DeleteToken(ctx, 1)
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	count, err = s.OwnerCount(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_UpdateTokenMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		return v.InsertToken(ctx, "alice", newTestMetadata(t, 1))
	}))

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		meta, err := v.TokenMetadata(ctx, 1)
		if err != nil {
			return err
		}
		if err := meta.UpdateExtra("rotated key"); err != nil {
			return err
		}
		return v.UpdateTokenMetadata(ctx, meta)
	}))

	meta, err := s.TokenMetadata(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "rotated key", meta.Extra)

	err = s.RunInTx(ctx, func(v View) error {
		return v.UpdateTokenMetadata(ctx, newTestMetadata(t, 99))
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_ConfigScalars(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		if err := v.SetOracle(ctx, "oracle-1"); err != nil {
			return err
		}
		if err := v.SetAuthWrapper(ctx, "wrapper-1"); err != nil {
			return err
		}
		if err := v.SetMaxTokens(ctx, 7); err != nil {
			return err
		}
		return v.SetMintFee(ctx, 42)
	}))

	oracle, err := s.Oracle(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("oracle-1"), oracle)

	wrapper, err := s.AuthWrapper(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("wrapper-1"), wrapper)

	maxTokens, err := s.MaxTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), maxTokens)

	fee, err := s.MintFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), fee)
}

// TestMemoryStore_RollbackOnError is the atomicity guarantee: a unit that
// fails after writing leaves the ledger exactly as it found it.
func TestMemoryStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(v View) error {
		if _, err := v.NextNonce(ctx); err != nil {
			return err
		}
		if err := v.InsertProof(ctx, newTestProof(t, "alice", 0)); err != nil {
			return err
		}
		if err := v.InsertToken(ctx, "alice", newTestMetadata(t, 1)); err != nil {
			return err
		}
		if _, err := v.NextTokenID(ctx); err != nil {
			return err
		}
		if err := v.SetOracle(ctx, "oracle-1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetProof(ctx, 0)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.TokenOwner(ctx, 1)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.Oracle(ctx)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	count, err := s.OwnerCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)

	// The counters rolled back too: the next unit sees the same values.
	require.NoError(t, s.RunInTx(ctx, func(v View) error {
		n, err := v.NextNonce(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Nonce(0), n)
		id, err := v.NextTokenID(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.TokenID(1), id)
		return nil
	}))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunInTx(ctx, func(View) error {
		t.Fatal("unit must not run")
		return nil
	})
	require.Error(t, err)
}

// TestMemoryStore_ConcurrentUnits drives parallel units through the store
// and checks the sequences stay dense and distinct.
func TestMemoryStore_ConcurrentUnits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	const workers = 50

	var (
		mu     sync.Mutex
		nonces = make(map[domain.Nonce]struct{})
		wg     sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTx(ctx, func(v View) error {
				n, err := v.NextNonce(ctx)
				if err != nil {
					return err
				}
				mu.Lock()
				nonces[n] = struct{}{}
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, nonces, workers, "every unit got a distinct nonce")
	for n := domain.Nonce(0); n < workers; n++ {
		assert.Contains(t, nonces, n, "sequence has no gaps")
	}
}

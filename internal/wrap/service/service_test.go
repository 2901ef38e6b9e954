package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"soulbind/internal/chain"
	"soulbind/internal/state"
	"soulbind/internal/wrap/service/mocks"
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	audit "soulbind/pkg/platform/audit"
	"soulbind/pkg/requestcontext"
)

const (
	testOwner  = domain.Principal("contract-owner")
	testOracle = domain.Principal("oracle")
	testUser   = domain.Principal("alice")
)

var testHash = domain.CredentialHash{0xde, 0xad, 0xbe, 0xef}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store := state.NewMemory(state.Genesis{
		ContractOwner: testOwner,
		MaxTokens:     100,
		MintFee:       5,
	})
	return New(store, chain.NewManual(1000), opts...)
}

func atHeight(h domain.Height) context.Context {
	return requestcontext.WithHeight(context.Background(), h)
}

// withOracle returns a service whose oracle is already configured.
func withOracle(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc := newTestService(t, opts...)
	require.NoError(t, svc.SetOracle(atHeight(999), testOwner, testOracle))
	return svc
}

func TestSetOracle(t *testing.T) {
	t.Run("owner sets and rotates freely", func(t *testing.T) {
		svc := newTestService(t)

		require.NoError(t, svc.SetOracle(atHeight(1000), testOwner, testOracle))
		oracle, err := svc.Oracle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testOracle, oracle)

		require.NoError(t, svc.SetOracle(atHeight(1001), testOwner, domain.Principal("oracle-2")))
		oracle, err = svc.Oracle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.Principal("oracle-2"), oracle)
	})

	t.Run("non-owner is refused", func(t *testing.T) {
		svc := newTestService(t)

		err := svc.SetOracle(atHeight(1000), testUser, testOracle)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, err = svc.Oracle(context.Background())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOracleNotSet))
	})

	t.Run("owner cannot appoint itself", func(t *testing.T) {
		svc := newTestService(t)

		err := svc.SetOracle(atHeight(1000), testOwner, testOwner)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestInitiateWrap(t *testing.T) {
	t.Run("issues dense nonces from zero", func(t *testing.T) {
		svc := withOracle(t)

		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)
		assert.Equal(t, domain.Nonce(0), nonce)

		nonce, err = svc.InitiateWrap(atHeight(1000), domain.Principal("bob"), "email", testHash, 100)
		require.NoError(t, err)
		assert.Equal(t, domain.Nonce(1), nonce)

		proof, err := svc.GetProof(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, testUser, proof.User)
		assert.Equal(t, "email", proof.Method)
		assert.Equal(t, testHash, proof.CredentialHash)
		assert.Equal(t, domain.Height(1000), proof.CreatedAt)
		assert.Equal(t, domain.Height(1100), proof.ExpiresAt)
	})

	t.Run("requires a configured oracle", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOracleNotSet))
	})

	t.Run("rejects a zero expiry window", func(t *testing.T) {
		svc := withOracle(t)

		_, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))

		// The rejected request consumed no sequence value.
		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)
		assert.Equal(t, domain.Nonce(0), nonce)
	})

	t.Run("rejects a bad method", func(t *testing.T) {
		svc := withOracle(t)

		_, err := svc.InitiateWrap(atHeight(1000), testUser, "", testHash, 100)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))

		long := make([]byte, 33)
		for i := range long {
			long[i] = 'a'
		}
		_, err = svc.InitiateWrap(atHeight(1000), testUser, string(long), testHash, 100)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
	})

	t.Run("wrapped principal is blocked forever", func(t *testing.T) {
		svc := withOracle(t)

		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)
		_, err = svc.CompleteWrap(atHeight(1050), testOracle, nonce, testUser, "email", 777)
		require.NoError(t, err)

		_, err = svc.InitiateWrap(atHeight(1060), testUser, "email", testHash, 100)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyWrapped))

		// Revocation does not reopen the door.
		_, err = svc.RevokeIdentity(atHeight(1070), testUser)
		require.NoError(t, err)
		_, err = svc.InitiateWrap(atHeight(1080), testUser, "email", testHash, 100)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyWrapped))
	})
}

func TestCompleteWrap(t *testing.T) {
	t.Run("materializes the identity and consumes the proof", func(t *testing.T) {
		svc := withOracle(t)

		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)

		identity, err := svc.CompleteWrap(atHeight(1050), testOracle, nonce, testUser, "email", 777)
		require.NoError(t, err)
		assert.Equal(t, testUser, identity.User)
		assert.Equal(t, "email", identity.Method)
		assert.Equal(t, domain.TokenID(777), identity.TokenID)
		assert.True(t, identity.Active)
		assert.Equal(t, domain.Height(1050), identity.WrappedAt)

		_, err = svc.GetProof(context.Background(), nonce)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofNotFound))

		got, err := svc.GetIdentity(context.Background(), testUser)
		require.NoError(t, err)
		assert.Equal(t, identity, got)
	})

	t.Run("unknown nonce beats the caller check", func(t *testing.T) {
		svc := withOracle(t)

		_, err := svc.CompleteWrap(atHeight(1000), domain.Principal("impostor"), 42, testUser, "email", 777)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofNotFound))
	})

	t.Run("only the oracle may complete", func(t *testing.T) {
		svc := withOracle(t)

		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)

		_, err = svc.CompleteWrap(atHeight(1050), testUser, nonce, testUser, "email", 777)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		// The failed attempt left the proof in place.
		_, err = svc.GetProof(context.Background(), nonce)
		require.NoError(t, err)
	})

	t.Run("user and method must match the proof", func(t *testing.T) {
		svc := withOracle(t)

		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)

		_, err = svc.CompleteWrap(atHeight(1050), testOracle, nonce, domain.Principal("bob"), "email", 777)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, err = svc.CompleteWrap(atHeight(1050), testOracle, nonce, testUser, "sms", 777)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidMethod))
	})

	t.Run("expiry boundary", func(t *testing.T) {
		svc := withOracle(t)

		// createdAt=1000, window=100: completion at 1100 is still valid.
		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)
		_, err = svc.CompleteWrap(atHeight(1100), testOracle, nonce, testUser, "email", 777)
		require.NoError(t, err)

		nonce, err = svc.InitiateWrap(atHeight(1000), domain.Principal("bob"), "email", testHash, 100)
		require.NoError(t, err)
		_, err = svc.CompleteWrap(atHeight(1101), testOracle, nonce, domain.Principal("bob"), "email", 778)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProofExpired))

		// Expired proofs stay queryable forever.
		proof, err := svc.GetProof(context.Background(), nonce)
		require.NoError(t, err)
		assert.Equal(t, domain.Height(1100), proof.ExpiresAt)
	})

	t.Run("second proof for a wrapped user is refused", func(t *testing.T) {
		svc := withOracle(t)

		// Both proofs predate the wrap, so both clear initiation.
		first, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)
		second, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)

		_, err = svc.CompleteWrap(atHeight(1050), testOracle, first, testUser, "email", 777)
		require.NoError(t, err)

		_, err = svc.CompleteWrap(atHeight(1051), testOracle, second, testUser, "email", 778)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyWrapped))

		// The refused completion did not consume the second proof.
		_, err = svc.GetProof(context.Background(), second)
		require.NoError(t, err)
	})
}

func TestRevokeIdentity(t *testing.T) {
	t.Run("one-way transition", func(t *testing.T) {
		svc := withOracle(t)

		nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
		require.NoError(t, err)
		_, err = svc.CompleteWrap(atHeight(1050), testOracle, nonce, testUser, "email", 777)
		require.NoError(t, err)

		identity, err := svc.RevokeIdentity(atHeight(1060), testUser)
		require.NoError(t, err)
		assert.False(t, identity.Active)
		require.NotNil(t, identity.RevokedAt)
		assert.Equal(t, domain.Height(1060), *identity.RevokedAt)
		assert.Equal(t, domain.Height(1060), identity.UpdatedAt)

		_, err = svc.RevokeIdentity(atHeight(1061), testUser)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))

		// The record survives revocation.
		got, err := svc.GetIdentity(context.Background(), testUser)
		require.NoError(t, err)
		assert.False(t, got.Active)
		assert.Equal(t, domain.Height(1050), got.WrappedAt)
	})

	t.Run("requires an existing record", func(t *testing.T) {
		svc := withOracle(t)

		_, err := svc.RevokeIdentity(atHeight(1000), testUser)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotWrapped))
	})
}

func TestIsWrapped(t *testing.T) {
	svc := withOracle(t)

	wrapped, err := svc.IsWrapped(context.Background(), testUser)
	require.NoError(t, err)
	assert.False(t, wrapped)

	nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
	require.NoError(t, err)

	// A pending proof alone does not wrap.
	wrapped, err = svc.IsWrapped(context.Background(), testUser)
	require.NoError(t, err)
	assert.False(t, wrapped)

	_, err = svc.CompleteWrap(atHeight(1050), testOracle, nonce, testUser, "email", 777)
	require.NoError(t, err)

	wrapped, err = svc.IsWrapped(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, wrapped)

	// Revocation answers false even though the record survives.
	_, err = svc.RevokeIdentity(atHeight(1060), testUser)
	require.NoError(t, err)
	wrapped, err = svc.IsWrapped(context.Background(), testUser)
	require.NoError(t, err)
	assert.False(t, wrapped)
}

func TestWrapAuditEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockAuditPublisher(ctrl)

	var events []audit.Event
	publisher.EXPECT().
		Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			events = append(events, e)
			return nil
		}).
		AnyTimes()

	svc := newTestService(t, WithAuditPublisher(publisher))

	require.NoError(t, svc.SetOracle(atHeight(1000), testOwner, testOracle))
	nonce, err := svc.InitiateWrap(atHeight(1000), testUser, "email", testHash, 100)
	require.NoError(t, err)
	_, err = svc.CompleteWrap(atHeight(1050), testOracle, nonce, testUser, "email", 777)
	require.NoError(t, err)
	_, err = svc.RevokeIdentity(atHeight(1060), testUser)
	require.NoError(t, err)

	require.Len(t, events, 3)

	assert.Equal(t, string(audit.EventOracleRotated), events[0].Action)
	assert.Equal(t, testOracle, events[0].Principal)
	assert.Equal(t, testOwner.String(), events[0].ActorID)

	assert.Equal(t, string(audit.EventIdentityWrapped), events[1].Action)
	assert.Equal(t, testUser, events[1].Principal)
	assert.Equal(t, domain.Height(1050), events[1].Height)
	assert.Equal(t, domain.TokenID(777), events[1].TokenID)
	assert.Equal(t, testOracle.String(), events[1].ActorID)

	assert.Equal(t, string(audit.EventIdentityRevoked), events[2].Action)
	assert.Equal(t, testUser, events[2].Principal)
	assert.Equal(t, domain.Height(1060), events[2].Height)
}

func TestInitiateWrapUsesHeightSource(t *testing.T) {
	// Without a pinned height the configured source decides.
	svc := withOracle(t)

	nonce, err := svc.InitiateWrap(context.Background(), testUser, "email", testHash, 10)
	require.NoError(t, err)

	proof, err := svc.GetProof(context.Background(), nonce)
	require.NoError(t, err)
	assert.Equal(t, domain.Height(1000), proof.CreatedAt)
	assert.Equal(t, domain.Height(1010), proof.ExpiresAt)
}

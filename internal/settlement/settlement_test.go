package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soulbind/pkg/domain"
)

func TestMock_RecordsCalls(t *testing.T) {
	mock := &Mock{}

	err := mock.Transfer(context.Background(), 5, domain.Principal("alice"), domain.Principal("authority"))
	require.NoError(t, err)
	err = mock.Transfer(context.Background(), 7, domain.Principal("bob"), domain.Principal("authority"))
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Call{Amount: 5, Payer: "alice", Payee: "authority"}, calls[0])
	assert.Equal(t, Call{Amount: 7, Payer: "bob", Payee: "authority"}, calls[1])
}

func TestMock_ReturnsConfiguredError(t *testing.T) {
	boom := errors.New("ledger unreachable")
	mock := &Mock{Err: boom}

	err := mock.Transfer(context.Background(), 5, domain.Principal("alice"), domain.Principal("authority"))
	assert.ErrorIs(t, err, boom)

	// Failed attempts are still recorded.
	assert.Len(t, mock.Calls(), 1)
}

func TestMock_CallsReturnsCopy(t *testing.T) {
	mock := &Mock{}
	require.NoError(t, mock.Transfer(context.Background(), 1, "a", "b"))

	calls := mock.Calls()
	calls[0].Amount = 99

	assert.Equal(t, uint64(1), mock.Calls()[0].Amount)
}

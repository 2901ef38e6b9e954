// Package settlement calls the external service that moves the mint fee
// from the minting caller to the settlement authority. The ledger only
// initiates the transfer; whether the money actually moves is the
// collaborator's concern, and any failure it reports aborts the mint.
package settlement

import (
	"context"
	"sync"
	"time"

	"soulbind/pkg/domain"
)

// Provider initiates a fee transfer. The ledger keeps the interface small
// so tests can stub quickly.
type Provider interface {
	Transfer(ctx context.Context, amount uint64, payer, payee domain.Principal) error
}

// Call records the arguments of one Transfer invocation.
type Call struct {
	Amount uint64
	Payer  domain.Principal
	Payee  domain.Principal
}

// Mock is an in-process Provider for development and tests. Latency
// simulates collaborator round-trip time; Err, when set, is returned from
// every Transfer.
type Mock struct {
	Latency time.Duration
	Err     error

	mu    sync.Mutex
	calls []Call
}

func (m *Mock) Transfer(_ context.Context, amount uint64, payer, payee domain.Principal) error {
	time.Sleep(m.Latency)

	m.mu.Lock()
	m.calls = append(m.calls, Call{Amount: amount, Payer: payer, Payee: payee})
	m.mu.Unlock()

	return m.Err
}

// Calls returns a copy of every recorded invocation.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

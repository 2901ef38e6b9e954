package audit

import (
	"context"

	"soulbind/pkg/domain"
)

// Appender accepts events for persistence or forwarding. Stores and sinks
// both implement it, so pipeline stages compose.
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// Store is a queryable event log.
type Store interface {
	Appender
	ListByPrincipal(ctx context.Context, principal domain.Principal) ([]Event, error)
	ListAll(ctx context.Context) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

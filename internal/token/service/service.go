// Package service runs the soulbound token ledger: capacity- and fee-gated
// minting, owner-only burn and metadata updates, a contract-owner status
// flag, and the transfer prohibition. Mutating operations execute as one
// atomic unit; the settlement call during mint happens inside the unit,
// after validation and before any write, so a fee failure leaves zero state
// mutated.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"

	"soulbind/internal/chain"
	"soulbind/internal/platform/metrics"
	"soulbind/internal/state"
	"soulbind/pkg/domain"
	audit "soulbind/pkg/platform/audit"
	"soulbind/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Settlement,AuditPublisher

var tracer = otel.Tracer("soulbind/internal/token")

// Settlement moves the mint fee from the minting caller to the settlement
// authority. Any error aborts the mint.
type Settlement interface {
	Transfer(ctx context.Context, amount uint64, payer, payee domain.Principal) error
}

// AuditPublisher records chain events after a unit commits.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the token ledger against the authoritative store.
type Service struct {
	store      state.Store
	heights    chain.HeightSource
	settlement Settlement
	logger     *slog.Logger
	audit      AuditPublisher
	metrics    *metrics.Metrics
	cache      *state.Cache
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditPublisher sets the audit event destination.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// WithMetrics sets the operation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache installs the read cache used by Metadata. Mutations invalidate
// it after commit.
func WithCache(cache *state.Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// New constructs the token service.
func New(store state.Store, heights chain.HeightSource, settlement Settlement, opts ...Option) *Service {
	s := &Service{
		store:      store,
		heights:    heights,
		settlement: settlement,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Device = requestcontext.Device(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"principal", event.Principal,
		"height", event.Height,
		"token_id", event.TokenID,
		"request_id", event.RequestID,
		"log_type", "audit",
	)
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

// Package service orchestrates the wrap workflow: oracle management, proof
// issuance, oracle-confirmed completion, and permanent revocation. Every
// mutating operation runs as one atomic unit against the ledger store, with
// all ordered checks inside the unit so no decision rests on stale reads.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"soulbind/internal/chain"
	"soulbind/internal/platform/metrics"
	"soulbind/internal/state"
	"soulbind/internal/wrap/models"
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	audit "soulbind/pkg/platform/audit"
	"soulbind/pkg/platform/sentinel"
	"soulbind/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AuditPublisher

var tracer = otel.Tracer("soulbind/internal/wrap")

// AuditPublisher records chain events after a unit commits.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the wrap workflow against the ledger store.
type Service struct {
	store   state.Store
	heights chain.HeightSource
	logger  *slog.Logger
	audit   AuditPublisher
	metrics *metrics.Metrics
	cache   *state.Cache
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

// WithCache installs the read cache used by GetIdentity. Mutations
// invalidate it after commit.
func WithCache(cache *state.Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// New constructs the wrap service.
func New(store state.Store, heights chain.HeightSource, opts ...Option) *Service {
	s := &Service{
		store:   store,
		heights: heights,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOracle replaces the trusted oracle. Only the contract owner may call
// it, the owner cannot appoint itself, and there is no set-once restriction:
// the oracle may be rotated repeatedly.
func (s *Service) SetOracle(ctx context.Context, caller, newOracle domain.Principal) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "wrap.set_oracle",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("set_oracle", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		owner, err := v.ContractOwner(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load contract owner")
		}
		if caller != owner {
			return dErrors.New(dErrors.CodeUnauthorized, "only the contract owner may set the oracle")
		}
		if newOracle == caller {
			return dErrors.New(dErrors.CodeUnauthorized, "the contract owner cannot appoint itself as oracle")
		}
		if err := v.SetOracle(ctx, newOracle); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "set oracle")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Principal: newOracle,
		Action:    string(audit.EventOracleRotated),
		Height:    height,
		ActorID:   caller.String(),
	})
	return nil
}

// InitiateWrap opens the wrap workflow for the caller: validates the
// request, allocates the next nonce, and stores the pending proof. The
// nonce is allocated after every check passes, so failed requests never
// consume sequence values.
func (s *Service) InitiateWrap(ctx context.Context, caller domain.Principal, method string, hash domain.CredentialHash, expiresInBlocks uint64) (nonce domain.Nonce, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "wrap.initiate",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("initiate_wrap", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	proof, err := models.NewPendingProof(caller, method, hash, height, expiresInBlocks)
	if err != nil {
		return 0, err
	}

	err = s.store.RunInTx(ctx, func(v state.View) error {
		// Existence in any state blocks a new wrap forever.
		if _, err := v.GetIdentity(ctx, caller); err == nil {
			return dErrors.New(dErrors.CodeAlreadyWrapped, "principal already has a wrapped identity")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check wrapped identity")
		}

		if _, err := v.Oracle(ctx); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeOracleNotSet, "no oracle is configured")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load oracle")
		}

		n, err := v.NextNonce(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "allocate nonce")
		}
		proof.Nonce = n

		if err := v.InsertProof(ctx, proof); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store pending proof")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return proof.Nonce, nil
}

// CompleteWrap is the oracle callback confirming a pending proof. On
// success the identity record is created and the proof deleted in the same
// unit; a successful completion is the only thing that ever deletes a
// proof.
func (s *Service) CompleteWrap(ctx context.Context, caller domain.Principal, nonce domain.Nonce, user domain.Principal, method string, tokenID domain.TokenID) (identity *models.WrappedIdentity, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "wrap.complete",
		trace.WithAttributes(
			attribute.String("caller", caller.String()),
			attribute.String("user", user.String()),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("complete_wrap", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		proof, err := v.GetProof(ctx, nonce)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeProofNotFound, "no pending proof for nonce")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load pending proof")
		}

		oracle, oracleErr := v.Oracle(ctx)
		if oracleErr != nil && !errors.Is(oracleErr, sentinel.ErrNotFound) {
			return dErrors.Wrap(oracleErr, dErrors.CodeInternal, "load oracle")
		}
		// An unset oracle matches no caller.
		if oracleErr != nil || caller != oracle {
			return dErrors.New(dErrors.CodeUnauthorized, "only the oracle may complete a wrap")
		}

		if err := proof.CanComplete(user, method, height); err != nil {
			return err
		}

		if _, err := v.GetIdentity(ctx, user); err == nil {
			return dErrors.New(dErrors.CodeAlreadyWrapped, "user already has a wrapped identity")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check wrapped identity")
		}

		rec := models.NewWrappedIdentity(proof, tokenID, height)
		if err := v.InsertIdentity(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store wrapped identity")
		}
		if err := v.DeleteProof(ctx, nonce); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "consume pending proof")
		}
		identity = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateIdentity(ctx, user)
	s.metrics.IdentityWrapped()
	s.emit(ctx, audit.Event{
		Principal: user,
		Action:    string(audit.EventIdentityWrapped),
		Height:    height,
		TokenID:   tokenID,
		ActorID:   caller.String(),
	})
	return identity, nil
}

// RevokeIdentity flips the caller's identity to revoked. One-way: nothing
// ever sets it active again, and the record is never deleted.
func (s *Service) RevokeIdentity(ctx context.Context, caller domain.Principal) (identity *models.WrappedIdentity, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "wrap.revoke",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("revoke_identity", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		rec, err := v.GetIdentity(ctx, caller)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotWrapped, "principal has no wrapped identity")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load wrapped identity")
		}
		if err := rec.Revoke(height); err != nil {
			return err
		}
		if err := v.UpdateIdentity(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store revocation")
		}
		identity = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateIdentity(ctx, caller)
	s.metrics.IdentityRevoked()
	s.emit(ctx, audit.Event{
		Principal: caller,
		Action:    string(audit.EventIdentityRevoked),
		Height:    height,
	})
	return identity, nil
}

// GetProof returns the pending proof for a nonce. Expired proofs are still
// returned; they stay queryable forever.
func (s *Service) GetProof(ctx context.Context, nonce domain.Nonce) (*models.PendingProof, error) {
	proof, err := s.store.GetProof(ctx, nonce)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeProofNotFound, "no pending proof for nonce")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load pending proof")
	}
	return proof, nil
}

// GetIdentity returns a principal's wrap record, active or revoked.
func (s *Service) GetIdentity(ctx context.Context, user domain.Principal) (*models.WrappedIdentity, error) {
	if rec, ok := s.cache.Identity(ctx, user); ok {
		return rec, nil
	}
	rec, err := s.store.GetIdentity(ctx, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotWrapped, "principal has no wrapped identity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load wrapped identity")
	}
	s.cache.StoreIdentity(ctx, rec)
	return rec, nil
}

// IsWrapped reports whether a principal currently holds an active wrapped
// identity. A revoked record answers false; its existence still blocks a
// new initiate.
func (s *Service) IsWrapped(ctx context.Context, user domain.Principal) (bool, error) {
	rec, err := s.GetIdentity(ctx, user)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotWrapped) {
			return false, nil
		}
		return false, err
	}
	return rec.Active, nil
}

// Oracle returns the configured oracle principal.
func (s *Service) Oracle(ctx context.Context) (domain.Principal, error) {
	oracle, err := s.store.Oracle(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeOracleNotSet, "no oracle is configured")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load oracle")
	}
	return oracle, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Device = requestcontext.Device(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"principal", event.Principal,
		"height", event.Height,
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

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"soulbind/internal/chain"
	"soulbind/internal/state"
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	audit "soulbind/pkg/platform/audit"
	"soulbind/pkg/platform/sentinel"
)

// SetAuthWrapper configures the settlement authority that mint fees flow
// to. Settable exactly once, unlike the oracle; a second call fails whatever
// the value.
func (s *Service) SetAuthWrapper(ctx context.Context, caller, wrapper domain.Principal) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.set_auth_wrapper",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("set_auth_wrapper", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		owner, err := v.ContractOwner(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load contract owner")
		}
		if caller != owner {
			return dErrors.New(dErrors.CodeOwnerOnly, "only the contract owner may set the settlement authority")
		}
		if _, err := v.AuthWrapper(ctx); err == nil {
			return dErrors.New(dErrors.CodeAuthorityAlreadySet, "settlement authority is already configured")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load settlement authority")
		}
		if err := v.SetAuthWrapper(ctx, wrapper); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "set settlement authority")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Principal: wrapper,
		Action:    string(audit.EventAuthWrapperSet),
		Height:    height,
		ActorID:   caller.String(),
	})
	return nil
}

// SetMaxTokens raises or lowers the mint capacity. The new limit must
// exceed the last issued token ID, so capacity can never fall below what
// the sequence has already handed out.
func (s *Service) SetMaxTokens(ctx context.Context, caller domain.Principal, newMax uint64) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.set_max_tokens",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("set_max_tokens", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		owner, err := v.ContractOwner(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load contract owner")
		}
		if caller != owner {
			return dErrors.New(dErrors.CodeOwnerOnly, "only the contract owner may set max tokens")
		}
		last, err := v.LastTokenID(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load last token id")
		}
		if newMax <= uint64(last) {
			return dErrors.New(dErrors.CodeInvalidUpdateParam, "max tokens must exceed the last issued token id")
		}
		if err := v.SetMaxTokens(ctx, newMax); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "set max tokens")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Principal: caller,
		Action:    string(audit.EventMaxTokensUpdated),
		Height:    height,
		Reason:    fmt.Sprintf("max_tokens=%d", newMax),
	})
	return nil
}

// SetMintFee overwrites the mint fee. Any unsigned magnitude is accepted,
// including zero.
func (s *Service) SetMintFee(ctx context.Context, caller domain.Principal, newFee uint64) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.set_mint_fee",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("set_mint_fee", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		owner, err := v.ContractOwner(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load contract owner")
		}
		if caller != owner {
			return dErrors.New(dErrors.CodeOwnerOnly, "only the contract owner may set the mint fee")
		}
		if err := v.SetMintFee(ctx, newFee); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "set mint fee")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Principal: caller,
		Action:    string(audit.EventMintFeeUpdated),
		Height:    height,
		Reason:    fmt.Sprintf("mint_fee=%d", newFee),
	})
	return nil
}

// ContractOwner returns the genesis-fixed contract owner.
func (s *Service) ContractOwner(ctx context.Context) (domain.Principal, error) {
	owner, err := s.store.ContractOwner(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load contract owner")
	}
	return owner, nil
}

// AuthWrapper returns the configured settlement authority.
func (s *Service) AuthWrapper(ctx context.Context) (domain.Principal, error) {
	wrapper, err := s.store.AuthWrapper(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeAuthWrapperNotSet, "no settlement authority is configured")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load settlement authority")
	}
	return wrapper, nil
}

// MaxTokens returns the configured mint capacity.
func (s *Service) MaxTokens(ctx context.Context) (uint64, error) {
	limit, err := s.store.MaxTokens(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "load max tokens")
	}
	return limit, nil
}

// MintFee returns the configured mint fee.
func (s *Service) MintFee(ctx context.Context) (uint64, error) {
	fee, err := s.store.MintFee(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "load mint fee")
	}
	return fee, nil
}

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
	"soulbind/internal/token/models"
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	audit "soulbind/pkg/platform/audit"
	"soulbind/pkg/platform/sentinel"
)

// Mint creates a token for the caller. The ordered gates are capacity,
// self-mint, method shape, metadata shape, configured settlement authority,
// and finally the fee transfer itself; only then does the ledger mutate.
// Failed mints never advance the token sequence.
func (s *Service) Mint(ctx context.Context, caller, recipient domain.Principal, authMethod, extra string) (tokenID domain.TokenID, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.mint",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("mint", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		last, err := v.LastTokenID(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load last token id")
		}
		limit, err := v.MaxTokens(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load max tokens")
		}
		if uint64(last)+1 > limit {
			return dErrors.New(dErrors.CodeCapacityExceeded, "token capacity reached")
		}

		if recipient != caller {
			return dErrors.New(dErrors.CodeInvalidRecipient, "tokens can only be minted to the caller")
		}

		meta, err := models.NewMetadata(authMethod, extra, height)
		if err != nil {
			return err
		}

		authWrapper, err := v.AuthWrapper(ctx)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeAuthWrapperNotSet, "no settlement authority is configured")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load settlement authority")
		}

		fee, err := v.MintFee(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load mint fee")
		}

		if s.settlement == nil {
			return dErrors.New(dErrors.CodeMintFailed, "no settlement provider configured")
		}
		if err := s.settlement.Transfer(ctx, fee, caller, authWrapper); err != nil {
			return dErrors.Wrap(err, dErrors.CodeMintFailed, "mint fee transfer failed")
		}

		id, err := v.NextTokenID(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "allocate token id")
		}
		meta.TokenID = id

		if err := v.InsertToken(ctx, recipient, meta); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store token")
		}
		tokenID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.TokenMinted()
	s.emit(ctx, audit.Event{
		Principal: recipient,
		Action:    string(audit.EventTokenMinted),
		Height:    height,
		TokenID:   tokenID,
	})
	return tokenID, nil
}

// Burn deletes the caller's token: ownership, metadata, and the owner count
// leave together. The token sequence never rewinds; a burned ID is gone for
// good.
func (s *Service) Burn(ctx context.Context, caller domain.Principal, id domain.TokenID) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.burn",
		trace.WithAttributes(
			attribute.String("caller", caller.String()),
			attribute.Int64("token_id", int64(id)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("burn", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		owner, err := v.TokenOwner(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeTokenNotFound, "token does not exist")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load token owner")
		}
		if caller != owner {
			return dErrors.New(dErrors.CodeOwnerOnly, "only the token owner may burn it")
		}
		if err := v.DeleteToken(ctx, id); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "delete token")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateToken(ctx, id)
	s.metrics.TokenBurned()
	s.emit(ctx, audit.Event{
		Principal: caller,
		Action:    string(audit.EventTokenBurned),
		Height:    height,
		TokenID:   id,
	})
	return nil
}

// Transfer refuses unconditionally. Soulbound tokens never move, whatever
// the token, sender, or recipient — the check precedes any state read, so
// even a nonexistent token answers the same way.
func (s *Service) Transfer(ctx context.Context, caller domain.Principal, id domain.TokenID, recipient domain.Principal) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.transfer",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("transfer", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	s.emit(ctx, audit.Event{
		Principal: caller,
		Action:    string(audit.EventTransferDenied),
		Height:    height,
		TokenID:   id,
		Reason:    fmt.Sprintf("attempted transfer to %s", recipient),
	})
	return dErrors.New(dErrors.CodeTransferNotAllowed, "soulbound tokens cannot be transferred")
}

// UpdateMetadata replaces a token's free-form payload. Only the owner may
// call it, and only the Extra field changes; method, status, and the mint
// height are preserved.
func (s *Service) UpdateMetadata(ctx context.Context, caller domain.Principal, id domain.TokenID, extra string) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.update_metadata",
		trace.WithAttributes(
			attribute.String("caller", caller.String()),
			attribute.Int64("token_id", int64(id)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("update_metadata", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		owner, err := v.TokenOwner(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeTokenNotFound, "token does not exist")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load token owner")
		}
		if caller != owner {
			return dErrors.New(dErrors.CodeOwnerOnly, "only the token owner may update its metadata")
		}
		meta, err := v.TokenMetadata(ctx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load token metadata")
		}
		if err := meta.UpdateExtra(extra); err != nil {
			return err
		}
		if err := v.UpdateTokenMetadata(ctx, meta); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store token metadata")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateToken(ctx, id)
	s.emit(ctx, audit.Event{
		Principal: caller,
		Action:    string(audit.EventTokenMetadataUpdated),
		Height:    height,
		TokenID:   id,
	})
	return nil
}

// SetTokenStatus overwrites a token's status flag. Authorization is against
// the contract owner, not the token owner, and runs before the existence
// check so unauthorized callers learn nothing about the ledger.
func (s *Service) SetTokenStatus(ctx context.Context, caller domain.Principal, id domain.TokenID, status bool) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "token.set_status",
		trace.WithAttributes(
			attribute.String("caller", caller.String()),
			attribute.Int64("token_id", int64(id)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.metrics.ObserveOperation("set_token_status", err, time.Since(start))
	}()

	height := chain.Resolve(ctx, s.heights)

	err = s.store.RunInTx(ctx, func(v state.View) error {
		owner, err := v.ContractOwner(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load contract owner")
		}
		if caller != owner {
			return dErrors.New(dErrors.CodeOwnerOnly, "only the contract owner may set token status")
		}
		meta, err := v.TokenMetadata(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeTokenNotFound, "token does not exist")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load token metadata")
		}
		meta.SetStatus(status)
		if err := v.UpdateTokenMetadata(ctx, meta); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store token metadata")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateToken(ctx, id)
	s.emit(ctx, audit.Event{
		Principal: caller,
		Action:    string(audit.EventTokenStatusChanged),
		Height:    height,
		TokenID:   id,
		Reason:    fmt.Sprintf("status=%t", status),
	})
	return nil
}

// LastTokenID returns the highest token ID ever issued, burned or not.
func (s *Service) LastTokenID(ctx context.Context) (domain.TokenID, error) {
	last, err := s.store.LastTokenID(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "load last token id")
	}
	return last, nil
}

// Owner returns the principal owning a token.
func (s *Service) Owner(ctx context.Context, id domain.TokenID) (domain.Principal, error) {
	owner, err := s.store.TokenOwner(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeTokenNotFound, "token does not exist")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load token owner")
	}
	return owner, nil
}

// Metadata returns a token's metadata record.
func (s *Service) Metadata(ctx context.Context, id domain.TokenID) (*models.Metadata, error) {
	if meta, ok := s.cache.Metadata(ctx, id); ok {
		return meta, nil
	}
	meta, err := s.store.TokenMetadata(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeTokenNotFound, "token does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load token metadata")
	}
	s.cache.StoreMetadata(ctx, meta)
	return meta, nil
}

// CountByOwner returns how many live tokens a principal owns. Unknown
// principals own zero.
func (s *Service) CountByOwner(ctx context.Context, owner domain.Principal) (uint64, error) {
	count, err := s.store.OwnerCount(ctx, owner)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "load owner count")
	}
	return count, nil
}

// IsOwner reports whether the principal owns the token. A nonexistent
// token is owned by no one, so the answer is false rather than an error.
func (s *Service) IsOwner(ctx context.Context, id domain.TokenID, principal domain.Principal) (bool, error) {
	owner, err := s.store.TokenOwner(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load token owner")
	}
	return owner == principal, nil
}

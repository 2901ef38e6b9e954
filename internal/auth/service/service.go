// Package service exchanges the bootstrap secret for signed bearer tokens.
// There are no user accounts: a principal is whatever name the caller
// presents, and possession of the shared secret is the entire credential.
// The issued token is what the ledger endpoints authenticate with.
package service

import (
	"context"
	"log/slog"
	"time"

	"soulbind/pkg/domain"
	"soulbind/pkg/secrets"
)

// TokenIssuer signs a bearer token for a principal. Implemented by the
// JWT service; declared here so tests can swap in a failing issuer.
type TokenIssuer interface {
	Issue(principal domain.Principal, expiresIn time.Duration) (string, error)
}

// TokenResult is an issued credential, shaped for an OAuth-style response.
type TokenResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Service verifies the bootstrap secret and mints bearer tokens.
type Service struct {
	secretHash string
	issuer     TokenIssuer
	tokenTTL   time.Duration
	logger     *slog.Logger
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

// New constructs the auth service. secretHash is the bcrypt hash of the
// bootstrap secret; tokenTTL bounds the lifetime of every issued token.
func New(secretHash string, issuer TokenIssuer, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		secretHash: secretHash,
		issuer:     issuer,
		tokenTTL:   tokenTTL,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueToken verifies the secret and signs a token naming the principal.
// The secret is checked before the principal so a caller without the
// credential learns nothing about principal validation.
//
// Errors: CodeUnauthenticated when the secret does not match;
// CodeInvalidInput when the principal fails validation.
func (s *Service) IssueToken(ctx context.Context, principalRaw, secret string) (TokenResult, error) {
	if err := secrets.Verify(secret, s.secretHash); err != nil {
		s.logger.WarnContext(ctx, "token issuance refused", "reason", "secret mismatch")
		return TokenResult{}, err
	}

	principal, err := domain.ParsePrincipal(principalRaw)
	if err != nil {
		return TokenResult{}, err
	}

	token, err := s.issuer.Issue(principal, s.tokenTTL)
	if err != nil {
		return TokenResult{}, err
	}

	s.logger.InfoContext(ctx, "token issued", "principal", principal)
	return TokenResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   s.tokenTTL,
	}, nil
}

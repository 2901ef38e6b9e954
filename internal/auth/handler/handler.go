// Package handler exposes bootstrap token issuance over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authservice "soulbind/internal/auth/service"
	dErrors "soulbind/pkg/domain-errors"
	"soulbind/pkg/platform/httputil"
	request "soulbind/pkg/platform/middleware/request"
)

// Service defines the interface for token issuance.
type Service interface {
	IssueToken(ctx context.Context, principal, secret string) (authservice.TokenResult, error)
}

// Handler handles the token issuance endpoint.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new auth Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register registers the auth routes with the chi router. The token
// endpoint is the one unauthenticated mutation on the API: it is how a
// caller obtains the bearer token everything else requires.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/token", h.handleIssueToken)
}

type tokenRequest struct {
	Principal string `json:"principal"`
	Secret    string `json:"secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid token request",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.service.IssueToken(ctx, req.Principal, req.Secret)
	if err != nil {
		if dErrors.GetCode(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "token issuance failed",
				"request_id", request.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   int64(result.ExpiresIn / time.Second),
	})
}

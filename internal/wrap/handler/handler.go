// Package handler exposes the wrap workflow over HTTP. All routes require
// an authenticated principal; the caller identity feeds the service's
// authorization checks, it is never taken from the request body.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"soulbind/internal/wrap/models"
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	"soulbind/pkg/platform/httputil"
	authmw "soulbind/pkg/platform/middleware/auth"
	request "soulbind/pkg/platform/middleware/request"
)

// Service defines the interface for wrap workflow operations.
type Service interface {
	InitiateWrap(ctx context.Context, caller domain.Principal, method string, hash domain.CredentialHash, expiresInBlocks uint64) (domain.Nonce, error)
	CompleteWrap(ctx context.Context, caller domain.Principal, nonce domain.Nonce, user domain.Principal, method string, tokenID domain.TokenID) (*models.WrappedIdentity, error)
	RevokeIdentity(ctx context.Context, caller domain.Principal) (*models.WrappedIdentity, error)
	GetProof(ctx context.Context, nonce domain.Nonce) (*models.PendingProof, error)
	GetIdentity(ctx context.Context, user domain.Principal) (*models.WrappedIdentity, error)
	IsWrapped(ctx context.Context, user domain.Principal) (bool, error)
	Oracle(ctx context.Context) (domain.Principal, error)
}

// Handler handles wrap workflow endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator authmw.TokenValidator
}

// New creates a new wrap Handler.
func New(service Service, validator authmw.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator,
	}
}

// Register mounts the wrap routes under /wrap.
func (h *Handler) Register(r chi.Router) {
	wrapRouter := chi.NewRouter()
	wrapRouter.Use(authmw.RequirePrincipal(h.validator, h.logger))
	wrapRouter.Post("/initiate", h.handleInitiate)
	wrapRouter.Post("/complete", h.handleComplete)
	wrapRouter.Post("/revoke", h.handleRevoke)
	wrapRouter.Get("/proofs/{nonce}", h.handleGetProof)
	wrapRouter.Get("/identities/{principal}", h.handleGetIdentity)
	wrapRouter.Get("/identities/{principal}/wrapped", h.handleIsWrapped)
	wrapRouter.Get("/oracle", h.handleGetOracle)

	r.Mount("/wrap", wrapRouter)
}

type initiateRequest struct {
	Method          string `json:"method"`
	CredentialHash  string `json:"credential_hash"`
	ExpiresInBlocks uint64 `json:"expires_in_blocks"`
}

type initiateResponse struct {
	Nonce domain.Nonce `json:"nonce"`
}

type completeRequest struct {
	Nonce  uint64 `json:"nonce"`
	User   string `json:"user"`
	Method string `json:"method"`
	// TokenID is the oracle-supplied token reference, recorded as opaque
	// data.
	TokenID uint64 `json:"token_id"`
}

type oracleResponse struct {
	Oracle domain.Principal `json:"oracle"`
}

type isWrappedResponse struct {
	Principal domain.Principal `json:"principal"`
	Wrapped   bool             `json:"wrapped"`
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadBody(ctx, "initiate wrap")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	hash, err := domain.ParseCredentialHash(req.CredentialHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	nonce, err := h.service.InitiateWrap(ctx, caller, req.Method, hash, req.ExpiresInBlocks)
	if err != nil {
		h.writeServiceError(ctx, w, "initiate wrap", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, initiateResponse{Nonce: nonce})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadBody(ctx, "complete wrap")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	user, err := domain.ParsePrincipal(req.User)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	identity, err := h.service.CompleteWrap(ctx, caller, domain.Nonce(req.Nonce), user, req.Method, domain.TokenID(req.TokenID))
	if err != nil {
		h.writeServiceError(ctx, w, "complete wrap", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, identity)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	identity, err := h.service.RevokeIdentity(ctx, caller)
	if err != nil {
		h.writeServiceError(ctx, w, "revoke identity", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, identity)
}

func (h *Handler) handleGetProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nonce, err := domain.ParseNonce(chi.URLParam(r, "nonce"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	proof, err := h.service.GetProof(ctx, nonce)
	if err != nil {
		h.writeServiceError(ctx, w, "get proof", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, proof)
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := domain.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	identity, err := h.service.GetIdentity(ctx, user)
	if err != nil {
		h.writeServiceError(ctx, w, "get identity", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, identity)
}

func (h *Handler) handleIsWrapped(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := domain.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	wrapped, err := h.service.IsWrapped(ctx, user)
	if err != nil {
		h.writeServiceError(ctx, w, "check wrapped", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, isWrappedResponse{Principal: user, Wrapped: wrapped})
}

func (h *Handler) handleGetOracle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	oracle, err := h.service.Oracle(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "get oracle", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, oracleResponse{Oracle: oracle})
}

// caller reads the authenticated principal injected by the auth middleware.
func (h *Handler) caller(ctx context.Context, w http.ResponseWriter) (domain.Principal, bool) {
	caller := authmw.GetPrincipal(ctx)
	if caller.IsZero() {
		h.logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return caller, true
}

func (h *Handler) warnBadBody(ctx context.Context, op string) {
	h.logger.WarnContext(ctx, "invalid "+op+" request",
		"request_id", request.GetRequestID(ctx),
	)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" refused",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

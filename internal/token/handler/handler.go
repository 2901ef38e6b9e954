// Package handler exposes the soulbound token ledger over HTTP. All routes
// require an authenticated principal. Recipient values pass to the service
// unparsed: the ledger's own gates decide their fate, so refusals surface
// with their frozen numeric kinds instead of generic validation errors.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"soulbind/internal/token/models"
	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	"soulbind/pkg/platform/httputil"
	authmw "soulbind/pkg/platform/middleware/auth"
	request "soulbind/pkg/platform/middleware/request"
)

// Service defines the interface for token ledger operations.
type Service interface {
	Mint(ctx context.Context, caller, recipient domain.Principal, authMethod, extra string) (domain.TokenID, error)
	Burn(ctx context.Context, caller domain.Principal, id domain.TokenID) error
	Transfer(ctx context.Context, caller domain.Principal, id domain.TokenID, recipient domain.Principal) error
	UpdateMetadata(ctx context.Context, caller domain.Principal, id domain.TokenID, extra string) error
	SetTokenStatus(ctx context.Context, caller domain.Principal, id domain.TokenID, status bool) error
	LastTokenID(ctx context.Context) (domain.TokenID, error)
	Owner(ctx context.Context, id domain.TokenID) (domain.Principal, error)
	Metadata(ctx context.Context, id domain.TokenID) (*models.Metadata, error)
	CountByOwner(ctx context.Context, owner domain.Principal) (uint64, error)
	IsOwner(ctx context.Context, id domain.TokenID, principal domain.Principal) (bool, error)
}

// Handler handles token ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator authmw.TokenValidator
}

// New creates a new token Handler.
func New(service Service, validator authmw.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator,
	}
}

// Register mounts the token routes under /tokens and /owners.
func (h *Handler) Register(r chi.Router) {
	tokenRouter := chi.NewRouter()
	tokenRouter.Use(authmw.RequirePrincipal(h.validator, h.logger))
	tokenRouter.Post("/", h.handleMint)
	tokenRouter.Get("/last", h.handleLastTokenID)
	tokenRouter.Get("/{id}", h.handleGetMetadata)
	tokenRouter.Delete("/{id}", h.handleBurn)
	tokenRouter.Post("/{id}/transfer", h.handleTransfer)
	tokenRouter.Put("/{id}/metadata", h.handleUpdateMetadata)
	tokenRouter.Put("/{id}/status", h.handleSetStatus)
	tokenRouter.Get("/{id}/owner", h.handleGetOwner)
	tokenRouter.Get("/{id}/owners/{principal}", h.handleIsOwner)

	ownerRouter := chi.NewRouter()
	ownerRouter.Use(authmw.RequirePrincipal(h.validator, h.logger))
	ownerRouter.Get("/{principal}/count", h.handleCountByOwner)

	r.Mount("/tokens", tokenRouter)
	r.Mount("/owners", ownerRouter)
}

type mintRequest struct {
	Recipient  string `json:"recipient"`
	AuthMethod string `json:"auth_method"`
	Extra      string `json:"extra"`
}

type mintResponse struct {
	TokenID domain.TokenID `json:"token_id"`
}

type transferRequest struct {
	Recipient string `json:"recipient"`
}

type updateMetadataRequest struct {
	Extra string `json:"extra"`
}

type statusRequest struct {
	Status *bool `json:"status"`
}

type metadataResponse struct {
	TokenID    domain.TokenID `json:"token_id"`
	AuthMethod string         `json:"auth_method"`
	Extra      string         `json:"extra"`
	Status     bool           `json:"status"`
	MintedAt   domain.Height  `json:"minted_at"`
}

type ownerResponse struct {
	TokenID domain.TokenID   `json:"token_id"`
	Owner   domain.Principal `json:"owner"`
}

type isOwnerResponse struct {
	TokenID   domain.TokenID   `json:"token_id"`
	Principal domain.Principal `json:"principal"`
	IsOwner   bool             `json:"is_owner"`
}

type countResponse struct {
	Owner domain.Principal `json:"owner"`
	Count uint64           `json:"count"`
}

type lastTokenResponse struct {
	LastTokenID domain.TokenID `json:"last_token_id"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadBody(ctx, "mint")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	tokenID, err := h.service.Mint(ctx, caller, domain.Principal(req.Recipient), req.AuthMethod, req.Extra)
	if err != nil {
		h.writeServiceError(ctx, w, "mint", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, mintResponse{TokenID: tokenID})
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Burn(ctx, caller, id); err != nil {
		h.writeServiceError(ctx, w, "burn", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadBody(ctx, "transfer")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.service.Transfer(ctx, caller, id, domain.Principal(req.Recipient)); err != nil {
		h.writeServiceError(ctx, w, "transfer", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadBody(ctx, "update metadata")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.service.UpdateMetadata(ctx, caller, id, req.Extra); err != nil {
		h.writeServiceError(ctx, w, "update metadata", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	id, err := domain.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == nil {
		h.warnBadBody(ctx, "set status")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "status is required"))
		return
	}

	if err := h.service.SetTokenStatus(ctx, caller, id, *req.Status); err != nil {
		h.writeServiceError(ctx, w, "set status", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLastTokenID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	last, err := h.service.LastTokenID(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "last token id", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, lastTokenResponse{LastTokenID: last})
}

func (h *Handler) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	meta, err := h.service.Metadata(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "get metadata", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, metadataResponse{
		TokenID:    meta.TokenID,
		AuthMethod: meta.AuthMethod,
		Extra:      meta.Extra,
		Status:     meta.Status,
		MintedAt:   meta.MintedAt,
	})
}

func (h *Handler) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	owner, err := h.service.Owner(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "get owner", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ownerResponse{TokenID: id, Owner: owner})
}

func (h *Handler) handleIsOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	principal, err := domain.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	isOwner, err := h.service.IsOwner(ctx, id, principal)
	if err != nil {
		h.writeServiceError(ctx, w, "is owner", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, isOwnerResponse{
		TokenID:   id,
		Principal: principal,
		IsOwner:   isOwner,
	})
}

func (h *Handler) handleCountByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := domain.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	count, err := h.service.CountByOwner(ctx, owner)
	if err != nil {
		h.writeServiceError(ctx, w, "count by owner", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, countResponse{Owner: owner, Count: count})
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

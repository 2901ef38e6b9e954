// Package handler exposes the operator surface: ledger configuration
// endpoints driven by the contract owner's bearer token, and the audit
// event query guarded by the deployment's operator token. Owner checks
// stay in the services; this layer only authenticates and translates.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"soulbind/pkg/domain"
	dErrors "soulbind/pkg/domain-errors"
	audit "soulbind/pkg/platform/audit"
	"soulbind/pkg/platform/httputil"
	adminmw "soulbind/pkg/platform/middleware/admin"
	authmw "soulbind/pkg/platform/middleware/auth"
	request "soulbind/pkg/platform/middleware/request"
)

// defaultEventsLimit bounds the audit query when the caller does not pick
// a limit.
const defaultEventsLimit = 100

// WrapAdmin is the slice of the wrap service the operator surface drives.
type WrapAdmin interface {
	SetOracle(ctx context.Context, caller, newOracle domain.Principal) error
	Oracle(ctx context.Context) (domain.Principal, error)
}

// TokenAdmin is the slice of the token service the operator surface drives.
type TokenAdmin interface {
	SetAuthWrapper(ctx context.Context, caller, wrapper domain.Principal) error
	SetMaxTokens(ctx context.Context, caller domain.Principal, newMax uint64) error
	SetMintFee(ctx context.Context, caller domain.Principal, newFee uint64) error
	ContractOwner(ctx context.Context) (domain.Principal, error)
	AuthWrapper(ctx context.Context) (domain.Principal, error)
	MaxTokens(ctx context.Context) (uint64, error)
	MintFee(ctx context.Context) (uint64, error)
	LastTokenID(ctx context.Context) (domain.TokenID, error)
}

// AuditQuery reads recorded audit events.
type AuditQuery interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
	ListByPrincipal(ctx context.Context, principal domain.Principal) ([]audit.Event, error)
}

// Handler handles operator endpoints.
type Handler struct {
	logger        *slog.Logger
	wrap          WrapAdmin
	tokens        TokenAdmin
	events        AuditQuery
	validator     authmw.TokenValidator
	operatorToken string
}

// New creates a new admin Handler. events may be nil when no audit store
// is configured; the query endpoint then reports unavailable.
func New(wrap WrapAdmin, tokens TokenAdmin, events AuditQuery, validator authmw.TokenValidator, operatorToken string, logger *slog.Logger) *Handler {
	return &Handler{
		logger:        logger,
		wrap:          wrap,
		tokens:        tokens,
		events:        events,
		validator:     validator,
		operatorToken: operatorToken,
	}
}

// Register mounts the configuration routes under /admin and the audit
// query under /audit.
func (h *Handler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(authmw.RequirePrincipal(h.validator, h.logger))
	adminRouter.Put("/oracle", h.handleSetOracle)
	adminRouter.Put("/auth-wrapper", h.handleSetAuthWrapper)
	adminRouter.Put("/max-tokens", h.handleSetMaxTokens)
	adminRouter.Put("/mint-fee", h.handleSetMintFee)
	adminRouter.Get("/config", h.handleGetConfig)

	auditRouter := chi.NewRouter()
	auditRouter.Use(adminmw.RequireOperatorToken(h.operatorToken, h.logger))
	auditRouter.Get("/events", h.handleListEvents)

	r.Mount("/admin", adminRouter)
	r.Mount("/audit", auditRouter)
}

type setOracleRequest struct {
	Oracle string `json:"oracle"`
}

type setAuthWrapperRequest struct {
	AuthWrapper string `json:"auth_wrapper"`
}

type setMaxTokensRequest struct {
	MaxTokens *uint64 `json:"max_tokens"`
}

type setMintFeeRequest struct {
	MintFee *uint64 `json:"mint_fee"`
}

func (h *Handler) handleSetOracle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req setOracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadBody(ctx, "set oracle")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	oracle, err := domain.ParsePrincipal(req.Oracle)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.wrap.SetOracle(ctx, caller, oracle); err != nil {
		h.writeServiceError(ctx, w, "set oracle", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetAuthWrapper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req setAuthWrapperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warnBadBody(ctx, "set auth wrapper")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	wrapper, err := domain.ParsePrincipal(req.AuthWrapper)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.tokens.SetAuthWrapper(ctx, caller, wrapper); err != nil {
		h.writeServiceError(ctx, w, "set auth wrapper", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetMaxTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req setMaxTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MaxTokens == nil {
		h.warnBadBody(ctx, "set max tokens")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "max_tokens is required"))
		return
	}

	if err := h.tokens.SetMaxTokens(ctx, caller, *req.MaxTokens); err != nil {
		h.writeServiceError(ctx, w, "set max tokens", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetMintFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(ctx, w)
	if !ok {
		return
	}

	var req setMintFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MintFee == nil {
		h.warnBadBody(ctx, "set mint fee")
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "mint_fee is required"))
		return
	}

	if err := h.tokens.SetMintFee(ctx, caller, *req.MintFee); err != nil {
		h.writeServiceError(ctx, w, "set mint fee", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := h.tokens.ContractOwner(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "get config", err)
		return
	}
	maxTokens, err := h.tokens.MaxTokens(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "get config", err)
		return
	}
	mintFee, err := h.tokens.MintFee(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "get config", err)
		return
	}
	lastID, err := h.tokens.LastTokenID(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "get config", err)
		return
	}

	resp := ConfigResponse{
		ContractOwner: owner,
		MaxTokens:     maxTokens,
		MintFee:       mintFee,
		LastTokenID:   lastID,
	}

	// The optional authorities read as coded refusals while unset; the
	// config view renders that as absence, not failure.
	if oracle, err := h.wrap.Oracle(ctx); err == nil {
		resp.Oracle = &oracle
	} else if !dErrors.HasCode(err, dErrors.CodeOracleNotSet) {
		h.writeServiceError(ctx, w, "get config", err)
		return
	}
	if wrapper, err := h.tokens.AuthWrapper(ctx); err == nil {
		resp.AuthWrapper = &wrapper
	} else if !dErrors.HasCode(err, dErrors.CodeAuthWrapperNotSet) {
		h.writeServiceError(ctx, w, "get config", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.events == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "audit store is not configured"))
		return
	}

	if principalRaw := r.URL.Query().Get("principal"); principalRaw != "" {
		principal, err := domain.ParsePrincipal(principalRaw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		events, err := h.events.ListByPrincipal(ctx, principal)
		if err != nil {
			h.writeServiceError(ctx, w, "list events", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toEventsListResponse(events))
		return
	}

	limit := defaultEventsLimit
	if limitRaw := r.URL.Query().Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := h.events.ListRecent(ctx, limit)
	if err != nil {
		h.writeServiceError(ctx, w, "list events", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventsListResponse(events))
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

package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soulbind/internal/chain"
	"soulbind/internal/settlement"
	"soulbind/internal/state"
	tokenservice "soulbind/internal/token/service"
	wrapservice "soulbind/internal/wrap/service"
	"soulbind/pkg/platform/audit/publisher"
	auditmem "soulbind/pkg/platform/audit/store/memory"
	authmw "soulbind/pkg/platform/middleware/auth"
)

const (
	testOwner         = "contract-owner"
	testAlice         = "alice"
	testOperatorToken = "operator-secret"
)

// stubValidator treats the bearer token itself as the principal, so tests
// authenticate by sending "Authorization: Bearer <principal>".
type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*authmw.Claims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	return &authmw.Claims{Principal: token, TokenID: "jti-" + token}, nil
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	store := state.NewMemory(state.Genesis{
		ContractOwner: testOwner,
		MaxTokens:     100,
		MintFee:       5,
	})
	auditStore := auditmem.NewInMemoryStore()
	events := publisher.NewPublisher(auditStore)
	heights := chain.NewManual(1000)

	wrapSvc := wrapservice.New(store, heights, wrapservice.WithAuditPublisher(events))
	tokenSvc := tokenservice.New(store, heights, &settlement.Mock{}, tokenservice.WithAuditPublisher(events))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(wrapSvc, tokenSvc, auditStore, stubValidator{}, testOperatorToken, logger).Register(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleSetOracle(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/oracle", testOwner, map[string]any{
		"oracle": "oracle-1",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/admin/config", testOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "oracle-1", decodeBody(t, w)["oracle"])
}

func TestHandleSetOracle_NotOwner(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/oracle", testAlice, map[string]any{
		"oracle": "oracle-1",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "unauthorized", resp["error"])
	assert.EqualValues(t, 100, resp["code"])
}

func TestHandleSetOracle_InvalidPrincipal(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/oracle", testOwner, map[string]any{
		"oracle": "",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decodeBody(t, w)["error"])
}

func TestHandleSetAuthWrapper(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/auth-wrapper", testOwner, map[string]any{
		"auth_wrapper": "fee-sink",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// The settlement authority is set-once.
	w = doJSON(t, r, http.MethodPut, "/admin/auth-wrapper", testOwner, map[string]any{
		"auth_wrapper": "other-sink",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.EqualValues(t, 208, decodeBody(t, w)["code"])
}

func TestHandleSetMaxTokens(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/max-tokens", testOwner, map[string]any{
		"max_tokens": 50,
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/admin/config", testOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 50, decodeBody(t, w)["max_tokens"])
}

func TestHandleSetMaxTokens_MissingValue(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/max-tokens", testOwner, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decodeBody(t, w)["error"])
}

func TestHandleSetMintFee(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/mint-fee", testOwner, map[string]any{
		"mint_fee": 25,
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/admin/config", testOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 25, decodeBody(t, w)["mint_fee"])
}

func TestHandleGetConfig_FreshLedger(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/admin/config", testAlice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody(t, w)
	assert.Equal(t, testOwner, resp["contract_owner"])
	assert.EqualValues(t, 100, resp["max_tokens"])
	assert.EqualValues(t, 5, resp["mint_fee"])
	assert.EqualValues(t, 0, resp["last_token_id"])
	assert.NotContains(t, resp, "oracle")
	assert.NotContains(t, resp, "auth_wrapper")
}

func TestHandleListEvents_RequiresOperatorToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/audit/events", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/audit/events", nil)
	req.Header.Set("X-Operator-Token", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleListEvents(t *testing.T) {
	r := newTestRouter(t)

	// Drive a mutation so the log has something in it.
	w := doJSON(t, r, http.MethodPut, "/admin/oracle", testOwner, map[string]any{
		"oracle": "oracle-1",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/audit/events", nil)
	req.Header.Set("X-Operator-Token", testOperatorToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	require.EqualValues(t, 1, resp["total"])

	event := resp["events"].([]any)[0].(map[string]any)
	assert.Equal(t, "oracle_rotated", event["action"])
	assert.Equal(t, "security", event["category"])
	assert.Equal(t, "oracle-1", event["principal"])
	assert.Equal(t, testOwner, event["actor_id"])
	assert.EqualValues(t, 1000, event["height"])
}

func TestHandleListEvents_ByPrincipal(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/admin/oracle", testOwner, map[string]any{
		"oracle": "oracle-1",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/audit/events?principal=oracle-1", nil)
	req.Header.Set("X-Operator-Token", testOperatorToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decodeBody(t, w)["total"])

	req = httptest.NewRequest(http.MethodGet, "/audit/events?principal=nobody", nil)
	req.Header.Set("X-Operator-Token", testOperatorToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decodeBody(t, w)["total"])
}

func TestHandleListEvents_InvalidLimit(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/audit/events?limit=-3", nil)
	req.Header.Set("X-Operator-Token", testOperatorToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decodeBody(t, w)["error"])
}

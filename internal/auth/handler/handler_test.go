package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "soulbind/internal/auth/service"
	jwttoken "soulbind/internal/jwt_token"
	"soulbind/pkg/secrets"
)

const testSecret = "bootstrap-secret"

func newTestRouter(t *testing.T) (chi.Router, *jwttoken.Service) {
	t.Helper()
	hash, err := secrets.Hash(testSecret)
	require.NoError(t, err)

	jwtService := jwttoken.New("test-signing-key", "test-issuer", "test-audience")
	svc := authservice.New(hash, jwtService, 15*time.Minute)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r, jwtService
}

func postToken(t *testing.T, r chi.Router, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleIssueToken(t *testing.T) {
	r, jwtService := newTestRouter(t)

	w := postToken(t, r, map[string]string{"principal": "alice", "secret": testSecret})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp["token_type"])
	assert.EqualValues(t, 900, resp["expires_in"])

	claims, err := jwtService.ValidateToken(resp["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestHandleIssueToken_WrongSecret(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postToken(t, r, map[string]string{"principal": "alice", "secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unauthenticated", resp["error"])
}

func TestHandleIssueToken_InvalidPrincipal(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postToken(t, r, map[string]string{"principal": "", "secret": testSecret})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_input", resp["error"])
}

func TestHandleIssueToken_MalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bad_request", resp["error"])
}

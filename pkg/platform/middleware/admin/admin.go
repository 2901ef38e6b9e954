package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "soulbind/pkg/platform/middleware/request"
)

// RequireOperatorToken guards operator-only surfaces (audit queries, debug
// endpoints) with a shared token. This is separate from ledger
// authorization: contract-owner checks live in the domain, operator access
// is deployment plumbing. An empty expected token disables the surface.
func RequireOperatorToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Operator-Token")
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "operator token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated","error_description":"operator token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

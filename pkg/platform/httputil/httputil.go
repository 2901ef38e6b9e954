// Package httputil centralizes JSON response encoding for handlers so the
// error envelope stays consistent across the API surface.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "soulbind/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope. Ledger failures additionally
// carry their frozen numeric identifier in Code.
type ErrorResponse struct {
	Error       string  `json:"error"`
	Description string  `json:"error_description,omitempty"`
	Code        *uint32 `json:"code,omitempty"`
}

// WriteJSON encodes v with the given status. Encoding failures are
// unrecoverable at this point; headers are already written.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a coded error into the JSON error envelope.
// Internal errors redact the description so infrastructure details never
// leak to callers; everything else surfaces its coded message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.GetCode(err)
	resp := ErrorResponse{Error: wireName(code)}

	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			resp.Description = de.Message
		} else {
			resp.Description = err.Error()
		}
	}

	if n, ok := dErrors.NumericOf(code); ok {
		resp.Code = &n
	}

	WriteJSON(w, dErrors.HTTPStatusOf(code), resp)
}

// wireName keeps the historical wire spelling for the internal code.
func wireName(code dErrors.Code) string {
	if code == dErrors.CodeInternal {
		return "internal_error"
	}
	return string(code)
}

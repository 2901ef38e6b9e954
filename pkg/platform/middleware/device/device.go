// Package device derives a coarse device label from the User-Agent for
// audit enrichment. The label is descriptive only; it never participates in
// authorization.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"soulbind/pkg/requestcontext"
)

// Middleware parses the User-Agent into a "browser/os" label and stores it
// in the context. Unknown or absent agents label as "unknown"; bots keep
// their bot name so audit trails distinguish automation.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := Label(r.Header.Get("User-Agent"))
		ctx := requestcontext.WithDevice(r.Context(), label)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Label condenses a raw User-Agent into a stable, low-cardinality label.
func Label(rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return "unknown"
	}

	ua := useragent.New(rawUA)
	if ua.Bot() {
		if name, _ := ua.Browser(); name != "" {
			return "bot/" + strings.ToLower(name)
		}
		return "bot"
	}

	name, _ := ua.Browser()
	os := ua.OS()
	switch {
	case name != "" && os != "":
		return strings.ToLower(name) + "/" + strings.ToLower(os)
	case name != "":
		return strings.ToLower(name)
	case os != "":
		return strings.ToLower(os)
	default:
		return "unknown"
	}
}

// Package secretauth implements the shared-secret authentication used
// on mutating intra-cluster HTTP calls (spec.md §6: routes marked 🔒
// require a matching secret). Nodes, distributors, and queues configured
// with the same secret trust each other; everyone else gets 401.
package secretauth

import (
	"net/http"

	"github.com/stacklok/gridcore/pkg/errors"
)

// HeaderName is the header carrying the shared secret on intra-cluster
// HTTP calls. Events carry their secret in a struct field instead (see
// Check).
const HeaderName = "X-Grid-Secret"

// Middleware returns a chi-compatible HTTP middleware that rejects any
// request whose HeaderName value does not equal secret. An empty
// secret disables the check entirely (single-tenant / dev mode).
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(HeaderName) != secret {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized_secret","message":"missing or invalid shared secret"}`))
}

// Check validates got against want outside of an HTTP middleware chain,
// for components (event handlers, the distributor's registration path)
// that receive a secret on a non-HTTP channel.
func Check(want, got string) error {
	if want == "" {
		return nil
	}
	if got != want {
		return errors.NewUnauthorizedSecretError("invalid shared secret", nil)
	}
	return nil
}

// SetHeader attaches the shared secret to an outgoing request, if non-empty.
func SetHeader(r *http.Request, secret string) {
	if secret != "" {
		r.Header.Set(HeaderName, secret)
	}
}

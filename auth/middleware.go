package auth

import (
	"context"
	"net/http"
)

// Header carries the API key.
const Header = "apikey"

type keyCtx struct{}

// KeyFromContext returns the API key of an authorized request.
func KeyFromContext(ctx context.Context) (string, bool) {
	k, ok := ctx.Value(keyCtx{}).(string)

	return k, ok && k != ""
}

// Middleware refuses requests whose key a does not authorize with a 401 and the reason as body. Authorized requests
// carry their key in their context.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vals := r.Header.Values(Header)

			var key string
			if len(vals) > 0 {
				key = vals[0]
			}

			res := a.ValidateAPIKey(r.Context(), key, len(vals) > 0)
			if !res.Authorized {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(res.Reason))

				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyCtx{}, res.Key)))
		})
	}
}

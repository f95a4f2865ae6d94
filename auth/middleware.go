package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey struct{}

// WithClaims returns a context carrying the authenticated claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the authenticated claims, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// UserID returns the authenticated user id, or 0.
func UserID(ctx context.Context) int64 {
	if c, ok := FromContext(ctx); ok {
		return c.UserID
	}
	return 0
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Require wraps next so that it only runs for requests carrying a valid
// access token, either as a bearer header or, for WebSocket upgrades, a
// token query parameter. Other requests get a 401 JSON error.
func (i *Issuer) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)
		if raw == "" {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			writeUnauthorized(w, "Authentication credentials were not provided.")
			return
		}
		claims, err := i.Verify(raw, TokenAccess)
		if err != nil {
			writeUnauthorized(w, "Given token not valid for any token type")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireFunc is Require for handler functions.
func (i *Issuer) RequireFunc(next http.HandlerFunc) http.Handler {
	return i.Require(next)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

package mw

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/markd/internal/identity"
	"github.com/MrSnakeDoc/markd/internal/logger"
)

type ownerKey struct{}

// Authenticate rejects requests without a valid bearer token and stores the
// token's owner id in the request context.
func Authenticate(v deps.Verifier, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := identity.BearerToken(r.Header.Get("Authorization"))
			if err == nil {
				var owner string
				owner, err = v.Verify(token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
					return
				}
			}
			log.Debug("unauthenticated request",
				logger.String("path", r.URL.Path),
				logger.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="markd"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
		})
	}
}

// WithOwner returns ctx carrying an authenticated owner id.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the authenticated owner id, or "".
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

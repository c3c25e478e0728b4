package middleware

import (
	"net/http"

	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/http/respond"
)

// RequireCaller resolves the caller and rejects the request with 401 when
// resolution fails.
func RequireCaller(resolver auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				respond.Error(w, http.StatusUnauthorized, "authentication not configured")
				return
			}
			caller, err := resolver.ResolveCaller(r)
			if err != nil || caller.ID == "" {
				respond.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}

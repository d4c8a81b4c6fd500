package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/brandbeam/brandbeam/internal/store"
	"github.com/brandbeam/brandbeam/pkg/models"
)

type contextKey string

// principalKey is the context key for the authenticated principal.
const principalKey contextKey = "principal"

// Auth resolves the opaque bearer token to a principal via the principal
// store and places it in the request context. Session issuance itself is
// owned by an external collaborator; this middleware only consumes tokens.
//
// Public paths (/health, /version) skip authentication.
type Auth struct {
	store store.Store
}

// NewAuth creates the auth middleware backed by the principal store.
func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Handler returns the http.Handler middleware enforcing authentication.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		if token == "" {
			respondUnauthorized(w, "Bearer token required.")
			return
		}

		principal, err := a.store.GetPrincipalByToken(r.Context(), token)
		if err != nil {
			log.Debug().Str("path", r.URL.Path).Msg("Token resolution failed")
			respondUnauthorized(w, "Invalid token.")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal retrieves the authenticated principal from the context.
// Nil means the request was not authenticated (public path).
func GetPrincipal(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalKey).(*models.Principal)
	return p
}

func extractBearer(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version":
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="brandbeam"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}

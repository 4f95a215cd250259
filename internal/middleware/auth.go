package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/clinovia/labrisk/internal/domain/tenants"
)

type contextKey string

const (
	UserKey  contextKey = "user"
	TokenKey contextKey = "token"
)

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*tenants.User, error)
}

// openPaths need no session: liveness probes and the auth endpoints
// that mint sessions in the first place.
var openPaths = map[string]bool{
	"/health":           true,
	"/ready":            true,
	"/live":             true,
	"/metrics":          true,
	"/v1/auth/register": true,
	"/v1/auth/login":    true,
}

// SessionAuth validates the Bearer session token and stores the
// authenticated user in the request context.
func SessionAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Support both "Bearer <token>" and "<token>" formats
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, tenants.ErrInvalidCredentials) || errors.Is(err, tenants.ErrNotFound) {
					http.Error(w, "invalid or expired session", http.StatusUnauthorized)
					return
				}
				http.Error(w, "authentication unavailable", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			ctx = context.WithValue(ctx, TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext extracts the authenticated user from context.
func UserFromContext(ctx context.Context) *tenants.User {
	if user, ok := ctx.Value(UserKey).(*tenants.User); ok {
		return user
	}
	return nil
}

// TokenFromContext extracts the raw session token from context.
func TokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(TokenKey).(string); ok {
		return token
	}
	return ""
}

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

type claimsContextKey struct{}

// ClaimsFromContext extracts validated token claims from context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}

// Middleware guards routes with bearer-token authentication and role
// checks.
type Middleware struct {
	logger   *slog.Logger
	tokens   *TokenManager
	denylist *Denylist
}

// NewMiddleware constructs the auth middleware.
func NewMiddleware(logger *slog.Logger, tokens *TokenManager, denylist *Denylist) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{logger: logger, tokens: tokens, denylist: denylist}
}

// RequireAuth validates the bearer token and places the actor in
// context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.Error(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := m.tokens.Parse(token)
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if m.denylist.IsRevoked(r.Context(), claims.ID) {
			httpx.Error(w, http.StatusUnauthorized, "token has been revoked")
			return
		}

		memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "invalid token subject")
			return
		}

		actor := shared.Actor{ID: memberID, Name: claims.Name, Role: claims.Role}
		ctx := shared.ContextWithActor(r.Context(), actor)
		ctx = context.WithValue(ctx, claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only actors holding one of the given roles. It
// must be mounted after RequireAuth.
func (m *Middleware) RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	allowed := make(map[shared.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				httpx.Error(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/httpx"
)

type contextKey struct{}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok && c != nil
}

type Middleware struct {
	tokens *TokenManager
	logger *slog.Logger
}

func NewMiddleware(tokens *TokenManager, logger *slog.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// Authenticate requires a valid bearer token: 401 when it is missing, 403
// when it does not verify.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpx.WriteError(m.logger, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := m.tokens.Verify(raw)
		if err != nil {
			m.logger.Debug("rejected bearer token", "error", err)
			httpx.WriteError(m.logger, w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireVerified lets through users with a verified email or phone.
func (m *Middleware) RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			httpx.WriteError(m.logger, w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !claims.Verified() {
			httpx.WriteError(m.logger, w, http.StatusForbidden,
				"forbidden: please verify your email or phone number to perform this action")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok || claims.Role != domain.RoleAdmin {
			httpx.WriteError(m.logger, w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

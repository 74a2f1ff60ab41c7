package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/shared"
)

// PrincipalLoader resolves a user id into the current principal.
type PrincipalLoader interface {
	FindPrincipal(ctx context.Context, id string) (shared.Principal, error)
}

// Middleware wires authentication and role checks for HTTP handlers.
type Middleware struct {
	Users  PrincipalLoader
	Tokens *shared.TokenManager
	Logger *slog.Logger
}

// Authenticate attaches the principal identified by a bearer token or the
// session cookie. Requests without credentials pass through anonymous;
// accounts that may not sign in are treated as anonymous too.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := ""
		if raw, ok := BearerToken(r); ok {
			claims, err := m.Tokens.Parse(raw)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			userID = claims.Subject
		} else if sess := shared.SessionFromContext(r.Context()); sess != nil {
			userID = strings.TrimSpace(sess.User())
		}
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.Users.FindPrincipal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("rbac load principal", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		if !p.Status.CanSignIn() {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireAuth rejects anonymous requests with 401.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles rejects anonymous requests with 401 and principals holding
// none of roles with 403.
func (m Middleware) RequireRoles(roles ...shared.Role) func(http.Handler) http.Handler {
	allowed := make(map[shared.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				if m.Logger != nil {
					m.Logger.Warn("rbac role denied", slog.String("user_id", p.ID), slog.String("role", string(p.Role)), slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

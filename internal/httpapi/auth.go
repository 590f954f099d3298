package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"smartq/queue-service/internal/store"
)

// Roles allowed to use the staff endpoints.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (store.Session, error)
}

type authContextKey struct{}

// AuthMiddleware requires a staff session on every non-public endpoint.
// Sessions are issued by the auth service; this only looks them up.
func AuthMiddleware(sessions SessionLookup, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := sessions.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if session.Role != RoleStaff && session.Role != RoleAdmin {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "staff session required")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	session, ok := ctx.Value(authContextKey{}).(store.Session)
	return session, ok
}

func staffID(r *http.Request) string {
	if session, ok := sessionFromContext(r.Context()); ok {
		return session.UserID
	}
	return ""
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	return !strings.HasPrefix(r.URL.Path, "/api/admin/")
}

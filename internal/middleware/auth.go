package middleware

import (
	"context"
	"net/http"

	"github.com/klumsiland/chat-server/internal/audit"
	"github.com/klumsiland/chat-server/internal/model"
)

// AdminTokenHeader carries the admin session token on every admin route.
const AdminTokenHeader = "x-admin-token"

type contextKey string

const (
	AdminSessionContextKey contextKey = "adminSession"
	AdminTokenContextKey   contextKey = "adminToken"
)

func GetAdminSession(ctx context.Context) *model.AdminSession {
	if session, ok := ctx.Value(AdminSessionContextKey).(*model.AdminSession); ok {
		return session
	}
	return nil
}

// GetAdminToken returns the raw admin token the request was authenticated with.
func GetAdminToken(ctx context.Context) string {
	if token, ok := ctx.Value(AdminTokenContextKey).(string); ok {
		return token
	}
	return ""
}

type AdminAuthenticator interface {
	AuthenticateAdmin(ctx context.Context, token string) (*model.AdminSession, error)
}

// AdminGateway guards every admin route: the x-admin-token header must resolve
// to an active admin session. EventSource clients pass ?adminToken= instead.
type AdminGateway struct {
	auth AdminAuthenticator
}

func NewAdminGateway(auth AdminAuthenticator) *AdminGateway {
	return &AdminGateway{auth: auth}
}

func (m *AdminGateway) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AdminTokenHeader)
		if token == "" {
			token = r.URL.Query().Get("adminToken")
		}

		session, err := m.auth.AuthenticateAdmin(r.Context(), token)
		if err != nil {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path, "scope": "admin"},
			})
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), AdminSessionContextKey, session)
		ctx = context.WithValue(ctx, AdminTokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

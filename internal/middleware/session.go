package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/klumsiland/chat-server/internal/model"
)

// SessionTokenHeader carries the chat session token.
const SessionTokenHeader = "x-session-token"

const (
	ChatSessionContextKey  contextKey = "chatSession"
	SessionTokenContextKey contextKey = "sessionToken"
)

func GetChatSession(ctx context.Context) *model.ChatSession {
	if session, ok := ctx.Value(ChatSessionContextKey).(*model.ChatSession); ok {
		return session
	}
	return nil
}

func GetSessionToken(ctx context.Context) string {
	if token, ok := ctx.Value(SessionTokenContextKey).(string); ok {
		return token
	}
	return ""
}

type SessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, token string) (*model.ChatSession, error)
}

// SessionMiddleware admits requests that carry the token of an active chat session.
type SessionMiddleware struct {
	auth SessionAuthenticator
}

func NewSessionMiddleware(auth SessionAuthenticator) *SessionMiddleware {
	return &SessionMiddleware{auth: auth}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractSessionToken(r)

		session, err := m.auth.AuthenticateSession(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ChatSessionContextKey, session)
		ctx = context.WithValue(ctx, SessionTokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractSessionToken(r *http.Request) string {
	if token := r.Header.Get(SessionTokenHeader); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}

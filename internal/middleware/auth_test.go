package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/model"
)

type mockAdminAuth struct {
	authenticateFunc func(ctx context.Context, token string) (*model.AdminSession, error)
	calls            []string
}

func (m *mockAdminAuth) AuthenticateAdmin(ctx context.Context, token string) (*model.AdminSession, error) {
	m.calls = append(m.calls, token)
	return m.authenticateFunc(ctx, token)
}

func acceptAdmin(valid string) *mockAdminAuth {
	return &mockAdminAuth{authenticateFunc: func(ctx context.Context, token string) (*model.AdminSession, error) {
		if token == "" {
			return nil, apperrors.Unauthorized("Admin token required")
		}
		if token != valid {
			return nil, apperrors.Unauthorized("Invalid admin session")
		}
		return &model.AdminSession{ID: "admin-1", Active: true}, nil
	}}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAdminGateway(t *testing.T) {
	var gotSession *model.AdminSession
	var gotToken string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSession = GetAdminSession(r.Context())
		gotToken = GetAdminToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid header passes session and token on", func(t *testing.T) {
		auth := acceptAdmin("ADM1")
		handler := NewAdminGateway(auth).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/codes", nil)
		req.Header.Set(AdminTokenHeader, "ADM1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotSession)
		assert.Equal(t, "admin-1", gotSession.ID)
		assert.Equal(t, "ADM1", gotToken)
	})

	t.Run("query token for event streams", func(t *testing.T) {
		handler := NewAdminGateway(acceptAdmin("ADM1")).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions/x/events?adminToken=ADM1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	for name, token := range map[string]string{"missing": "", "unknown": "nope"} {
		t.Run(name+" token is rejected", func(t *testing.T) {
			called := false
			handler := NewAdminGateway(acceptAdmin("ADM1")).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/admin/generate-code", nil)
			if token != "" {
				req.Header.Set(AdminTokenHeader, token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "UNAUTHORIZED", body["errorCode"])
		})
	}

	t.Run("store failure is 500", func(t *testing.T) {
		auth := &mockAdminAuth{authenticateFunc: func(ctx context.Context, token string) (*model.AdminSession, error) {
			return nil, apperrors.Database(assert.AnError)
		}}
		handler := NewAdminGateway(auth).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/status", nil)
		req.Header.Set(AdminTokenHeader, "ADM1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetAdminSession_Empty(t *testing.T) {
	assert.Nil(t, GetAdminSession(context.Background()))
	assert.Empty(t, GetAdminToken(context.Background()))
}

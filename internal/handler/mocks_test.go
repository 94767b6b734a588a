package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/service"
)

type mockAccess struct {
	redeemAccess func(ctx context.Context, code string) (string, error)
	redeemAdmin  func(ctx context.Context, code string) (string, error)
	validate     func(ctx context.Context, token string) (bool, error)
	end          func(ctx context.Context, token string) error
	endAdmin     func(ctx context.Context, token string) error
	issue        func(ctx context.Context, adminToken, adminKey string) (*model.AccessCode, error)
	deactivate   func(ctx context.Context, code string) error
	listCodes    func(ctx context.Context, limit, offset int) ([]model.AccessCode, int, error)
	listSessions func(ctx context.Context, limit, offset int) ([]model.ChatSession, int, error)
	listAdmins   func(ctx context.Context, limit, offset int) ([]model.AdminSession, int, error)
	findSession  func(ctx context.Context, id string) (*model.ChatSession, error)
	stats        func(ctx context.Context) (*model.Stats, error)
}

func (m *mockAccess) RedeemAccessCode(ctx context.Context, code string) (string, error) {
	return m.redeemAccess(ctx, code)
}

func (m *mockAccess) RedeemAdminCode(ctx context.Context, code string) (string, error) {
	return m.redeemAdmin(ctx, code)
}

func (m *mockAccess) ValidateSession(ctx context.Context, token string) (bool, error) {
	return m.validate(ctx, token)
}

func (m *mockAccess) EndSession(ctx context.Context, token string) error {
	return m.end(ctx, token)
}

func (m *mockAccess) EndAdminSession(ctx context.Context, token string) error {
	return m.endAdmin(ctx, token)
}

func (m *mockAccess) IssueAccessCode(ctx context.Context, adminToken, adminKey string) (*model.AccessCode, error) {
	return m.issue(ctx, adminToken, adminKey)
}

func (m *mockAccess) DeactivateCode(ctx context.Context, code string) error {
	return m.deactivate(ctx, code)
}

func (m *mockAccess) ListCodes(ctx context.Context, limit, offset int) ([]model.AccessCode, int, error) {
	return m.listCodes(ctx, limit, offset)
}

func (m *mockAccess) ListSessions(ctx context.Context, limit, offset int) ([]model.ChatSession, int, error) {
	return m.listSessions(ctx, limit, offset)
}

func (m *mockAccess) ListAdminSessions(ctx context.Context, limit, offset int) ([]model.AdminSession, int, error) {
	return m.listAdmins(ctx, limit, offset)
}

func (m *mockAccess) FindSession(ctx context.Context, id string) (*model.ChatSession, error) {
	return m.findSession(ctx, id)
}

func (m *mockAccess) GetStats(ctx context.Context) (*model.Stats, error) {
	return m.stats(ctx)
}

type mockChat struct {
	sendAsUser   func(ctx context.Context, session *model.ChatSession, params service.SendMessageParams) (*model.Message, error)
	sendAsKlum   func(ctx context.Context, sessionID string, params service.SendMessageParams) (*model.Message, error)
	list         func(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error)
	listForAdmin func(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error)
}

func (m *mockChat) SendAsUser(ctx context.Context, session *model.ChatSession, params service.SendMessageParams) (*model.Message, error) {
	return m.sendAsUser(ctx, session, params)
}

func (m *mockChat) SendAsKlum(ctx context.Context, sessionID string, params service.SendMessageParams) (*model.Message, error) {
	return m.sendAsKlum(ctx, sessionID, params)
}

func (m *mockChat) List(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error) {
	return m.list(ctx, sessionID, limit, offset)
}

func (m *mockChat) ListForAdmin(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error) {
	return m.listForAdmin(ctx, sessionID, limit, offset)
}

type mockPresence struct {
	setKlum func(ctx context.Context, online bool) error
	setUser func(ctx context.Context, sessionID string, online bool, displayName string) error
	status  func(ctx context.Context) (*model.ChatStatus, error)
}

func (m *mockPresence) SetKlum(ctx context.Context, online bool) error {
	return m.setKlum(ctx, online)
}

func (m *mockPresence) SetUser(ctx context.Context, sessionID string, online bool, displayName string) error {
	return m.setUser(ctx, sessionID, online, displayName)
}

func (m *mockPresence) Status(ctx context.Context) (*model.ChatStatus, error) {
	return m.status(ctx)
}

type mockStory struct {
	story     func(ctx context.Context, sessionID, era, year string) (string, error)
	image     func(ctx context.Context, era string, characters []string, scene string) (string, error)
	suggest   func(ctx context.Context, sessionID string, params service.SuggestParams) (string, error)
	translate func(ctx context.Context, text, language string) (string, error)
}

func (m *mockStory) GenerateStory(ctx context.Context, sessionID, era, year string) (string, error) {
	return m.story(ctx, sessionID, era, year)
}

func (m *mockStory) GenerateImage(ctx context.Context, era string, characters []string, scene string) (string, error) {
	return m.image(ctx, era, characters, scene)
}

func (m *mockStory) Suggest(ctx context.Context, sessionID string, params service.SuggestParams) (string, error) {
	return m.suggest(ctx, sessionID, params)
}

func (m *mockStory) Translate(ctx context.Context, text, language string) (string, error) {
	return m.translate(ctx, text, language)
}

func passThrough(next http.Handler) http.Handler {
	return next
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec, resp
}

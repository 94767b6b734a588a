package handler

import (
	"context"

	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/service"
	"github.com/klumsiland/chat-server/internal/sse"
)

// The interfaces below are implemented by the services in internal/service.

type AccessManager interface {
	RedeemAccessCode(ctx context.Context, code string) (string, error)
	RedeemAdminCode(ctx context.Context, code string) (string, error)
	ValidateSession(ctx context.Context, token string) (bool, error)
	EndSession(ctx context.Context, token string) error
	EndAdminSession(ctx context.Context, token string) error
	IssueAccessCode(ctx context.Context, adminToken, adminKey string) (*model.AccessCode, error)
	DeactivateCode(ctx context.Context, code string) error
	ListCodes(ctx context.Context, limit, offset int) ([]model.AccessCode, int, error)
	ListSessions(ctx context.Context, limit, offset int) ([]model.ChatSession, int, error)
	ListAdminSessions(ctx context.Context, limit, offset int) ([]model.AdminSession, int, error)
	FindSession(ctx context.Context, id string) (*model.ChatSession, error)
	GetStats(ctx context.Context) (*model.Stats, error)
}

type ChatManager interface {
	SendAsUser(ctx context.Context, session *model.ChatSession, params service.SendMessageParams) (*model.Message, error)
	SendAsKlum(ctx context.Context, sessionID string, params service.SendMessageParams) (*model.Message, error)
	List(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error)
	ListForAdmin(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error)
}

type PresenceManager interface {
	SetKlum(ctx context.Context, online bool) error
	SetUser(ctx context.Context, sessionID string, online bool, displayName string) error
	Status(ctx context.Context) (*model.ChatStatus, error)
}

type StoryTeller interface {
	GenerateStory(ctx context.Context, sessionID, era, year string) (string, error)
	GenerateImage(ctx context.Context, era string, characters []string, scene string) (string, error)
	Suggest(ctx context.Context, sessionID string, params service.SuggestParams) (string, error)
	Translate(ctx context.Context, text, language string) (string, error)
}

type Subscriber interface {
	Subscribe(topics ...string) *sse.Client
	Unsubscribe(client *sse.Client)
}

var (
	_ AccessManager   = (*service.AccessService)(nil)
	_ ChatManager     = (*service.ChatService)(nil)
	_ PresenceManager = (*service.PresenceService)(nil)
	_ StoryTeller     = (*service.StoryService)(nil)
	_ Subscriber      = (*sse.Broker)(nil)
)

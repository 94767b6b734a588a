package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/config"
	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/repository"
	"github.com/klumsiland/chat-server/internal/sse"
	"github.com/klumsiland/chat-server/internal/util"
)

// DefaultUserSender is used when a visitor sends a message without a display name.
const DefaultUserSender = "Guest"

type SendMessageParams struct {
	Sender      string  `json:"sender"`
	Content     string  `json:"content"`
	IsVoice     bool    `json:"isVoice"`
	IsImage     bool    `json:"isImage"`
	IsRolePlay  bool    `json:"isRolePlay"`
	Character   *string `json:"character,omitempty"`
	AIGenerated bool    `json:"aiGenerated"`
}

// ChatService stores messages of a chat session and pushes them to listeners.
type ChatService struct {
	sessionRepo repository.ChatSessionRepository
	messageRepo repository.MessageRepository
	publisher   EventPublisher
}

func NewChatService(
	sessionRepo repository.ChatSessionRepository,
	messageRepo repository.MessageRepository,
	publisher EventPublisher,
) *ChatService {
	return &ChatService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		publisher:   publisher,
	}
}

// SendAsUser posts a message from the visitor owning session.
func (s *ChatService) SendAsUser(ctx context.Context, session *model.ChatSession, params SendMessageParams) (*model.Message, error) {
	sender := strings.TrimSpace(params.Sender)
	if sender == "" {
		sender = DefaultUserSender
	}
	if strings.EqualFold(sender, model.KlumSender) {
		return nil, apperrors.InvalidInput("sender", "name is reserved")
	}
	params.Sender = sender
	return s.send(ctx, session, params)
}

// SendAsKlum posts a message from the admin persona into the session with the given id.
func (s *ChatService) SendAsKlum(ctx context.Context, sessionID string, params SendMessageParams) (*model.Message, error) {
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	params.Sender = model.KlumSender
	return s.send(ctx, session, params)
}

// List returns messages of a session, oldest first.
func (s *ChatService) List(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error) {
	messages, err := s.messageRepo.FindBySessionID(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.messageRepo.CountBySessionID(ctx, sessionID)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return messages, total, nil
}

// ListForAdmin is List for an admin looking at a session by id.
func (s *ChatService) ListForAdmin(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, int, error) {
	if _, err := s.findSessionAnyState(ctx, sessionID); err != nil {
		return nil, 0, err
	}
	return s.List(ctx, sessionID, limit, offset)
}

// Recent returns the last n messages of a session, oldest first.
func (s *ChatService) Recent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	messages, err := s.messageRepo.FindRecent(ctx, sessionID, n)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return messages, nil
}

func (s *ChatService) send(ctx context.Context, session *model.ChatSession, params SendMessageParams) (*model.Message, error) {
	if !session.Active {
		return nil, apperrors.InvalidSession()
	}
	if err := validateMessage(&params); err != nil {
		return nil, err
	}

	msg, err := s.messageRepo.Create(ctx, model.CreateMessageParams{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		Sender:      params.Sender,
		Content:     params.Content,
		IsVoice:     params.IsVoice,
		IsImage:     params.IsImage,
		IsRolePlay:  params.IsRolePlay,
		Character:   params.Character,
		AIGenerated: params.AIGenerated,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if err := s.sessionRepo.Touch(ctx, session.ID); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to update session activity")
	}

	log.Debug().
		Str("messageId", msg.ID).
		Str("sessionId", session.ID).
		Str("sender", msg.Sender).
		Msg("message stored")

	publishEvent(ctx, s.publisher, model.EventMessage, msg, session.ID, sse.LobbyTopic)
	return msg, nil
}

func (s *ChatService) findSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	session, err := s.findSessionAnyState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, apperrors.Conflict("Session has ended")
	}
	return session, nil
}

func (s *ChatService) findSessionAnyState(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	if !util.IsValidUUID(sessionID) {
		return nil, apperrors.InvalidInput("id", "must be a UUID")
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

func validateMessage(params *SendMessageParams) error {
	params.Content = strings.TrimSpace(params.Content)
	if params.Content == "" {
		return apperrors.MissingRequired("content")
	}
	if len(params.Content) > config.MaxMessageContentBytes {
		return apperrors.InvalidInput("content", "message is too long")
	}
	if params.IsVoice && params.IsImage {
		return apperrors.InvalidInput("isVoice", "a message is either voice or image")
	}
	if (params.IsVoice || params.IsImage) && !util.IsHTTPURL(params.Content) {
		return apperrors.InvalidInput("content", "voice and image messages must carry an absolute URL")
	}

	if params.Character != nil {
		trimmed := strings.TrimSpace(*params.Character)
		if trimmed == "" {
			params.Character = nil
		} else {
			params.Character = &trimmed
		}
	}
	if params.Character != nil && !params.IsRolePlay {
		return apperrors.InvalidInput("character", "only allowed in role-play")
	}
	return nil
}

package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/config"
	"github.com/klumsiland/chat-server/internal/database"
	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/repository"
	"github.com/klumsiland/chat-server/internal/sse"
	"github.com/klumsiland/chat-server/internal/util"
)

// Transactor runs fn inside a single database transaction. *database.DB implements it.
type Transactor interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// EventPublisher delivers realtime events to a broker topic. *sse.Broker implements it.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

// SessionPresence clears a visitor's presence entry. *PresenceService implements it.
type SessionPresence interface {
	SetUser(ctx context.Context, sessionID string, online bool, displayName string) error
}

// AccessPolicy configures how access codes are redeemed and issued.
type AccessPolicy struct {
	// SingleUse allows exactly one session per access code. Otherwise an active
	// code redeems any number of sessions and in_use/last_used are bookkeeping only.
	SingleUse bool
	// AdminKeyHash, when set, is a bcrypt hash that the adminKey sent with a
	// code issuance request must match.
	AdminKeyHash string
}

// AccessService turns access codes into chat sessions and admin codes into admin
// sessions, and answers whether a token still belongs to a live session.
type AccessService struct {
	tx          Transactor
	codeRepo    repository.AccessCodeRepository
	sessionRepo repository.ChatSessionRepository
	adminRepo   repository.AdminSessionRepository
	messageRepo repository.MessageRepository
	publisher   EventPublisher
	presence    SessionPresence
	policy      AccessPolicy
}

func NewAccessService(
	tx Transactor,
	codeRepo repository.AccessCodeRepository,
	sessionRepo repository.ChatSessionRepository,
	adminRepo repository.AdminSessionRepository,
	messageRepo repository.MessageRepository,
	publisher EventPublisher,
	presence SessionPresence,
	policy AccessPolicy,
) *AccessService {
	return &AccessService{
		tx:          tx,
		codeRepo:    codeRepo,
		sessionRepo: sessionRepo,
		adminRepo:   adminRepo,
		messageRepo: messageRepo,
		publisher:   publisher,
		presence:    presence,
		policy:      policy,
	}
}

// RedeemAccessCode exchanges an active access code for a new chat session token.
func (s *AccessService) RedeemAccessCode(ctx context.Context, rawCode string) (string, error) {
	code := util.NormalizeCode(rawCode)
	if code == "" {
		return "", apperrors.MissingRequired("code")
	}

	ac, err := s.codeRepo.FindByCode(ctx, code)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if !ac.Redeemable(model.CodeKindAccess) {
		log.Warn().Str("code", util.MaskCode(code)).Msg("rejected access code")
		return "", apperrors.InvalidCode()
	}

	token, err := util.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	var session *model.ChatSession
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		codes := s.codeRepo.WithTx(tx)

		var marked bool
		var err error
		if s.policy.SingleUse {
			marked, err = codes.Claim(ctx, code)
		} else {
			marked, err = codes.MarkUsed(ctx, code)
		}
		if err != nil {
			return apperrors.Database(err)
		}
		if !marked {
			return apperrors.InvalidCode()
		}

		session, err = s.sessionRepo.WithTx(tx).Create(ctx, model.CreateSessionParams{
			TokenHash:  util.HashToken(token),
			SourceCode: code,
		})
		if err != nil {
			return apperrors.Database(err)
		}
		return nil
	})
	if err != nil {
		if !apperrors.IsAppError(err) {
			err = apperrors.Database(err)
		}
		if apperrors.IsAuthError(err) {
			log.Warn().Str("code", util.MaskCode(code)).Msg("access code already claimed")
		}
		return "", err
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("code", util.MaskCode(code)).
		Bool("singleUse", s.policy.SingleUse).
		Msg("access code redeemed")

	return token, nil
}

// RedeemAdminCode exchanges an active admin code for an admin session token.
// Admin codes are reusable and are not marked as used.
func (s *AccessService) RedeemAdminCode(ctx context.Context, rawCode string) (string, error) {
	code := util.NormalizeCode(rawCode)
	if code == "" {
		return "", apperrors.MissingRequired("code")
	}

	ac, err := s.codeRepo.FindByCode(ctx, code)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if !ac.Redeemable(model.CodeKindAdmin) {
		log.Warn().Str("code", util.MaskCode(code)).Msg("rejected admin code")
		return "", apperrors.InvalidAdminCode()
	}

	token, err := util.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	session, err := s.adminRepo.Create(ctx, model.CreateSessionParams{
		TokenHash:  util.HashToken(token),
		SourceCode: code,
	})
	if err != nil {
		return "", apperrors.Database(err)
	}

	log.Info().Str("adminSessionId", session.ID).Msg("admin session started")
	return token, nil
}

// ValidateSession reports whether token belongs to an active chat session.
// It never changes session state.
func (s *AccessService) ValidateSession(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, apperrors.MissingRequired("sessionToken")
	}

	session, err := s.sessionRepo.FindByTokenHash(ctx, util.HashToken(token))
	if err != nil {
		return false, apperrors.Database(err)
	}
	return session != nil && session.Active, nil
}

// AuthenticateSession resolves token to its active chat session.
func (s *AccessService) AuthenticateSession(ctx context.Context, token string) (*model.ChatSession, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Session token required")
	}

	session, err := s.sessionRepo.FindByTokenHash(ctx, util.HashToken(token))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || !session.Active {
		return nil, apperrors.InvalidSession()
	}
	return session, nil
}

// AuthenticateAdmin resolves token to its active admin session and records the
// activity. This is the admin gateway check run before every admin operation.
func (s *AccessService) AuthenticateAdmin(ctx context.Context, token string) (*model.AdminSession, error) {
	session, err := s.findActiveAdmin(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.adminRepo.Touch(ctx, session.ID); err != nil {
		log.Warn().Err(err).Str("adminSessionId", session.ID).Msg("failed to update admin activity")
	}
	return session, nil
}

// EndSession deactivates the chat session owning token and takes its visitor
// offline. Ending an already ended session succeeds, keeps the original end
// time and does not announce the end again.
func (s *AccessService) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.MissingRequired("sessionToken")
	}

	session, justEnded, err := s.sessionRepo.End(ctx, util.HashToken(token))
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return apperrors.NotFound("Session")
	}

	// Cleared on repeated calls too.
	if s.presence != nil {
		if err := s.presence.SetUser(ctx, session.ID, false, ""); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to clear presence of ended session")
		}
	}

	if !justEnded {
		return nil
	}

	log.Info().Str("sessionId", session.ID).Msg("chat session ended")
	s.publish(ctx, model.EventSessionEnded, session, session.ID, sse.LobbyTopic)
	return nil
}

// EndAdminSession logs an admin out.
func (s *AccessService) EndAdminSession(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.MissingRequired("adminToken")
	}

	session, err := s.adminRepo.End(ctx, util.HashToken(token))
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return apperrors.NotFound("Admin session")
	}

	log.Info().Str("adminSessionId", session.ID).Msg("admin session ended")
	return nil
}

// IssueAccessCode creates a fresh access code on behalf of the admin owning adminToken.
func (s *AccessService) IssueAccessCode(ctx context.Context, adminToken, adminKey string) (*model.AccessCode, error) {
	admin, err := s.findActiveAdmin(ctx, adminToken)
	if err != nil {
		return nil, err
	}

	if s.policy.AdminKeyHash != "" && !util.CheckPasswordHash(adminKey, s.policy.AdminKeyHash) {
		log.Warn().Str("adminSessionId", admin.ID).Msg("code issuance rejected: invalid admin key")
		return nil, apperrors.Unauthorized("Invalid admin key")
	}

	for attempt := 0; attempt < config.AccessCodeMaxAttempts; attempt++ {
		code, err := util.GenerateCode(config.AccessCodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}

		ac, err := s.codeRepo.Create(ctx, model.CreateAccessCodeParams{
			Code: code,
			Kind: model.CodeKindAccess,
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if ac != nil {
			log.Info().
				Str("adminSessionId", admin.ID).
				Str("code", util.MaskCode(code)).
				Msg("access code issued")
			return ac, nil
		}

		log.Debug().Int("attempt", attempt+1).Msg("access code collision, retrying")
	}

	return nil, apperrors.Internal("Could not allocate a unique code")
}

// DeactivateCode stops a code from redeeming further sessions. Existing sessions stay active.
func (s *AccessService) DeactivateCode(ctx context.Context, rawCode string) error {
	code := util.NormalizeCode(rawCode)
	if code == "" {
		return apperrors.MissingRequired("code")
	}

	ok, err := s.codeRepo.Deactivate(ctx, code)
	if err != nil {
		return apperrors.Database(err)
	}
	if !ok {
		return apperrors.NotFound("Code")
	}

	log.Info().Str("code", util.MaskCode(code)).Msg("access code deactivated")
	return nil
}

// EnsureAdminCode makes code a usable admin code. Used to bootstrap the first admin login.
func (s *AccessService) EnsureAdminCode(ctx context.Context, rawCode string) error {
	code := util.NormalizeCode(rawCode)
	if code == "" {
		return nil
	}

	if _, err := s.codeRepo.Upsert(ctx, model.CreateAccessCodeParams{Code: code, Kind: model.CodeKindAdmin}); err != nil {
		return fmt.Errorf("upsert admin code: %w", err)
	}
	log.Info().Str("code", util.MaskCode(code)).Msg("admin code ensured")
	return nil
}

func (s *AccessService) ListCodes(ctx context.Context, limit, offset int) ([]model.AccessCode, int, error) {
	codes, err := s.codeRepo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.codeRepo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return codes, total, nil
}

func (s *AccessService) ListSessions(ctx context.Context, limit, offset int) ([]model.ChatSession, int, error) {
	sessions, err := s.sessionRepo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.sessionRepo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return sessions, total, nil
}

func (s *AccessService) ListAdminSessions(ctx context.Context, limit, offset int) ([]model.AdminSession, int, error) {
	sessions, err := s.adminRepo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.adminRepo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return sessions, total, nil
}

// FindSession looks a chat session up by its public id, for admin views.
func (s *AccessService) FindSession(ctx context.Context, id string) (*model.ChatSession, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.InvalidInput("id", "must be a UUID")
	}

	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

func (s *AccessService) GetStats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	var err error

	if stats.Codes, err = s.codeRepo.Count(ctx); err != nil {
		return nil, apperrors.Database(err)
	}
	if stats.ActiveCodes, err = s.codeRepo.CountActive(ctx); err != nil {
		return nil, apperrors.Database(err)
	}
	if stats.Sessions, err = s.sessionRepo.Count(ctx); err != nil {
		return nil, apperrors.Database(err)
	}
	if stats.ActiveSessions, err = s.sessionRepo.CountActive(ctx); err != nil {
		return nil, apperrors.Database(err)
	}
	if stats.Messages, err = s.messageRepo.Count(ctx); err != nil {
		return nil, apperrors.Database(err)
	}
	return &stats, nil
}

func (s *AccessService) findActiveAdmin(ctx context.Context, token string) (*model.AdminSession, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Admin token required")
	}

	session, err := s.adminRepo.FindByTokenHash(ctx, util.HashToken(token))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || !session.Active {
		return nil, apperrors.Unauthorized("Invalid admin session")
	}
	return session, nil
}

func (s *AccessService) publish(ctx context.Context, eventType string, data any, topics ...string) {
	publishEvent(ctx, s.publisher, eventType, data, topics...)
}

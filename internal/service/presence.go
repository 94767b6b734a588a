package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/repository"
	"github.com/klumsiland/chat-server/internal/sse"
)

// PresenceService tracks who is online and derives whether a new visitor may chat.
type PresenceService struct {
	repo      repository.PresenceRepository
	publisher EventPublisher
	ttl       time.Duration
	now       func() time.Time
}

func NewPresenceService(repo repository.PresenceRepository, publisher EventPublisher, ttl time.Duration) *PresenceService {
	return &PresenceService{
		repo:      repo,
		publisher: publisher,
		ttl:       ttl,
		now:       time.Now,
	}
}

// SetKlum marks the admin persona online or offline.
func (s *PresenceService) SetKlum(ctx context.Context, online bool) error {
	return s.set(ctx, model.Presence{
		ParticipantID: model.KlumParticipantID,
		Role:          model.RoleKlum,
		DisplayName:   model.KlumSender,
		Online:        online,
	})
}

// SetUser marks the visitor of a chat session online or offline.
func (s *PresenceService) SetUser(ctx context.Context, sessionID string, online bool, displayName string) error {
	return s.set(ctx, model.Presence{
		ParticipantID: sessionID,
		Role:          model.RoleUser,
		DisplayName:   strings.TrimSpace(displayName),
		Online:        online,
	})
}

// Status returns the current availability of the chat.
func (s *PresenceService) Status(ctx context.Context) (*model.ChatStatus, error) {
	entries, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, apperrors.External("presence store", err)
	}
	status := computeStatus(entries, s.now(), s.ttl)
	return &status, nil
}

// Sweep marks entries that stopped refreshing as offline and drops offline
// entries older than retention. It returns how many entries changed.
func (s *PresenceService) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	entries, err := s.repo.FindAll(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var expired []string
	changed := 0
	for _, p := range entries {
		switch {
		case p.Online && !p.Live(now, s.ttl):
			written, err := s.repo.MarkOffline(ctx, p)
			if err != nil {
				return changed, err
			}
			if !written {
				// refreshed since FindAll; status is recomputed from the store below
				continue
			}
			changed++
		case !p.Online && now.Sub(p.LastActive) > retention:
			expired = append(expired, p.ParticipantID)
		}
	}

	if len(expired) > 0 {
		removed, err := s.repo.Remove(ctx, expired...)
		if err != nil {
			return changed, err
		}
		changed += int(removed)
	}

	if changed > 0 {
		status, err := s.Status(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to compute chat status after sweep")
			return changed, nil
		}
		s.broadcastStatus(ctx, *status)
	}
	return changed, nil
}

func (s *PresenceService) set(ctx context.Context, p model.Presence) error {
	p.LastActive = s.now()
	if err := s.repo.Set(ctx, p); err != nil {
		return apperrors.External("presence store", err)
	}

	log.Debug().
		Str("participantId", p.ParticipantID).
		Str("role", string(p.Role)).
		Bool("online", p.Online).
		Msg("presence updated")

	status, err := s.Status(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to compute chat status after presence update")
		return nil
	}
	s.broadcastStatus(ctx, *status)
	return nil
}

func (s *PresenceService) broadcastStatus(ctx context.Context, status model.ChatStatus) {
	publishEvent(ctx, s.publisher, model.EventPresence, status, sse.PresenceTopic)
}

func computeStatus(entries []model.Presence, now time.Time, ttl time.Duration) model.ChatStatus {
	var status model.ChatStatus
	for _, p := range entries {
		if !p.Live(now, ttl) {
			continue
		}
		switch {
		case p.ParticipantID == model.KlumParticipantID:
			status.KlumOnline = true
		case p.Role == model.RoleUser:
			status.HasActiveUser = true
		}
	}
	status.ChatAvailable = status.KlumOnline && !status.HasActiveUser
	return status
}

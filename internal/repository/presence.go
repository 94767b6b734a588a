package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/model"
	redisclient "github.com/klumsiland/chat-server/internal/redis"
)

// PresenceRepository keeps one entry per participant in a Redis hash.
type PresenceRepository interface {
	Set(ctx context.Context, presence model.Presence) error
	Find(ctx context.Context, participantID string) (*model.Presence, error)
	FindAll(ctx context.Context) ([]model.Presence, error)
	Remove(ctx context.Context, participantIDs ...string) (int64, error)
	// MarkOffline stores presence with Online cleared, but only while the
	// stored entry is still online with the same LastActive. It reports
	// whether the entry was written.
	MarkOffline(ctx context.Context, presence model.Presence) (bool, error)
}

// markOfflineScript compares the stored entry before overwriting it, so a
// heartbeat that lands between the read and the write is kept.
var markOfflineScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
	return 0
end
local current = cjson.decode(raw)
if current.online ~= true or current.lastActive ~= ARGV[2] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

type presenceRepo struct {
	client *redis.Client
	key    string
}

func NewPresenceRepository(client *redis.Client) PresenceRepository {
	return &presenceRepo{client: client, key: redisclient.PresenceKey}
}

func (r *presenceRepo) Set(ctx context.Context, presence model.Presence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	return r.client.HSet(ctx, r.key, presence.ParticipantID, data).Err()
}

func (r *presenceRepo) Find(ctx context.Context, participantID string) (*model.Presence, error) {
	data, err := r.client.HGet(ctx, r.key, participantID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var presence model.Presence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("unmarshal presence: %w", err)
	}
	return &presence, nil
}

func (r *presenceRepo) FindAll(ctx context.Context) ([]model.Presence, error) {
	entries, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}

	result := make([]model.Presence, 0, len(entries))
	for id, data := range entries {
		var presence model.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			log.Warn().Err(err).Str("participantId", id).Msg("skipping malformed presence entry")
			continue
		}
		result = append(result, presence)
	}
	return result, nil
}

func (r *presenceRepo) Remove(ctx context.Context, participantIDs ...string) (int64, error) {
	if len(participantIDs) == 0 {
		return 0, nil
	}
	return r.client.HDel(ctx, r.key, participantIDs...).Result()
}

func (r *presenceRepo) MarkOffline(ctx context.Context, presence model.Presence) (bool, error) {
	expected := presence.LastActive.Format(time.RFC3339Nano)
	presence.Online = false
	data, err := json.Marshal(presence)
	if err != nil {
		return false, fmt.Errorf("marshal presence: %w", err)
	}

	written, err := markOfflineScript.Run(ctx, r.client, []string{r.key},
		presence.ParticipantID, expected, data).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

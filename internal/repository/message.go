package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/klumsiland/chat-server/internal/database"
	"github.com/klumsiland/chat-server/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, error)
	// FindRecent returns the last n messages of a session in chronological order.
	FindRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error)
	CountBySessionID(ctx context.Context, sessionID string) (int, error)
	Count(ctx context.Context) (int, error)
}

type messageRepo struct {
	db database.DBTX
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (id, session_id, sender, content, is_voice, is_image, is_role_play, character_name, ai_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *
	`, params.ID, params.SessionID, params.Sender, params.Content,
		params.IsVoice, params.IsImage, params.IsRolePlay, params.Character, params.AIGenerated)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.Message, error) {
	msgs := []model.Message{}
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	return msgs, err
}

func (r *messageRepo) FindRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	msgs := []model.Message{}
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM (
			SELECT * FROM messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, sessionID, n)
	return msgs, err
}

func (r *messageRepo) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE session_id = $1`, sessionID)
	return count, err
}

func (r *messageRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages`)
	return count, err
}

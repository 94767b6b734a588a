package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/klumsiland/chat-server/internal/database"
	"github.com/klumsiland/chat-server/internal/model"
)

type ChatSessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatSession, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.ChatSession, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.ChatSession, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error)
	Touch(ctx context.Context, id string) error
	// End deactivates the session and keeps the first ended_at on repeated calls.
	// It returns nil when no session has the given token hash. justEnded is true
	// only for the call that actually ended the session.
	End(ctx context.Context, tokenHash string) (session *model.ChatSession, justEnded bool, err error)
	Count(ctx context.Context) (int, error)
	CountActive(ctx context.Context) (int, error)
	WithTx(tx *sqlx.Tx) ChatSessionRepository
}

type chatSessionRepo struct {
	db database.DBTX
}

func NewChatSessionRepository(db *sqlx.DB) ChatSessionRepository {
	return &chatSessionRepo{db: db}
}

func (r *chatSessionRepo) WithTx(tx *sqlx.Tx) ChatSessionRepository {
	return &chatSessionRepo{db: tx}
}

func (r *chatSessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `SELECT * FROM chat_sessions WHERE id = $1`, id)
	return HandleNotFound(&session, err)
}

func (r *chatSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `SELECT * FROM chat_sessions WHERE token_hash = $1`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *chatSessionRepo) FindAll(ctx context.Context, limit, offset int) ([]model.ChatSession, error) {
	sessions := []model.ChatSession{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM chat_sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return sessions, err
}

func (r *chatSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO chat_sessions (token_hash, source_code)
		VALUES ($1, $2)
		RETURNING *
	`, params.TokenHash, params.SourceCode)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatSessionRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET last_activity = NOW()
		WHERE id = $1 AND active
	`, id)
	return err
}

func (r *chatSessionRepo) End(ctx context.Context, tokenHash string) (*model.ChatSession, bool, error) {
	var row struct {
		model.ChatSession
		JustEnded bool `db:"just_ended"`
	}
	err := r.db.GetContext(ctx, &row, `
		UPDATE chat_sessions s SET
			active = FALSE,
			ended_at = COALESCE(s.ended_at, NOW())
		FROM (
			SELECT id, ended_at AS prev_ended_at
			FROM chat_sessions
			WHERE token_hash = $1
			FOR UPDATE
		) prev
		WHERE s.id = prev.id
		RETURNING s.*, prev.prev_ended_at IS NULL AS just_ended
	`, tokenHash)
	session, err := HandleNotFound(&row.ChatSession, err)
	if session == nil || err != nil {
		return nil, false, err
	}
	return session, row.JustEnded, nil
}

func (r *chatSessionRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_sessions`)
	return count, err
}

func (r *chatSessionRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_sessions WHERE active`)
	return count, err
}

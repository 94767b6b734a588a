package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/klumsiland/chat-server/internal/database"
	"github.com/klumsiland/chat-server/internal/model"
)

type AdminSessionRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.AdminSession, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.AdminSession, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.AdminSession, error)
	Touch(ctx context.Context, id string) error
	End(ctx context.Context, tokenHash string) (*model.AdminSession, error)
	Count(ctx context.Context) (int, error)
}

type adminSessionRepo struct {
	db database.DBTX
}

func NewAdminSessionRepository(db *sqlx.DB) AdminSessionRepository {
	return &adminSessionRepo{db: db}
}

func (r *adminSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.AdminSession, error) {
	var session model.AdminSession
	err := r.db.GetContext(ctx, &session, `SELECT * FROM admin_sessions WHERE token_hash = $1`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *adminSessionRepo) FindAll(ctx context.Context, limit, offset int) ([]model.AdminSession, error) {
	sessions := []model.AdminSession{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM admin_sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return sessions, err
}

func (r *adminSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.AdminSession, error) {
	var session model.AdminSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO admin_sessions (token_hash, source_code)
		VALUES ($1, $2)
		RETURNING *
	`, params.TokenHash, params.SourceCode)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *adminSessionRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE admin_sessions SET last_activity = NOW()
		WHERE id = $1 AND active
	`, id)
	return err
}

func (r *adminSessionRepo) End(ctx context.Context, tokenHash string) (*model.AdminSession, error) {
	var session model.AdminSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE admin_sessions SET
			active = FALSE,
			ended_at = COALESCE(ended_at, NOW())
		WHERE token_hash = $1
		RETURNING *
	`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *adminSessionRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM admin_sessions WHERE active`)
	return count, err
}

package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/klumsiland/chat-server/internal/database"
	"github.com/klumsiland/chat-server/internal/model"
)

type AccessCodeRepository interface {
	FindByCode(ctx context.Context, code string) (*model.AccessCode, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.AccessCode, error)
	// Create returns nil without error when the code already exists.
	Create(ctx context.Context, params model.CreateAccessCodeParams) (*model.AccessCode, error)
	Upsert(ctx context.Context, params model.CreateAccessCodeParams) (*model.AccessCode, error)
	// MarkUsed records a redemption on an active access code.
	MarkUsed(ctx context.Context, code string) (bool, error)
	// Claim is MarkUsed that only succeeds while the code is still unused.
	Claim(ctx context.Context, code string) (bool, error)
	Deactivate(ctx context.Context, code string) (bool, error)
	Count(ctx context.Context) (int, error)
	CountActive(ctx context.Context) (int, error)
	WithTx(tx *sqlx.Tx) AccessCodeRepository
}

type accessCodeRepo struct {
	db database.DBTX
}

func NewAccessCodeRepository(db *sqlx.DB) AccessCodeRepository {
	return &accessCodeRepo{db: db}
}

func (r *accessCodeRepo) WithTx(tx *sqlx.Tx) AccessCodeRepository {
	return &accessCodeRepo{db: tx}
}

func (r *accessCodeRepo) FindByCode(ctx context.Context, code string) (*model.AccessCode, error) {
	var ac model.AccessCode
	err := r.db.GetContext(ctx, &ac, `SELECT * FROM access_codes WHERE code = $1`, code)
	return HandleNotFound(&ac, err)
}

func (r *accessCodeRepo) FindAll(ctx context.Context, limit, offset int) ([]model.AccessCode, error) {
	codes := []model.AccessCode{}
	err := r.db.SelectContext(ctx, &codes, `
		SELECT * FROM access_codes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return codes, err
}

func (r *accessCodeRepo) Create(ctx context.Context, params model.CreateAccessCodeParams) (*model.AccessCode, error) {
	var ac model.AccessCode
	err := r.db.GetContext(ctx, &ac, `
		INSERT INTO access_codes (code, kind)
		VALUES ($1, $2)
		ON CONFLICT (code) DO NOTHING
		RETURNING *
	`, params.Code, params.Kind)
	return HandleNotFound(&ac, err)
}

func (r *accessCodeRepo) Upsert(ctx context.Context, params model.CreateAccessCodeParams) (*model.AccessCode, error) {
	var ac model.AccessCode
	err := r.db.GetContext(ctx, &ac, `
		INSERT INTO access_codes (code, kind)
		VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET kind = EXCLUDED.kind, active = TRUE
		RETURNING *
	`, params.Code, params.Kind)
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

func (r *accessCodeRepo) MarkUsed(ctx context.Context, code string) (bool, error) {
	return execAffected(ctx, r.db, `
		UPDATE access_codes SET in_use = TRUE, last_used = NOW()
		WHERE code = $1 AND active AND kind = 'access'
	`, code)
}

func (r *accessCodeRepo) Claim(ctx context.Context, code string) (bool, error) {
	return execAffected(ctx, r.db, `
		UPDATE access_codes SET in_use = TRUE, last_used = NOW()
		WHERE code = $1 AND active AND kind = 'access' AND NOT in_use
	`, code)
}

func (r *accessCodeRepo) Deactivate(ctx context.Context, code string) (bool, error) {
	return execAffected(ctx, r.db, `UPDATE access_codes SET active = FALSE WHERE code = $1`, code)
}

func (r *accessCodeRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM access_codes`)
	return count, err
}

func (r *accessCodeRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM access_codes WHERE active`)
	return count, err
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/authdesk/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	var (
		profile   model.Profile
		fullName  sql.NullString
		avatarURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, avatar_url, updated_at FROM profiles WHERE id = $1`,
		id,
	).Scan(&profile.ID, &profile.Email, &fullName, &avatarURL, &profile.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	profile.FullName = nullableString(fullName)
	profile.AvatarURL = nullableString(avatarURL)
	return &profile, nil
}

// Insert はプロフィールを作成する。既に存在する場合は何もしない。
func (r *PostgresProfileRepo) Insert(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, avatar_url, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		profile.ID, profile.Email, profile.FullName, profile.AvatarURL, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// Upsert はプロフィールを作成または上書き更新する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, avatar_url, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   email = EXCLUDED.email,
		   full_name = EXCLUDED.full_name,
		   avatar_url = EXCLUDED.avatar_url,
		   updated_at = EXCLUDED.updated_at`,
		profile.ID, profile.Email, profile.FullName, profile.AvatarURL, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)

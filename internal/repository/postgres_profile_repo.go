package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/docshare/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, created_at, updated_at FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&profile.UserID, &profile.DisplayName, &profile.CreatedAt, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	return profile, nil
}

// UpdateDisplayName は表示名を更新する。
func (r *PostgresProfileRepo) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET display_name = $2, updated_at = now() WHERE user_id = $1`,
		userID, displayName,
	)
	if err != nil {
		return fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)

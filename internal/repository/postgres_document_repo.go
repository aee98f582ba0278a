package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/docshare/internal/model"
)

// PostgresDocumentRepo はPostgreSQLを使用した文書メタデータリポジトリ。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

// Create は文書メタデータを作成する。
func (r *PostgresDocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, storage_key, owner_id, share_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.Name, doc.StorageKey, doc.OwnerID,
		nullString(doc.ShareToken), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("文書メタデータの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの文書を取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	return r.findOne(ctx,
		`SELECT id, name, storage_key, owner_id, share_token, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	)
}

// FindByShareToken は共有トークンで文書を検索する。見つからない場合はnilを返す。
// share_tokenにはUNIQUE制約があるため、一致は高々1件となる。
func (r *PostgresDocumentRepo) FindByShareToken(ctx context.Context, token string) (*model.Document, error) {
	return r.findOne(ctx,
		`SELECT id, name, storage_key, owner_id, share_token, created_at, updated_at
		 FROM documents WHERE share_token = $1`,
		token,
	)
}

// findOne は単一文書を取得する共通処理。
func (r *PostgresDocumentRepo) findOne(ctx context.Context, query string, arg any) (*model.Document, error) {
	doc := &model.Document{}
	var shareToken sql.NullString

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&doc.ID, &doc.Name, &doc.StorageKey, &doc.OwnerID,
		&shareToken, &doc.CreatedAt, &doc.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("文書の取得に失敗しました: %w", err)
	}

	doc.ShareToken = nullStringValue(shareToken)
	return doc, nil
}

// ListByOwner は所有者の文書一覧をupdated_at降順で返す。
func (r *PostgresDocumentRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, storage_key, owner_id, share_token, created_at, updated_at
		 FROM documents
		 WHERE owner_id = $1
		 ORDER BY updated_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("文書一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		var shareToken sql.NullString

		if err := rows.Scan(
			&doc.ID, &doc.Name, &doc.StorageKey, &doc.OwnerID,
			&shareToken, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("文書一覧の読み取りに失敗しました: %w", err)
		}

		doc.ShareToken = nullStringValue(shareToken)
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("文書一覧の走査に失敗しました: %w", err)
	}

	return docs, nil
}

// UpdateName は文書の表示名を更新する。storage_keyは変更しない。
func (r *PostgresDocumentRepo) UpdateName(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET name = $2, updated_at = now() WHERE id = $1`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("文書名の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateShareToken は共有トークンを更新する。空文字はNULLとして格納され、
// 文書は所有者のみ可視の状態に戻る。
func (r *PostgresDocumentRepo) UpdateShareToken(ctx context.Context, id, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET share_token = $2, updated_at = now() WHERE id = $1`,
		id, nullString(token),
	)
	if err != nil {
		return fmt.Errorf("共有トークンの更新に失敗しました: %w", err)
	}
	return nil
}

// ClaimShareToken は共有トークンが未発行の場合に限りトークンを格納する。
// WHERE句でshare_token IS NULLを条件にすることで、同時発行の競合時は
// 先勝ちとなり、後続の発行が既存リンクを無効化することはない。
func (r *PostgresDocumentRepo) ClaimShareToken(ctx context.Context, id, token string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET share_token = $2, updated_at = now()
		 WHERE id = $1 AND share_token IS NULL`,
		id, token,
	)
	if err != nil {
		return false, fmt.Errorf("共有トークンの発行に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("共有トークンの発行結果の確認に失敗しました: %w", err)
	}
	return affected == 1, nil
}

// DeleteByID は指定IDの文書を削除する。関連コメントはCASCADE削除される。
func (r *PostgresDocumentRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("文書の削除に失敗しました: %w", err)
	}
	return nil
}

// ListStorageKeys は全文書のstorage_keyを返す。整合性スイープで使用する。
func (r *PostgresDocumentRepo) ListStorageKeys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT storage_key FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("storage_key一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("storage_keyの読み取りに失敗しました: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage_key一覧の走査に失敗しました: %w", err)
	}

	return keys, nil
}

// ExistsByStorageKey は指定storage_keyの文書が存在するかを返す。
func (r *PostgresDocumentRepo) ExistsByStorageKey(ctx context.Context, storageKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE storage_key = $1)`,
		storageKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage_keyの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ DocumentRepository = (*PostgresDocumentRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/docshare/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Create はコメントを作成する。author_idが空文字の場合はNULLで格納する（匿名投稿）。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, document_id, author_id, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		comment.ID, comment.DocumentID, nullString(comment.AuthorID),
		comment.Body, comment.CreatedAt, comment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByIDWithAuthor は指定IDのコメントを投稿者の現在の表示名付きで取得する。
// 見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByIDWithAuthor(ctx context.Context, id string) (*model.CommentWithAuthor, error) {
	c := &model.CommentWithAuthor{}
	var authorID, displayName sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT c.id, c.document_id, c.author_id, c.body, c.created_at, c.updated_at,
		        p.display_name
		 FROM comments c
		 LEFT JOIN profiles p ON c.author_id = p.user_id
		 WHERE c.id = $1`,
		id,
	).Scan(
		&c.ID, &c.DocumentID, &authorID, &c.Body, &c.CreatedAt, &c.UpdatedAt,
		&displayName,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}

	c.AuthorID = nullStringValue(authorID)
	c.AuthorDisplayName = displayNameOrGuest(displayName)

	return c, nil
}

// ListByDocumentWithAuthor は文書のコメント一覧をcreated_at昇順で返す。
// 投稿者の表示名は読み取り時点のprofilesと結合して解決するため、
// 投稿後に表示名が変わった場合も最新の名前で表示される。
func (r *PostgresCommentRepo) ListByDocumentWithAuthor(ctx context.Context, documentID string) ([]model.CommentWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.author_id, c.body, c.created_at, c.updated_at,
		        p.display_name
		 FROM comments c
		 LEFT JOIN profiles p ON c.author_id = p.user_id
		 WHERE c.document_id = $1
		 ORDER BY c.created_at ASC`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var comments []model.CommentWithAuthor
	for rows.Next() {
		var c model.CommentWithAuthor
		var authorID, displayName sql.NullString

		if err := rows.Scan(
			&c.ID, &c.DocumentID, &authorID, &c.Body, &c.CreatedAt, &c.UpdatedAt,
			&displayName,
		); err != nil {
			return nil, fmt.Errorf("コメント一覧の読み取りに失敗しました: %w", err)
		}

		c.AuthorID = nullStringValue(authorID)
		c.AuthorDisplayName = displayNameOrGuest(displayName)

		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}

	return comments, nil
}

// displayNameOrGuest はNULLの表示名をゲストラベルに解決する。
// 匿名投稿と、投稿者アカウントが削除済みの場合の両方をカバーする。
func displayNameOrGuest(ns sql.NullString) string {
	if ns.Valid && ns.String != "" {
		return ns.String
	}
	return model.GuestDisplayName
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/docshare/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// profilesレコードはDBトリガーにより自動作成される。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するprofiles、sessions、documentsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ProfileRepository は公開プロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// UpdateDisplayName は表示名を更新する。
	UpdateDisplayName(ctx context.Context, userID, displayName string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// DocumentRepository は文書メタデータの永続化インターフェース。
type DocumentRepository interface {
	// Create は文書メタデータを作成する。
	Create(ctx context.Context, doc *model.Document) error

	// FindByID は指定IDの文書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindByShareToken は共有トークンで文書を検索する。
	// 一致する文書がちょうど1件存在する場合のみ返し、見つからない場合はnilを返す。
	FindByShareToken(ctx context.Context, token string) (*model.Document, error)

	// ListByOwner は所有者の文書一覧をupdated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Document, error)

	// UpdateName は文書の表示名を更新する。storage_keyは変更しない。
	UpdateName(ctx context.Context, id, name string) error

	// UpdateShareToken は共有トークンを更新する。空文字は共有解除（NULL格納）を表す。
	UpdateShareToken(ctx context.Context, id, token string) error

	// ClaimShareToken は共有トークンが未発行の場合に限りトークンを格納する。
	// 格納できた場合はtrueを、既に発行済みで格納しなかった場合はfalseを返す。
	ClaimShareToken(ctx context.Context, id, token string) (bool, error)

	// DeleteByID は指定IDの文書を削除する。関連コメントはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListStorageKeys は全文書のstorage_keyを返す。整合性スイープで使用する。
	ListStorageKeys(ctx context.Context) ([]string, error)

	// ExistsByStorageKey は指定storage_keyの文書が存在するかを返す。
	ExistsByStorageKey(ctx context.Context, storageKey string) (bool, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// FindByIDWithAuthor は指定IDのコメントを投稿者の現在の表示名付きで取得する。
	// 見つからない場合はnilを返す。
	FindByIDWithAuthor(ctx context.Context, id string) (*model.CommentWithAuthor, error)

	// ListByDocumentWithAuthor は文書のコメント一覧を投稿者の現在の表示名付きで
	// created_at昇順で返す。表示名は読み取り時にprofilesと結合して解決する。
	ListByDocumentWithAuthor(ctx context.Context, documentID string) ([]model.CommentWithAuthor, error)
}

// Package document はPDF文書のアップロードとメタデータ管理を提供する。
package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/docshare/internal/model"
	"github.com/hitoshi/docshare/internal/policy"
	"github.com/hitoshi/docshare/internal/repository"
	"github.com/hitoshi/docshare/internal/storage"
)

// pdfContentType はアップロードを許可する唯一のMIMEタイプ。
const pdfContentType = "application/pdf"

// unsafeFilenameChars はストレージキーに使用できない文字のパターン。
// 英数字・ドット・ハイフン以外はすべてアンダースコアに置換される。
var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9.-]`)

// UploadInput はアップロード1回分の入力。ファイルはちょうど1つ。
type UploadInput struct {
	Filename    string
	ContentType string // クライアントが申告したMIMEタイプ
	Body        io.Reader
}

// ServiceConfig は文書サービスの設定。
type ServiceConfig struct {
	PresignExpiry time.Duration // 署名付きGET URLの有効期間
}

// Service は文書のアップロード・取得・更新・削除を提供する。
type Service struct {
	docs   repository.DocumentRepository
	store  storage.ObjectStore
	policy *policy.Policy
	config ServiceConfig

	// now はテストで時刻を固定するために差し替え可能にする。
	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	docs repository.DocumentRepository,
	store storage.ObjectStore,
	p *policy.Policy,
	config ServiceConfig,
) *Service {
	if config.PresignExpiry <= 0 {
		config.PresignExpiry = storage.DefaultPresignExpiry
	}
	return &Service{
		docs:   docs,
		store:  store,
		policy: p,
		config: config,
		now:    time.Now,
	}
}

// Upload はPDFファイルを1つ受け取り、オブジェクトストレージへ格納した上で
// メタデータ行を登録する。
//
// PDF以外のMIMEタイプはネットワーク呼び出しの前に拒否される。
// オブジェクト格納後にメタデータ登録が失敗した場合は、孤児オブジェクトを
// 残さないよう補償削除を試みる（削除自体の失敗は整合性スイープが回収する）。
func (s *Service) Upload(ctx context.Context, actor policy.Actor, in UploadInput) (*model.Document, error) {
	if err := s.policy.CanCreateDocument(actor, actor.UserID); err != nil {
		return nil, &model.APIError{
			Code:     model.ErrCodeUnauthorized,
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		}
	}

	mediaType, _, err := mime.ParseMediaType(in.ContentType)
	if err != nil || mediaType != pdfContentType {
		return nil, model.NewNotPDFError(in.ContentType)
	}

	if strings.TrimSpace(in.Filename) == "" {
		return nil, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "ファイル名が空です。",
			Category: "validation",
			Action:   "ファイルを選択し直してください。",
		}
	}

	now := s.now()
	storageKey := fmt.Sprintf("%d-%s", now.UnixMilli(), SanitizeFilename(in.Filename))

	if err := s.store.Put(ctx, storageKey, pdfContentType, in.Body); err != nil {
		slog.Error("object upload failed",
			slog.String("storage_key", storageKey),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUploadFailedError()
	}

	doc := &model.Document{
		ID:         uuid.New().String(),
		Name:       in.Filename,
		StorageKey: storageKey,
		OwnerID:    actor.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		slog.Error("metadata insert failed after upload, compensating",
			slog.String("storage_key", storageKey),
			slog.String("error", err.Error()),
		)
		// 補償削除。失敗しても孤児は整合性スイープが回収する。
		if delErr := s.store.Delete(ctx, storageKey); delErr != nil {
			slog.Error("compensating delete failed, orphan object left",
				slog.String("storage_key", storageKey),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, model.NewUploadFailedError()
	}

	slog.Info("document uploaded",
		slog.String("document_id", doc.ID),
		slog.String("owner_id", doc.OwnerID),
		slog.String("storage_key", storageKey),
	)

	return doc, nil
}

// Get は文書を取得する。所有者、または有効な共有トークンを提示した
// 主体のみが読み取れる。拒否と不存在は区別されない。
func (s *Service) Get(ctx context.Context, actor policy.Actor, documentID string) (*model.Document, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanReadDocument(actor, doc); err != nil {
		return nil, model.NewDocumentNotFoundError()
	}
	return doc, nil
}

// List は主体が所有する文書の一覧をupdated_at降順で返す。
func (s *Service) List(ctx context.Context, actor policy.Actor) ([]*model.Document, error) {
	if !actor.IsAuthenticated() {
		return nil, model.NewDocumentNotFoundError()
	}
	docs, err := s.docs.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Rename は文書の表示名を更新する。所有者のみが実行できる。
// ストレージ上のオブジェクトキーはリネームしない。
func (s *Service) Rename(ctx context.Context, actor policy.Actor, documentID, newName string) (*model.Document, error) {
	if strings.TrimSpace(newName) == "" {
		return nil, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "文書名が空です。",
			Category: "validation",
			Action:   "文書名を入力してください。",
		}
	}

	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanMutateDocument(actor, doc); err != nil {
		return nil, model.NewDocumentNotFoundError()
	}

	if err := s.docs.UpdateName(ctx, doc.ID, newName); err != nil {
		return nil, fmt.Errorf("failed to rename document: %w", err)
	}

	doc.Name = newName
	return doc, nil
}

// Delete は文書を削除する。所有者のみが実行できる。
// メタデータ行を先に削除し（コメントはCASCADE）、その後オブジェクトを
// ベストエフォートで削除する。オブジェクト削除の失敗は整合性スイープが回収する。
func (s *Service) Delete(ctx context.Context, actor policy.Actor, documentID string) error {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanMutateDocument(actor, doc); err != nil {
		return model.NewDocumentNotFoundError()
	}

	if err := s.docs.DeleteByID(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		slog.Error("object delete failed after metadata delete, orphan object left",
			slog.String("storage_key", doc.StorageKey),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("document deleted",
		slog.String("document_id", doc.ID),
		slog.String("owner_id", doc.OwnerID),
	)
	return nil
}

// FileURL はレンダリング用の短命な署名付きGET URLを発行する。
// 読み取り権限の判定はGetと同一。URLの有効期間は数十秒であり、
// 期限切れの場合は呼び出し側が再発行を要求する。
func (s *Service) FileURL(ctx context.Context, actor policy.Actor, documentID string) (string, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanReadDocument(actor, doc); err != nil {
		return "", model.NewDocumentNotFoundError()
	}

	url, err := s.store.PresignGet(ctx, doc.StorageKey, s.config.PresignExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign file URL: %w", err)
	}
	return url, nil
}

// SanitizeFilename はファイル名をストレージキーに安全な形へ変換する。
// `[A-Za-z0-9.-]` 以外のすべての文字をアンダースコアに置換する。
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

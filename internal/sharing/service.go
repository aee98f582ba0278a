// Package sharing は共有リンクの発行・解決・無効化を提供する。
//
// 共有の権能は文書ごとに1つのランダムトークン列に統一する。
// 文書IDそのものを権能として扱うことはない。
package sharing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/hitoshi/docshare/internal/model"
	"github.com/hitoshi/docshare/internal/policy"
	"github.com/hitoshi/docshare/internal/repository"
)

// ServiceConfig は共有サービスの設定。
type ServiceConfig struct {
	BaseURL string // 共有リンクのオリジン（例: "https://docshare.example.com"）
}

// Service は共有トークンの発行・解決・ローテーション・失効を提供する。
type Service struct {
	docs   repository.DocumentRepository
	policy *policy.Policy
	config ServiceConfig
}

// NewService はServiceを生成する。
func NewService(docs repository.DocumentRepository, p *policy.Policy, config ServiceConfig) *Service {
	return &Service{
		docs:   docs,
		policy: p,
		config: config,
	}
}

// ShareLink は共有トークンから外部向けリンクを構築する。
// 形式: <BASE_URL>/shared/<token>
func (s *Service) ShareLink(token string) string {
	return fmt.Sprintf("%s/shared/%s", s.config.BaseURL, token)
}

// EnsureToken は文書に共有トークンを発行し、共有リンクを返す。
// 所有者のみが実行できる。既にトークンが発行済みの場合はそれを再利用する（冪等）。
func (s *Service) EnsureToken(ctx context.Context, actor policy.Actor, documentID string) (string, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanMutateDocument(actor, doc); err != nil {
		return "", model.NewDocumentNotFoundError()
	}

	if doc.ShareToken != "" {
		return s.ShareLink(doc.ShareToken), nil
	}

	token, err := generateShareToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}

	// 未発行の場合のみ格納する。同時発行で他のリクエストが先に
	// 発行していた場合は、再読込して先勝ちのトークンを返す。
	claimed, err := s.docs.ClaimShareToken(ctx, doc.ID, token)
	if err != nil {
		return "", fmt.Errorf("failed to store share token: %w", err)
	}
	if !claimed {
		current, err := s.docs.FindByID(ctx, doc.ID)
		if err != nil {
			return "", fmt.Errorf("failed to re-read document: %w", err)
		}
		if current == nil || current.ShareToken == "" {
			return "", model.NewDocumentNotFoundError()
		}
		return s.ShareLink(current.ShareToken), nil
	}

	slog.Info("share token issued", slog.String("document_id", doc.ID))
	return s.ShareLink(token), nil
}

// Resolve は共有トークンから文書を解決する。
// 一致する文書が存在しない場合は未検出エラーを返す。
// トークン誤りと文書不存在は区別しない。
func (s *Service) Resolve(ctx context.Context, token string) (*model.Document, error) {
	if token == "" {
		return nil, model.NewDocumentNotFoundError()
	}

	doc, err := s.docs.FindByShareToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve share token: %w", err)
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError()
	}

	return doc, nil
}

// Rotate は共有トークンを新しい値に差し替え、新しい共有リンクを返す。
// 所有者のみが実行できる。既存のリンクは即座に無効となる。
func (s *Service) Rotate(ctx context.Context, actor policy.Actor, documentID string) (string, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanMutateDocument(actor, doc); err != nil {
		return "", model.NewDocumentNotFoundError()
	}

	token, err := generateShareToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}

	if err := s.docs.UpdateShareToken(ctx, doc.ID, token); err != nil {
		return "", fmt.Errorf("failed to store share token: %w", err)
	}

	slog.Info("share token rotated", slog.String("document_id", doc.ID))
	return s.ShareLink(token), nil
}

// Revoke は共有トークンを失効させる。
// 所有者のみが実行できる。文書は所有者のみ可視の状態に戻る。
func (s *Service) Revoke(ctx context.Context, actor policy.Actor, documentID string) error {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanMutateDocument(actor, doc); err != nil {
		return model.NewDocumentNotFoundError()
	}

	if err := s.docs.UpdateShareToken(ctx, doc.ID, ""); err != nil {
		return fmt.Errorf("failed to clear share token: %w", err)
	}

	slog.Info("share token revoked", slog.String("document_id", doc.ID))
	return nil
}

// generateShareToken は暗号的に安全な共有トークンを生成する。
func generateShareToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

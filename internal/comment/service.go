// Package comment は文書へのコメント投稿・一覧取得を提供する。
package comment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/docshare/internal/model"
	"github.com/hitoshi/docshare/internal/policy"
	"github.com/hitoshi/docshare/internal/repository"
	"github.com/hitoshi/docshare/internal/security"
)

// Service はコメントに関するビジネスロジックを提供する。
type Service struct {
	comments  repository.CommentRepository
	docs      repository.DocumentRepository
	sanitizer security.CommentSanitizerService
	policy    *policy.Policy
}

// NewService はServiceを生成する。
func NewService(
	comments repository.CommentRepository,
	docs repository.DocumentRepository,
	sanitizer security.CommentSanitizerService,
	p *policy.Policy,
) *Service {
	return &Service{
		comments:  comments,
		docs:      docs,
		sanitizer: sanitizer,
		policy:    p,
	}
}

// Create はコメントを投稿する。
// 本文はトリム後に空でないことを検証し、保存前に必ずサニタイズする。
// 認証済み主体の場合は投稿者を主体自身とし、匿名の場合は投稿者を空のまま
// 格納する（表示時はゲストラベルとなる）。
func (s *Service) Create(ctx context.Context, actor policy.Actor, documentID, body string) (*model.CommentWithAuthor, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, model.NewEmptyCommentError()
	}

	sanitized := s.sanitizer.Sanitize(trimmed)
	if strings.TrimSpace(sanitized) == "" {
		// マークアップのみで実質的な本文がない場合も空コメントとして扱う
		return nil, model.NewEmptyCommentError()
	}

	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanCreateComment(actor, doc, actor.UserID); err != nil {
		return nil, model.NewDocumentNotFoundError()
	}

	now := time.Now()
	c := &model.Comment{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		AuthorID:   actor.UserID,
		Body:       sanitized,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	// 表示名はprofilesとの結合で読み取り時点の値を解決する
	enriched, err := s.comments.FindByIDWithAuthor(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load created comment: %w", err)
	}
	if enriched == nil {
		return nil, fmt.Errorf("created comment not found: %s", c.ID)
	}

	return enriched, nil
}

// List は文書のコメント一覧をcreated_at昇順で返す。
// 読み取り権限は親文書の読み取りと同一の述語で判定する。
func (s *Service) List(ctx context.Context, actor policy.Actor, documentID string) ([]model.CommentWithAuthor, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanReadComments(actor, doc); err != nil {
		return nil, model.NewDocumentNotFoundError()
	}

	comments, err := s.comments.ListByDocumentWithAuthor(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return comments, nil
}

// Authorize はストリーム購読前の読み取り権限チェックを行う。
// 権限がない場合は未検出エラーを返す。
func (s *Service) Authorize(ctx context.Context, actor policy.Actor, documentID string) error {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to find document: %w", err)
	}
	if err := s.policy.CanReadComments(actor, doc); err != nil {
		return model.NewDocumentNotFoundError()
	}
	return nil
}

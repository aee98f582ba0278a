package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docshare/internal/model"
	"github.com/hitoshi/docshare/internal/policy"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// Create はコメントを投稿する。本文は保存前にサニタイズされる。
	Create(ctx context.Context, actor policy.Actor, documentID, body string) (*model.CommentWithAuthor, error)
	// List は文書のコメント一覧をcreated_at昇順で返す。
	List(ctx context.Context, actor policy.Actor, documentID string) ([]model.CommentWithAuthor, error)
}

// CommentMetrics はコメント投稿のメトリクス記録インターフェース。
// metrics.MetricsCollectorがこれを満たす。nilの場合は記録しない。
type CommentMetrics interface {
	RecordCommentPosted(anonymous bool)
}

// CommentHandler はコメント管理のHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
	metrics CommentMetrics
}

// NewCommentHandler はCommentHandlerを生成する。metricsはnil可。
func NewCommentHandler(service CommentServiceInterface, metrics CommentMetrics) *CommentHandler {
	return &CommentHandler{
		service: service,
		metrics: metrics,
	}
}

// createCommentRequest はコメント投稿リクエストのボディ。
type createCommentRequest struct {
	Body string `json:"body"`
}

// commentResponse はコメントのAPIレスポンス。
// author_display_nameは読み取り時点の表示名（匿名投稿はゲストラベル）。
type commentResponse struct {
	ID                string    `json:"id"`
	DocumentID        string    `json:"document_id"`
	Body              string    `json:"body"`
	AuthorDisplayName string    `json:"author_display_name"`
	CreatedAt         time.Time `json:"created_at"`
}

// Create はコメント投稿を処理する。認証済みユーザー、または
// 有効な共有トークンを提示した匿名主体が投稿できる。
// POST /api/documents/:id/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidBodyError())
		return
	}

	comment, err := h.service.Create(r.Context(), actor, documentID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordCommentPosted(!actor.IsAuthenticated())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCommentResponse(comment))
}

// List は文書のコメント一覧を返す。投稿順（created_at昇順）。
// GET /api/documents/:id/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	comments, err := h.service.List(r.Context(), actor, documentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for i := range comments {
		resp = append(resp, toCommentResponse(&comments[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// toCommentResponse はmodel.CommentWithAuthorからAPIレスポンスに変換する。
func toCommentResponse(c *model.CommentWithAuthor) commentResponse {
	return commentResponse{
		ID:                c.ID,
		DocumentID:        c.DocumentID,
		Body:              c.Body,
		AuthorDisplayName: c.AuthorDisplayName,
		CreatedAt:         c.CreatedAt,
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docshare/internal/model"
	"github.com/hitoshi/docshare/internal/policy"
)

// ShareServiceInterface は共有ハンドラーが必要とするサービスインターフェース。
type ShareServiceInterface interface {
	// EnsureToken は共有トークンを発行し、共有リンクを返す（冪等）。
	EnsureToken(ctx context.Context, actor policy.Actor, documentID string) (string, error)
	// Rotate は共有トークンを差し替え、新しい共有リンクを返す。
	Rotate(ctx context.Context, actor policy.Actor, documentID string) (string, error)
	// Revoke は共有トークンを失効させる。
	Revoke(ctx context.Context, actor policy.Actor, documentID string) error
	// Resolve は共有トークンから文書を解決する。
	Resolve(ctx context.Context, token string) (*model.Document, error)
}

// ShareHandler は共有リンク管理のHTTPハンドラー。
type ShareHandler struct {
	service ShareServiceInterface
}

// NewShareHandler はShareHandlerを生成する。
func NewShareHandler(service ShareServiceInterface) *ShareHandler {
	return &ShareHandler{
		service: service,
	}
}

// shareLinkResponse は共有リンクのAPIレスポンス。
type shareLinkResponse struct {
	ShareURL string `json:"share_url"`
}

// Ensure は文書の共有リンクを発行する。発行済みの場合は同じリンクを返す。
// POST /api/documents/:id/share
func (h *ShareHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	link, err := h.service.EnsureToken(r.Context(), actor, documentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(shareLinkResponse{ShareURL: link})
}

// Rotate は共有トークンを新しい値に差し替える。既存リンクは即座に無効になる。
// POST /api/documents/:id/share/rotate
func (h *ShareHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	link, err := h.service.Rotate(r.Context(), actor, documentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(shareLinkResponse{ShareURL: link})
}

// Revoke は共有トークンを失効させる。文書は所有者のみ可視の状態に戻る。
// DELETE /api/documents/:id/share
func (h *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	if err := h.service.Revoke(r.Context(), actor, documentID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sharedDocumentResponse は共有リンク解決のAPIレスポンス。
// 以降のAPI呼び出しに必要な文書IDとトークンを返す。
type sharedDocumentResponse struct {
	Document documentResponse `json:"document"`
	Token    string           `json:"token"`
}

// Resolve は共有トークンから文書を解決する。認証不要。
// トークン誤りと文書不存在は同一の404として応答する。
// GET /shared/:token
func (h *ShareHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	doc, err := h.service.Resolve(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sharedDocumentResponse{
		Document: toDocumentResponse(doc),
		Token:    token,
	})
}

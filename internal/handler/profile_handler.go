package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/docshare/internal/middleware"
	"github.com/hitoshi/docshare/internal/model"
)

// ProfileStore はプロフィールハンドラーが必要とする永続化インターフェース。
// repository.ProfileRepositoryの部分集合として定義する。
type ProfileStore interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
	// UpdateDisplayName は表示名を更新する。
	UpdateDisplayName(ctx context.Context, userID, displayName string) error
}

// ProfileHandler は公開プロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	store ProfileStore
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(store ProfileStore) *ProfileHandler {
	return &ProfileHandler{
		store: store,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Get は自分のプロフィールを取得する。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	profile, err := h.store.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse{
		UserID:      profile.UserID,
		DisplayName: profile.DisplayName,
	})
}

// Update は自分の表示名を更新する。
// 既存コメントの表示名は読み取り時に解決されるため、更新は即座に反映される。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidBodyError())
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "表示名が空です。",
			Category: "validation",
			Action:   "表示名を入力してください。",
		})
		return
	}

	if err := h.store.UpdateDisplayName(r.Context(), userID, displayName); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse{
		UserID:      userID,
		DisplayName: displayName,
	})
}

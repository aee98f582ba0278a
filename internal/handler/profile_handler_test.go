package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/docshare/internal/model"
)

// mockProfileStore はProfileStoreのモック実装。
type mockProfileStore struct {
	findByUserIDFn      func(ctx context.Context, userID string) (*model.Profile, error)
	updateDisplayNameFn func(ctx context.Context, userID, displayName string) error
}

func (m *mockProfileStore) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProfileStore) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	if m.updateDisplayNameFn != nil {
		return m.updateDisplayNameFn(ctx, userID, displayName)
	}
	return nil
}

// --- GET /api/profile テスト ---

func TestProfileHandler_Get_Success(t *testing.T) {
	store := &mockProfileStore{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Profile, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			return &model.Profile{UserID: "user-1", DisplayName: "alice"}, nil
		},
	}
	h := NewProfileHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Get(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["display_name"] != "alice" {
		t.Errorf("display_name = %q, want %q", result["display_name"], "alice")
	}
}

func TestProfileHandler_Get_Unauthenticated_ReturnsUnauthorized(t *testing.T) {
	h := NewProfileHandler(&mockProfileStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()

	h.Get(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// --- PUT /api/profile テスト ---

func TestProfileHandler_Update_Success(t *testing.T) {
	updated := false
	store := &mockProfileStore{
		updateDisplayNameFn: func(ctx context.Context, userID, displayName string) error {
			updated = true
			if displayName != "Alice B." {
				t.Errorf("displayName = %q, want %q", displayName, "Alice B.")
			}
			return nil
		},
	}
	h := NewProfileHandler(store)

	body := `{"display_name": "  Alice B.  "}`
	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewBufferString(body))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !updated {
		t.Error("expected UpdateDisplayName to be called")
	}
}

func TestProfileHandler_Update_EmptyDisplayName_ReturnsBadRequest(t *testing.T) {
	h := NewProfileHandler(&mockProfileStore{})

	body := `{"display_name": "   "}`
	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewBufferString(body))
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", errResp["code"], model.ErrCodeInvalidRequest)
	}
}

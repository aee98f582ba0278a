package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newDocshareStyleRouter は本番ルーターと同じグループ構成のchi.Routerを構築する。
// 匿名グループ（共有リンク解決・ゲストコメント）はOptionalSession、
// 所有者グループ（アップロード等）はSession必須とする。
func newDocshareStyleRouter(sessions SessionFinder) chi.Router {
	r := chi.NewRouter()

	csrfConfig := CSRFConfig{}
	r.Use(NewCSRFMiddleware(csrfConfig))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	// 匿名アクセス可能なルート
	r.Group(func(r chi.Router) {
		r.Use(NewOptionalSessionMiddleware(sessions))

		r.Get("/shared/{token}", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{
				"token": chi.URLParam(r, "token"),
			})
		})

		r.Post("/api/documents/{id}/comments", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{
				"document_id": chi.URLParam(r, "id"),
				"author_id":   userID,
			})
		})
	})

	// 認証が必要なルート
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(sessions))

		r.Post("/api/documents", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"owner_id": userID})
		})
	})

	return r
}

func TestRouterIntegration_SharedLinkGET_AnonymousAccess(t *testing.T) {
	r := newDocshareStyleRouter(&mockSessionRepository{})

	req := httptest.NewRequest(http.MethodGet, "/shared/tok-abc123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["token"] != "tok-abc123" {
		t.Errorf("token = %q, want %q", body["token"], "tok-abc123")
	}
	// 共有ページの初回GETでCSRF Cookieが発行されること
	if findCookie(resp, csrfCookieName) == nil {
		t.Error("expected CSRF cookie to be issued on the shared link GET")
	}
}

func TestRouterIntegration_GuestComment_FullAnonymousFlow(t *testing.T) {
	// 共有ページGET → 発行されたCookieでゲストコメントPOST、という実際の流れ
	r := newDocshareStyleRouter(&mockSessionRepository{})

	visit := httptest.NewRequest(http.MethodGet, "/shared/tok-abc123", nil)
	visitW := httptest.NewRecorder()
	r.ServeHTTP(visitW, visit)

	cookie := findCookie(visitW.Result(), csrfCookieName)
	if cookie == nil {
		t.Fatal("expected CSRF cookie from shared link visit")
	}

	post := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/comments?token=tok-abc123", nil)
	post.AddCookie(cookie)
	post.Header.Set(csrfHeaderName, cookie.Value)
	postW := httptest.NewRecorder()
	r.ServeHTTP(postW, post)

	resp := postW.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["author_id"] != "" {
		t.Errorf("author_id = %q, want empty for a guest comment", body["author_id"])
	}
}

func TestRouterIntegration_GuestComment_WithoutCSRF_Rejected(t *testing.T) {
	r := newDocshareStyleRouter(&mockSessionRepository{})

	post := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/comments?token=tok-abc123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, post)

	assertCSRFRejected(t, w)
}

func TestRouterIntegration_Upload_RequiresSession(t *testing.T) {
	repo := validSessionRepo("sess-1", "owner-123")
	r := newDocshareStyleRouter(repo)

	t.Run("with session and CSRF token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf-tok"})
		req.Header.Set(csrfHeaderName, "csrf-tok")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body["owner_id"] != "owner-123" {
			t.Errorf("owner_id = %q, want %q", body["owner_id"], "owner-123")
		}
	})

	t.Run("without session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf-tok"})
		req.Header.Set(csrfHeaderName, "csrf-tok")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assertUnauthorizedBody(t, w)
	})
}

func TestRouterIntegration_CSRFTokenEndpoint_NoAuthRequired(t *testing.T) {
	r := newDocshareStyleRouter(&mockSessionRepository{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token == "" {
		t.Error("expected non-empty token")
	}
}

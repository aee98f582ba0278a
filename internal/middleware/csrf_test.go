package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newCSRFTestHandler はCSRFミドルウェアを通過したかを記録するハンドラーを構築する。
func newCSRFTestHandler(config CSRFConfig) (http.Handler, *bool) {
	called := false
	mw := NewCSRFMiddleware(config)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &called
}

// assertCSRFRejected は403と統一エラーフォーマットのボディを検証する。
func assertCSRFRejected(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("expected unified JSON error body, got decode error: %v", err)
	}
	if body.Code != "CSRF_VALIDATION_FAILED" {
		t.Errorf("code = %q, want %q", body.Code, "CSRF_VALIDATION_FAILED")
	}
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- 安全なメソッドのテスト ---

func TestCSRFMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			handler, called := newCSRFTestHandler(CSRFConfig{})

			req := httptest.NewRequest(method, "/api/documents", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !*called {
				t.Fatalf("handler should have been called for %s request", method)
			}
		})
	}
}

func TestCSRFMiddleware_SharedLinkVisit_IssuesCookie(t *testing.T) {
	// 共有リンクを初めて開いた匿名訪問者には、このGETでCookieが発行される。
	// 以降のゲストコメント投稿はこのCookieで検証を通る。
	handler, _ := newCSRFTestHandler(CSRFConfig{CookieDomain: "docshare.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/shared/tok-abc123", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	cookie := findCookie(w.Result(), csrfCookieName)
	if cookie == nil {
		t.Fatal("expected CSRF cookie to be issued on shared link visit")
	}
	if cookie.Value == "" {
		t.Error("CSRF cookie value should not be empty")
	}
	// 32バイトの乱数を16進表記したトークン
	if len(cookie.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(cookie.Value))
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax (top-level navigation must carry the cookie)", cookie.SameSite)
	}
	if cookie.HttpOnly {
		t.Error("CSRF cookie must be readable by the frontend")
	}
	if cookie.Path != "/" {
		t.Errorf("Path = %q, want %q", cookie.Path, "/")
	}
}

func TestCSRFMiddleware_ExistingCookie_IsNotReplaced(t *testing.T) {
	handler, _ := newCSRFTestHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if findCookie(w.Result(), csrfCookieName) != nil {
		t.Error("CSRF cookie should not be re-set when already present")
	}
}

// --- 状態変更メソッドのテスト ---

func TestCSRFMiddleware_StateMutatingMethods_RequireToken(t *testing.T) {
	// アップロード、リネーム、共有発行、コメント投稿はすべて状態変更メソッドを使う
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/documents"},
		{http.MethodPatch, "/api/documents/doc-1"},
		{http.MethodDelete, "/api/documents/doc-1/share"},
		{http.MethodPut, "/api/profile"},
	}

	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			handler, called := newCSRFTestHandler(CSRFConfig{})

			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if *called {
				t.Error("handler must not be called without a CSRF token")
			}
			assertCSRFRejected(t, w)
		})
	}
}

func TestCSRFMiddleware_POST_MissingHeader_Rejected(t *testing.T) {
	handler, called := newCSRFTestHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/comments", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "token-abc"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if *called {
		t.Error("handler must not be called without the header token")
	}
	assertCSRFRejected(t, w)
}

func TestCSRFMiddleware_POST_TokenMismatch_Rejected(t *testing.T) {
	handler, called := newCSRFTestHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/comments", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "token-abc"})
	req.Header.Set(csrfHeaderName, "token-xyz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if *called {
		t.Error("handler must not be called on token mismatch")
	}
	assertCSRFRejected(t, w)
}

func TestCSRFMiddleware_GuestCommentFlow_CookieFromVisitPassesValidation(t *testing.T) {
	// 共有ページのGETで受け取ったCookieを使えば、匿名のコメントPOSTが通る
	handler, called := newCSRFTestHandler(CSRFConfig{})

	visit := httptest.NewRequest(http.MethodGet, "/shared/tok-abc123", nil)
	visitW := httptest.NewRecorder()
	handler.ServeHTTP(visitW, visit)

	cookie := findCookie(visitW.Result(), csrfCookieName)
	if cookie == nil {
		t.Fatal("expected CSRF cookie from the shared link visit")
	}

	post := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/comments?token=tok-abc123",
		strings.NewReader(`{"body":"hello"}`))
	post.AddCookie(cookie)
	post.Header.Set(csrfHeaderName, cookie.Value)
	postW := httptest.NewRecorder()

	*called = false
	handler.ServeHTTP(postW, post)

	if !*called {
		t.Fatal("guest comment POST with the visit cookie should pass validation")
	}
	if postW.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", postW.Result().StatusCode, http.StatusOK)
	}
}

// --- CSRFトークン取得エンドポイントのテスト ---

func TestCSRFTokenHandler_IssuesTokenCookieAndReturnsJSON(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{CookieDomain: "docshare.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected non-empty token in response")
	}

	cookie := findCookie(resp, csrfCookieName)
	if cookie == nil {
		t.Fatal("expected CSRF cookie to be set")
	}
	if cookie.Value != body.Token {
		t.Errorf("cookie value = %q, response token = %q; should match", cookie.Value, body.Token)
	}
}

func TestCSRFTokenHandler_ExistingCookie_ReturnsSameToken(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-csrf-token"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token != "existing-csrf-token" {
		t.Errorf("token = %q, want the existing token to be returned", body.Token)
	}
}

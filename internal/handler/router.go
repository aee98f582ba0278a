package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/docshare/internal/metrics"
	"github.com/hitoshi/docshare/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがこれを満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 文書
	DocumentService DocumentServiceInterface
	DocumentConfig  DocumentHandlerConfig

	// 共有
	ShareService ShareServiceInterface

	// コメント
	CommentService   CommentServiceInterface
	StreamAuthorizer StreamAuthorizer
	StreamSubscriber StreamSubscriber

	// プロフィール
	ProfileStore ProfileStore

	// メトリクス（nilの場合は/metricsを公開しない）
	MetricsGatherer  prometheus.Gatherer
	MetricsCollector metrics.MetricsCollector
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → CSRF → (Session | OptionalSession) → RateLimit
//
// 匿名アクセス可能なルート（共有リンク解決、共有文書の読み取り、ゲストコメント）は
// OptionalSession + 匿名レート制限の組で構成する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// panic回復は最上位。以降のミドルウェアとハンドラー全体を守る。
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// CORS ミドルウェアは全ルートに効く
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.MetricsCollector != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsCollector.RecordHTTPStatus))
	}

	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	// 未定義ルートもAPIエラーの統一フォーマットで応答する
	r.NotFound(middleware.NewNotFoundHandler())
	r.MethodNotAllowed(middleware.NewMethodNotAllowedHandler())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	documentHandler := NewDocumentHandler(deps.DocumentService, deps.DocumentConfig, deps.MetricsCollector)
	shareHandler := NewShareHandler(deps.ShareService)
	commentHandler := NewCommentHandler(deps.CommentService, deps.MetricsCollector)
	streamHandler := NewStreamHandler(deps.StreamAuthorizer, deps.StreamSubscriber, deps.MetricsCollector)
	profileHandler := NewProfileHandler(deps.ProfileStore)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	if deps.MetricsGatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.MetricsGatherer).ServeHTTP)
	}

	// 認証フロー
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		// パスワード更新はセッション必須
		r.With(
			middleware.NewSessionMiddleware(deps.SessionFinder),
			deps.RateLimiter.GeneralMiddleware(),
		).Put("/password", authHandler.UpdatePassword)
	})

	// --- 匿名アクセス可能なルート ---
	// ミドルウェアスタック: OptionalSession → RateLimit(Anonymous)
	// 認可の判定はハンドラー配下のポリシー層が行う。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.AnonymousMiddleware())

		// 共有リンクの解決
		r.Get("/shared/{token}", shareHandler.Resolve)

		// 文書の読み取り（所有者または共有トークン提示）
		r.Get("/api/documents/{id}", documentHandler.Get)
		r.Get("/api/documents/{id}/file", documentHandler.FileURL)

		// コメント（匿名主体は有効な共有トークン提示時のみ投稿可能）
		r.Get("/api/documents/{id}/comments", commentHandler.List)
		r.Post("/api/documents/{id}/comments", commentHandler.Create)
		r.Get("/api/documents/{id}/comments/stream", streamHandler.Stream)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 文書管理
		// POST /api/documents - アップロード（専用レート制限を追加）
		r.With(deps.RateLimiter.UploadMiddleware()).Post("/api/documents", documentHandler.Upload)
		r.Get("/api/documents", documentHandler.List)
		r.Patch("/api/documents/{id}", documentHandler.Rename)
		r.Delete("/api/documents/{id}", documentHandler.Delete)

		// 共有リンク管理（所有者のみ）
		r.Post("/api/documents/{id}/share", shareHandler.Ensure)
		r.Post("/api/documents/{id}/share/rotate", shareHandler.Rotate)
		r.Delete("/api/documents/{id}/share", shareHandler.Revoke)

		// プロフィール管理
		r.Get("/api/profile", profileHandler.Get)
		r.Put("/api/profile", profileHandler.Update)
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

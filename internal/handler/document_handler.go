package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docshare/internal/document"
	"github.com/hitoshi/docshare/internal/middleware"
	"github.com/hitoshi/docshare/internal/model"
	"github.com/hitoshi/docshare/internal/policy"
)

// shareTokenQueryParam は共有トークンを添えるクエリパラメータ名。
const shareTokenQueryParam = "token"

// DocumentServiceInterface は文書ハンドラーが必要とするサービスインターフェース。
type DocumentServiceInterface interface {
	// Upload はPDFファイルを1つ格納し、メタデータを登録する。
	Upload(ctx context.Context, actor policy.Actor, in document.UploadInput) (*model.Document, error)
	// Get は文書を取得する。拒否と不存在は区別されない。
	Get(ctx context.Context, actor policy.Actor, documentID string) (*model.Document, error)
	// List は主体が所有する文書の一覧を返す。
	List(ctx context.Context, actor policy.Actor) ([]*model.Document, error)
	// Rename は文書の表示名を更新する。
	Rename(ctx context.Context, actor policy.Actor, documentID, newName string) (*model.Document, error)
	// Delete は文書を削除する。
	Delete(ctx context.Context, actor policy.Actor, documentID string) error
	// FileURL はレンダリング用の短命な署名付きGET URLを発行する。
	FileURL(ctx context.Context, actor policy.Actor, documentID string) (string, error)
}

// DocumentHandlerConfig は文書ハンドラーの設定。
type DocumentHandlerConfig struct {
	UploadMaxSize int64 // multipartボディの最大バイト数
}

// DocumentMetrics は文書操作のメトリクス記録インターフェース。
// metrics.MetricsCollectorがこれを満たす。nilの場合は記録しない。
type DocumentMetrics interface {
	RecordUpload(bytes int64)
	RecordUploadRejected(reason string)
	RecordPresignLatency(d time.Duration)
}

// DocumentHandler は文書管理のHTTPハンドラー。
type DocumentHandler struct {
	service DocumentServiceInterface
	config  DocumentHandlerConfig
	metrics DocumentMetrics
}

// NewDocumentHandler はDocumentHandlerを生成する。metricsはnil可。
func NewDocumentHandler(service DocumentServiceInterface, config DocumentHandlerConfig, metrics DocumentMetrics) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		config:  config,
		metrics: metrics,
	}
}

// renameDocumentRequest は文書リネームリクエストのボディ。
type renameDocumentRequest struct {
	Name string `json:"name"`
}

// documentResponse は文書情報のAPIレスポンス。
type documentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Shared    bool      `json:"shared"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upload はPDFアップロードを処理する。ファイルはちょうど1つ。
// POST /api/documents (multipart/form-data, フィールド名 "file")
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.config.UploadMaxSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		reason := "missing_file"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			reason = "too_large"
		}
		h.recordUploadRejected(reason)
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "ファイルが添付されていません。",
			Category: "validation",
			Action:   "\"file\"フィールドにPDFファイルを1つ添付してください。",
		})
		return
	}
	defer file.Close()

	// 1リクエストにつきファイルはちょうど1つ。複数添付は曖昧なので拒否する。
	if countFileParts(r) > 1 {
		h.recordUploadRejected("multiple_files")
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "ファイルは1つだけ添付できます。",
			Category: "validation",
			Action:   "PDFファイルを1つだけ添付して再度お試しください。",
		})
		return
	}

	doc, err := h.service.Upload(r.Context(), actor, document.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeNotPDF {
			h.recordUploadRejected("not_pdf")
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUpload(header.Size)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toDocumentResponse(doc))
}

// countFileParts はmultipartボディに含まれるファイルパートの総数を返す。
// FormFileが先にボディを解析しているため、r.MultipartFormは利用可能。
func countFileParts(r *http.Request) int {
	if r.MultipartForm == nil {
		return 0
	}
	total := 0
	for _, headers := range r.MultipartForm.File {
		total += len(headers)
	}
	return total
}

// recordUploadRejected は拒否理由付きでアップロード拒否を記録する。
func (h *DocumentHandler) recordUploadRejected(reason string) {
	if h.metrics != nil {
		h.metrics.RecordUploadRejected(reason)
	}
}

// List は自分が所有する文書の一覧を返す。
// GET /api/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	docs, err := h.service.List(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toDocumentResponse(doc))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Get は文書詳細を取得する。所有者または有効な共有トークン提示で読み取れる。
// GET /api/documents/:id
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	doc, err := h.service.Get(r.Context(), actor, documentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toDocumentResponse(doc))
}

// Rename は文書の表示名を更新する。
// PATCH /api/documents/:id
func (h *DocumentHandler) Rename(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	var req renameDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidBodyError())
		return
	}

	doc, err := h.service.Rename(r.Context(), actor, documentID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toDocumentResponse(doc))
}

// Delete は文書を削除する。
// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), actor, documentID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FileURL はレンダリング用の署名付きGET URLを返す。
// GET /api/documents/:id/file
func (h *DocumentHandler) FileURL(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	start := time.Now()
	url, err := h.service.FileURL(r.Context(), actor, documentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordPresignLatency(time.Since(start))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"url": url,
	})
}

// --- ヘルパー関数 ---

// actorFromRequest はリクエストから認可の主体を構築する。
// セッションミドルウェアが注入したユーザーID（任意）と、
// クエリパラメータの共有トークン（任意）を組み合わせる。
func actorFromRequest(r *http.Request) policy.Actor {
	token := r.URL.Query().Get(shareTokenQueryParam)

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		return policy.Anonymous(token)
	}
	return policy.Authenticated(userID, token)
}

// toDocumentResponse はmodel.DocumentからAPIレスポンスに変換する。
// 共有トークンの値そのものはレスポンスに含めない。
func toDocumentResponse(doc *model.Document) documentResponse {
	return documentResponse{
		ID:        doc.ID,
		Name:      doc.Name,
		Shared:    doc.IsShared(),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// invalidBodyError はリクエストボディ解析失敗のエラーを生成する。
func invalidBodyError() *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// unauthorizedError は認証必須エラーを生成する。
func unauthorizedError() *model.APIError {
	return model.NewUnauthorizedError()
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidLogin:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeWeakPassword:
		return http.StatusBadRequest
	case model.ErrCodeNotPDF, model.ErrCodeEmptyComment:
		return http.StatusUnprocessableEntity
	case model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeDocumentNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

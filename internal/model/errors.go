// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, document, comment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeDocumentNotFound = "DOCUMENT_NOT_FOUND"
	ErrCodeNotPDF           = "NOT_PDF"
	ErrCodeEmptyComment     = "EMPTY_COMMENT"
	ErrCodeEmailTaken       = "EMAIL_TAKEN"
	ErrCodeInvalidLogin     = "INVALID_LOGIN"
	ErrCodeWeakPassword     = "WEAK_PASSWORD"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeUploadFailed     = "UPLOAD_FAILED"
)

// NewUnauthorizedError は認証必須エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewDocumentNotFoundError は文書未検出エラーを生成する。
// アクセス拒否の場合も存在の漏洩を避けるため同一のエラーを返す。
func NewDocumentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  "指定された文書が見つかりません。",
		Category: "document",
		Action:   "URLまたは共有リンクを確認してください。",
	}
}

// NewNotPDFError はPDF以外のファイルをアップロードしようとした場合のエラーを生成する。
func NewNotPDFError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeNotPDF,
		Message:  fmt.Sprintf("PDFではないファイルはアップロードできません: %s", contentType),
		Category: "validation",
		Action:   "PDF形式（application/pdf）のファイルを選択してください。",
	}
}

// NewEmptyCommentError は空のコメントを投稿しようとした場合のエラーを生成する。
func NewEmptyCommentError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyComment,
		Message:  "コメント本文が空です。",
		Category: "validation",
		Action:   "コメント本文を入力してください。",
	}
}

// NewEmailTakenError はメールアドレスが既に登録済みの場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスで登録するか、ログインしてください。",
	}
}

// NewInvalidLoginError はログイン失敗エラーを生成する。
// メールアドレス不明とパスワード不一致は区別しない。
func NewInvalidLoginError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLogin,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewWeakPasswordError はパスワードが要件を満たさない場合のエラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードは8文字以上で指定してください。",
		Category: "validation",
		Action:   "8文字以上のパスワードを入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUploadFailedError はアップロード処理の失敗エラーを生成する。
// 部分失敗（オブジェクト格納済み・メタデータ未登録）も同一のエラーで報告する。
func NewUploadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  "アップロードに失敗しました。",
		Category: "document",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

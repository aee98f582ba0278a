// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentSanitizerService はコメント本文のリッチテキストHTMLをサニタイズし、
// マークアップインジェクション（XSS）からユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 太字・斜体・箇条書きのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizerService はコメント本文サニタイズのインターフェースを定義する。
// コメントの保存前に必ず適用される。
type CommentSanitizerService interface {
	// Sanitize はコメント本文のHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（strong, b, em, i, ul, li）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性、全ての属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// commentSanitizer はCommentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: strong, b, em, i, ul, li（コメントUIが生成する太字・斜体・箇条書き）
//   - 属性は一切許可しない
//   - script, iframe, style等は許可リストに含めないことで自動的に除去される
//   - on*イベント属性はbluemondayのデフォルトで除去される
func NewCommentSanitizer() *commentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("strong", "b", "em", "i", "ul", "li")

	return &commentSanitizer{
		policy: p,
	}
}

// Sanitize はコメント本文のHTMLをサニタイズして安全なHTMLを返す。
func (s *commentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

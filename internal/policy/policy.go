// Package policy は行レベルの認可ルールを提供する。
//
// 文書・コメントへの全アクセス経路（REST読み取り、ストリーム購読、
// ファイル参照の発行）はこのパッケージの述語を通過する。
// 認可ロジックをUIやハンドラーに分散させず、データアクセス境界の
// 単一のルールセットとして集中評価する。
package policy

import (
	"crypto/subtle"
	"errors"

	"github.com/hitoshi/docshare/internal/model"
)

// ErrDenied は認可拒否を表す。
// 呼び出し側は「存在しない」と「許可されない」を区別してはならない。
// 存在の漏洩を避けるため、ハンドラーは両者を同一の未検出エラーとして応答する。
var ErrDenied = errors.New("access denied")

// Actor はリクエストの主体を表す。
// UserIDが空文字の場合は匿名リクエストを表す。
// ShareTokenはリクエストに添えられた共有トークン（未提示は空文字）。
type Actor struct {
	UserID     string
	ShareToken string
}

// IsAuthenticated は認証済みの主体かどうかを返す。
func (a Actor) IsAuthenticated() bool {
	return a.UserID != ""
}

// Anonymous は匿名の主体を生成する。
func Anonymous(shareToken string) Actor {
	return Actor{ShareToken: shareToken}
}

// Authenticated は認証済みの主体を生成する。
func Authenticated(userID, shareToken string) Actor {
	return Actor{UserID: userID, ShareToken: shareToken}
}

// Policy は文書・コメントに対する行レベル認可述語の集合。
// ステートレスであり、全メソッドは並行安全。
type Policy struct{}

// New はPolicyを生成する。
func New() *Policy {
	return &Policy{}
}

// CanCreateDocument は文書作成の可否を判定する。
// 認証済みで、かつ挿入される所有者がリクエスト主体自身である場合のみ許可する。
func (p *Policy) CanCreateDocument(a Actor, ownerID string) error {
	if !a.IsAuthenticated() {
		return ErrDenied
	}
	if a.UserID != ownerID {
		return ErrDenied
	}
	return nil
}

// CanReadDocument は文書読み取りの可否を判定する。
// 所有者である場合、または文書の共有トークンと一致するトークンを
// 提示した場合（認証の有無を問わない）に許可する。
// 共有トークン未発行の文書は所有者のみが読み取れる。
func (p *Policy) CanReadDocument(a Actor, doc *model.Document) error {
	if doc == nil {
		return ErrDenied
	}
	if a.IsAuthenticated() && a.UserID == doc.OwnerID {
		return nil
	}
	if tokenMatches(a.ShareToken, doc.ShareToken) {
		return nil
	}
	return ErrDenied
}

// CanMutateDocument は文書の更新・削除・共有操作の可否を判定する。
// 所有者のみに許可する。共有トークンは読み取り専用の権能であり、
// 書き込みを許可することはない。
func (p *Policy) CanMutateDocument(a Actor, doc *model.Document) error {
	if doc == nil {
		return ErrDenied
	}
	if !a.IsAuthenticated() || a.UserID != doc.OwnerID {
		return ErrDenied
	}
	return nil
}

// CanCreateComment はコメント投稿の可否を判定する。
// 認証済みの場合はauthorIDがリクエスト主体自身であることを要求する。
// 匿名の場合はauthorIDが空で、かつ対象文書を読み取れる（有効な
// 共有トークンを提示している）ことを要求する。
func (p *Policy) CanCreateComment(a Actor, doc *model.Document, authorID string) error {
	if doc == nil {
		return ErrDenied
	}
	if a.IsAuthenticated() {
		if authorID != a.UserID {
			return ErrDenied
		}
		return p.CanReadDocument(a, doc)
	}
	if authorID != "" {
		return ErrDenied
	}
	return p.CanReadDocument(a, doc)
}

// CanReadComments はコメント一覧・ストリーム購読の可否を判定する。
// 親文書の読み取り権限と同一の述語で判定する。
func (p *Policy) CanReadComments(a Actor, doc *model.Document) error {
	return p.CanReadDocument(a, doc)
}

// tokenMatches は提示トークンと文書の共有トークンを定数時間で比較する。
// どちらかが空の場合は常に不一致とする（未共有文書にトークンで
// アクセスすることはできない）。
func tokenMatches(presented, actual string) bool {
	if presented == "" || actual == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(actual)) == 1
}

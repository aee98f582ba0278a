// Package model はドメインモデルを定義する。
package model

import "time"

// GuestDisplayName は匿名投稿者の表示名。
const GuestDisplayName = "Guest"

// Comment は文書に紐づく1件のコメントを表す。
type Comment struct {
	ID         string
	DocumentID string
	AuthorID   string // 空文字は匿名（ゲスト）投稿を表す
	Body       string // サニタイズ済みHTML（strong/em/ul/liのみ許可）
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CommentWithAuthor はコメントと投稿者の現在の表示名を結合したモデル。
// profilesテーブルとLEFT JOINして取得される。
type CommentWithAuthor struct {
	Comment
	AuthorDisplayName string // 匿名の場合はGuestDisplayName
}

// Package model はドメインモデルを定義する。
package model

import "time"

// Document はアップロードされたPDF文書のメタデータを表す。
type Document struct {
	ID         string
	Name       string // 元のファイル名（ユーザー入力、信頼しない）
	StorageKey string // オブジェクトストレージ上のキー。<epoch-ms>-<sanitized-name>
	OwnerID    string // アップロードしたユーザーのID。作成後は不変
	ShareToken string // 共有トークン。空文字は未共有を表す
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsShared は共有トークンが発行済みかどうかを返す。
func (d *Document) IsShared() bool {
	return d.ShareToken != ""
}

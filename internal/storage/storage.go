// Package storage はPDFバイト列を保持するオブジェクトストレージを抽象化する。
package storage

import (
	"context"
	"io"
	"time"
)

// DefaultPresignExpiry は署名付きGET URLのデフォルト有効期間。
// レンダラーが期限内に取得できなかった場合は再発行を要求する。
const DefaultPresignExpiry = 60 * time.Second

// ObjectStore はオブジェクトストレージ操作のインターフェース。
type ObjectStore interface {
	// Put はオブジェクトを格納する。keyが既存の場合は上書きする。
	Put(ctx context.Context, key, contentType string, body io.Reader) error

	// Delete はオブジェクトを削除する。存在しないkeyに対してもエラーを返さない。
	Delete(ctx context.Context, key string) error

	// PresignGet は短命の署名付きGET URLを発行する。
	// expiresが0以下の場合はDefaultPresignExpiryを使用する。
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// ListKeys はバケット内の全オブジェクトキーを返す。整合性スイープで使用する。
	ListKeys(ctx context.Context) ([]string, error)
}

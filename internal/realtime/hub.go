// Package realtime はコメント変更フィードの購読とファンアウトを提供する。
//
// PostgreSQLのLISTEN/NOTIFYをソースとし、文書IDでフィルタされた
// 購読者へINSERTイベントを配信する。配信順序はストアがコミットした
// 順序に従う。初回一括読み取りと最初のストリームイベントの間に
// 順序保証はないため、購読側はコメントIDで重複を許容・排除する。
package realtime

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/docshare/internal/model"
)

// subscriberBuffer は購読者1つあたりのイベントバッファ数。
// バッファが溢れた場合、遅い購読者へのイベントは破棄される。
const subscriberBuffer = 16

// Event はコメントINSERTの変更通知を表す。
type Event struct {
	Comment model.CommentWithAuthor
}

// Hub は文書IDごとの購読者を管理し、イベントをファンアウトする。
// 全メソッドは並行安全。
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{} // documentID -> 購読チャネル集合
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe は指定文書のイベントチャネルと購読解除関数を返す。
// 購読解除後はチャネルがクローズされ、以降のイベントは配信されない。
// 解除関数は複数回呼び出しても安全。
func (h *Hub) Subscribe(documentID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[documentID] == nil {
		h.subs[documentID] = make(map[chan Event]struct{})
	}
	h.subs[documentID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[documentID], ch)
			if len(h.subs[documentID]) == 0 {
				delete(h.subs, documentID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// Publish は指定文書の全購読者へイベントを配信する。
// バッファが満杯の購読者へはイベントを破棄する（ブロックしない）。
func (h *Hub) Publish(documentID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[documentID] {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping realtime event for slow subscriber",
				slog.String("document_id", documentID),
				slog.String("comment_id", ev.Comment.ID),
			)
		}
	}
}

// SubscriberCount は指定文書の現在の購読者数を返す。テストおよびメトリクス用。
func (h *Hub) SubscriberCount(documentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[documentID])
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/docshare/internal/repository"
)

const (
	// commentChannel はコメントINSERTトリガーが通知するチャネル名。
	commentChannel = "comment_inserts"

	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute

	// pingInterval は接続維持のためのPing間隔。
	pingInterval = 90 * time.Second
)

// notifyPayload はトリガーが送るJSONペイロード。
// 最小限のキーのみを含み、付加情報はDBから再取得する。
type notifyPayload struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}

// NotifyMetrics は受信した通知イベントのメトリクス記録インターフェース。
// nilの場合は記録しない。
type NotifyMetrics interface {
	RecordNotifyEvent()
}

// Listener はPostgreSQLのLISTEN/NOTIFYを購読し、Hubへ転送する。
type Listener struct {
	pqListener *pq.Listener
	comments   repository.CommentRepository
	hub        *Hub
	logger     *slog.Logger
	metrics    NotifyMetrics
}

// NewListener はListenerを生成する。
// databaseURLはlib/pqの接続文字列を指定する。metricsはnil可。
func NewListener(databaseURL string, comments repository.CommentRepository, hub *Hub, logger *slog.Logger, metrics NotifyMetrics) *Listener {
	pql := pq.NewListener(databaseURL, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("notify listener connection event",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		})

	return &Listener{
		pqListener: pql,
		comments:   comments,
		hub:        hub,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start は通知の受信ループを開始する。ctxのキャンセルまでブロックする。
// 通知を受信するたびにコメントを表示名付きで再取得し、Hubへ配信する。
func (l *Listener) Start(ctx context.Context) error {
	if err := l.pqListener.Listen(commentChannel); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", commentChannel, err)
	}
	defer l.pqListener.Close()

	l.logger.Info("comment change feed listener started",
		slog.String("channel", commentChannel),
	)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("comment change feed listener stopped")
			return nil

		case n := <-l.pqListener.Notify:
			// 再接続直後はnilが届くことがある
			if n == nil {
				continue
			}
			l.handleNotification(ctx, n.Extra)

		case <-pingTicker.C:
			if err := l.pqListener.Ping(); err != nil {
				l.logger.Error("notify listener ping failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// handleNotification は通知1件を処理する。
// ペイロードを解析し、コメントを投稿者の表示名付きで取得してHubへ配信する。
func (l *Listener) handleNotification(ctx context.Context, payload string) {
	if l.metrics != nil {
		l.metrics.RecordNotifyEvent()
	}

	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		l.logger.Error("invalid notify payload",
			slog.String("payload", payload),
			slog.String("error", err.Error()),
		)
		return
	}

	comment, err := l.comments.FindByIDWithAuthor(ctx, p.ID)
	if err != nil {
		l.logger.Error("failed to load notified comment",
			slog.String("comment_id", p.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if comment == nil {
		// 通知到達前に文書ごと削除された場合
		return
	}

	l.hub.Publish(p.DocumentID, Event{Comment: *comment})
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/docshare/internal/policy"
	"github.com/hitoshi/docshare/internal/realtime"
)

// streamHeartbeatInterval はSSE接続維持のためのコメント行送信間隔。
const streamHeartbeatInterval = 30 * time.Second

// StreamAuthorizer はストリーム購読前の読み取り権限チェックを行うインターフェース。
type StreamAuthorizer interface {
	// Authorize は主体が文書のコメントを読み取れるかを判定する。
	Authorize(ctx context.Context, actor policy.Actor, documentID string) error
}

// StreamSubscriber は文書のコメント変更イベントを購読するインターフェース。
type StreamSubscriber interface {
	// Subscribe はイベントチャネルと購読解除関数を返す。
	Subscribe(documentID string) (<-chan realtime.Event, func())
}

// StreamMetrics はストリーム接続数の記録インターフェース。
type StreamMetrics interface {
	StreamConnected()
	StreamDisconnected()
}

// StreamHandler はコメント変更フィードのSSEハンドラー。
type StreamHandler struct {
	authorizer StreamAuthorizer
	subscriber StreamSubscriber
	metrics    StreamMetrics // nilの場合は記録しない
}

// NewStreamHandler はStreamHandlerを生成する。
func NewStreamHandler(authorizer StreamAuthorizer, subscriber StreamSubscriber, metrics StreamMetrics) *StreamHandler {
	return &StreamHandler{
		authorizer: authorizer,
		subscriber: subscriber,
		metrics:    metrics,
	}
}

// Stream は文書のコメントINSERTイベントをServer-Sent Eventsで配信する。
// 購読前に親文書の読み取りと同一の述語で認可する。
// クライアント切断で購読は解除され、以降のイベントは配信されない。
// GET /api/documents/:id/comments/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	documentID := chi.URLParam(r, "id")

	if err := h.authorizer.Authorize(r.Context(), actor, documentID); err != nil {
		handleServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("response writer does not support flushing, cannot stream")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := h.subscriber.Subscribe(documentID)
	defer cancel()

	if h.metrics != nil {
		h.metrics.StreamConnected()
		defer h.metrics.StreamDisconnected()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// 接続確立をクライアントに通知
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSEComment(w, &ev); err != nil {
				slog.Warn("failed to write stream event",
					slog.String("document_id", documentID),
					slog.String("error", err.Error()),
				)
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEComment はコメントイベントをSSEフレームとして書き込む。
func writeSSEComment(w http.ResponseWriter, ev *realtime.Event) error {
	data, err := json.Marshal(toCommentResponse(&ev.Comment))
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: comment\ndata: %s\n\n", data)
	return err
}

// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやリスナーから利用する。
type MetricsCollector interface {
	RecordUpload(bytes int64)
	RecordUploadRejected(reason string)
	RecordCommentPosted(anonymous bool)
	RecordNotifyEvent()
	RecordHTTPStatus(statusCode int)
	RecordPresignLatency(duration time.Duration)
	StreamConnected()
	StreamDisconnected()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	uploads        prometheus.Counter
	uploadBytes    prometheus.Counter
	uploadRejected *prometheus.CounterVec
	comments       *prometheus.CounterVec
	notifyEvents   prometheus.Counter
	httpStatus     *prometheus.CounterVec
	presignLatency prometheus.Histogram
	streamConns    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docshare_uploads_total",
			Help: "PDFアップロード成功の合計数",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docshare_upload_bytes_total",
			Help: "アップロードされたバイト数の合計",
		}),
		uploadRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docshare_upload_rejected_total",
			Help: "拒否されたアップロードの合計数（理由別）",
		}, []string{"reason"}),
		comments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docshare_comments_total",
			Help: "投稿されたコメントの合計数（投稿者種別別）",
		}, []string{"author"}),
		notifyEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docshare_notify_events_total",
			Help: "変更フィードから受信した通知の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docshare_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		presignLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docshare_presign_latency_seconds",
			Help:    "署名付きURL発行のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		streamConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docshare_stream_connections",
			Help: "現在アクティブなコメントストリーム接続数",
		}),
	}

	reg.MustRegister(
		c.uploads,
		c.uploadBytes,
		c.uploadRejected,
		c.comments,
		c.notifyEvents,
		c.httpStatus,
		c.presignLatency,
		c.streamConns,
	)

	return c
}

// RecordUpload はアップロード成功とそのバイト数を記録する。
func (c *Collector) RecordUpload(bytes int64) {
	c.uploads.Inc()
	c.uploadBytes.Add(float64(bytes))
}

// RecordUploadRejected は拒否されたアップロードを理由付きで記録する。
func (c *Collector) RecordUploadRejected(reason string) {
	c.uploadRejected.WithLabelValues(reason).Inc()
}

// RecordCommentPosted はコメント投稿を投稿者種別付きで記録する。
func (c *Collector) RecordCommentPosted(anonymous bool) {
	author := "user"
	if anonymous {
		author = "guest"
	}
	c.comments.WithLabelValues(author).Inc()
}

// RecordNotifyEvent は変更フィードからの通知受信を記録する。
func (c *Collector) RecordNotifyEvent() {
	c.notifyEvents.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPresignLatency は署名付きURL発行のレイテンシを記録する。
func (c *Collector) RecordPresignLatency(duration time.Duration) {
	c.presignLatency.Observe(duration.Seconds())
}

// StreamConnected はストリーム接続の開始を記録する。
func (c *Collector) StreamConnected() {
	c.streamConns.Inc()
}

// StreamDisconnected はストリーム接続の終了を記録する。
func (c *Collector) StreamDisconnected() {
	c.streamConns.Dec()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

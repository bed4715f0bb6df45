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
// サービス層、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordLend()
	RecordReturn()
	RecordOrderPlaced()
	RecordOrderCompleted()
	RecordBadgeAwarded(key string)
	RecordCleanup(kind string, deleted int64)
	RecordHTTPStatus(statusCode int)
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	lends           prometheus.Counter
	returns         prometheus.Counter
	ordersPlaced    prometheus.Counter
	ordersCompleted prometheus.Counter
	badgesAwarded   *prometheus.CounterVec
	cleanupDeleted  *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		lends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bradspel_lends_total",
			Help: "ゲーム貸出の合計数",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bradspel_returns_total",
			Help: "ゲーム返却の合計数",
		}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bradspel_orders_placed_total",
			Help: "テーブル注文の作成数",
		}),
		ordersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bradspel_orders_completed_total",
			Help: "テーブル注文の完了数",
		}),
		badgesAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bradspel_badges_awarded_total",
			Help: "バッジ種別ごとの付与数",
		}, []string{"badge"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bradspel_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除したレコード数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bradspel_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bradspel_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.lends,
		c.returns,
		c.ordersPlaced,
		c.ordersCompleted,
		c.badgesAwarded,
		c.cleanupDeleted,
		c.httpStatus,
		c.httpDuration,
	)

	return c
}

// RecordLend は貸出を記録する。
func (c *Collector) RecordLend() {
	c.lends.Inc()
}

// RecordReturn は返却を記録する。
func (c *Collector) RecordReturn() {
	c.returns.Inc()
}

// RecordOrderPlaced は注文の作成を記録する。
func (c *Collector) RecordOrderPlaced() {
	c.ordersPlaced.Inc()
}

// RecordOrderCompleted は注文の完了を記録する。
func (c *Collector) RecordOrderCompleted() {
	c.ordersCompleted.Inc()
}

// RecordBadgeAwarded はバッジ付与を記録する。
func (c *Collector) RecordBadgeAwarded(key string) {
	c.badgesAwarded.WithLabelValues(key).Inc()
}

// RecordCleanup はクリーンアップで削除した件数を記録する。
func (c *Collector) RecordCleanup(kind string, deleted int64) {
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(deleted))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPRequest はHTTPリクエストのステータスと処理時間を記録する。
// route はchiのルートパターン（例: /lend/{gameId}）で、IDごとに系列が増えないようにする。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.RecordHTTPStatus(statusCode)
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)

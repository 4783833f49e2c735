// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// アクション層・Webhook・決済・HTTP層から利用する。
type Collector struct {
	httpStatus       *prometheus.CounterVec
	actionDuration   *prometheus.HistogramVec
	actionFailures   *prometheus.CounterVec
	webhookDelivered *prometheus.CounterVec
	ordersCreated    prometheus.Counter
	checkoutSessions *prometheus.CounterVec
	revalidations    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketbox_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketbox_action_duration_seconds",
			Help:    "アクション実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketbox_action_failures_total",
			Help: "失敗したアクションの合計数",
		}, []string{"operation", "kind"}),
		webhookDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketbox_webhook_deliveries_total",
			Help: "受信したWebhookの合計数",
		}, []string{"provider", "outcome"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketbox_orders_created_total",
			Help: "作成された注文の合計数",
		}),
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketbox_checkout_sessions_total",
			Help: "決済セッション作成の合計数",
		}, []string{"outcome"}),
		revalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketbox_revalidations_total",
			Help: "ページキャッシュ無効化の合計数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.actionDuration,
		c.actionFailures,
		c.webhookDelivered,
		c.ordersCreated,
		c.checkoutSessions,
		c.revalidations,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveAction はアクションの実行時間を記録する。
func (c *Collector) ObserveAction(operation string, d time.Duration) {
	c.actionDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordActionFailure はアクションの失敗をエラー分類付きで記録する。
func (c *Collector) RecordActionFailure(operation, kind string) {
	c.actionFailures.WithLabelValues(operation, kind).Inc()
}

// RecordWebhook はWebhookの処理結果を記録する。
func (c *Collector) RecordWebhook(provider, outcome string) {
	c.webhookDelivered.WithLabelValues(provider, outcome).Inc()
}

// RecordOrderCreated は注文作成を記録する。
func (c *Collector) RecordOrderCreated() {
	c.ordersCreated.Inc()
}

// RecordCheckoutSession は決済セッション作成の結果を記録する。
func (c *Collector) RecordCheckoutSession(outcome string) {
	c.checkoutSessions.WithLabelValues(outcome).Inc()
}

// RecordRevalidation はページキャッシュ無効化の結果を記録する。
func (c *Collector) RecordRevalidation(outcome string) {
	c.revalidations.WithLabelValues(outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// statusWriter はレスポンスのステータスコードを記録する。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware はレスポンスのステータスコードを集計するミドルウェアを返す。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			c.RecordHTTPStatus(sw.status)
		})
	}
}

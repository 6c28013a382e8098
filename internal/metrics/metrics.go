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
// signup.Controller、訪問者レジストリ、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSignup(outcome string)
	RecordStoreLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	SetActiveVisitors(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups        *prometheus.CounterVec
	storeLatency   prometheus.Histogram
	httpStatus     *prometheus.CounterVec
	activeVisitors prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpage_signup_total",
			Help: "結果別の登録送信数",
		}, []string{"outcome"}),
		storeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "launchpage_store_latency_seconds",
			Help:    "リモートストアへの挿入レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpage_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		activeVisitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "launchpage_active_visitors",
			Help: "フォーム状態を保持している訪問者数",
		}),
	}

	reg.MustRegister(
		c.signups,
		c.storeLatency,
		c.httpStatus,
		c.activeVisitors,
	)

	return c
}

// RecordSignup は送信結果を記録する。
func (c *Collector) RecordSignup(outcome string) {
	c.signups.WithLabelValues(outcome).Inc()
}

// RecordStoreLatency はストア挿入のレイテンシを記録する。
func (c *Collector) RecordStoreLatency(duration time.Duration) {
	c.storeLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetActiveVisitors は保持中の訪問者数を設定する。
func (c *Collector) SetActiveVisitors(n int) {
	c.activeVisitors.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

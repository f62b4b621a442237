// Package metrics はサービスごとのPrometheusメトリクスを提供する。
//
// レジストリはサービスのインスタンスごとに持ち、グローバルなレジストリは使わない。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/gatekeep/pkg/event"
)

// 転送結果の区分。
const (
	ProxyRelayed = "relayed"
	ProxyFailed  = "failed"
)

// Metrics は1つのサービスのメトリクス一式。
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authOutcomesTotal   *prometheus.CounterVec
	proxyOutcomesTotal  *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	eventsObserved      *prometheus.CounterVec
}

// New はserviceラベル付きのメトリクスを生成して専用レジストリに登録する。
func New(service string) *Metrics {
	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request duration in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"handler", "method"},
		),
		authOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_delegations_total",
				Help:        "Outcomes of delegated token verification",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		proxyOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "proxy_requests_total",
				Help:        "Outcomes of requests forwarded to upstream services",
				ConstLabels: labels,
			},
			[]string{"route", "outcome"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "events_published_total",
				Help:        "Domain events publish attempts by result",
				ConstLabels: labels,
			},
			[]string{"channel", "result"},
		),
		eventsObserved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "events_observed_total",
				Help:        "Domain events observed by the log subscriber",
				ConstLabels: labels,
			},
			[]string{"channel"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authOutcomesTotal,
		m.proxyOutcomesTotal,
		m.eventsPublished,
		m.eventsObserved,
	)
	return m
}

// Middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
// handlerラベルにはルートのパターン（/users/:userId など）を使い、未定義のルートは "unmatched" にまとめる。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.httpRequestDuration.WithLabelValues(handler, c.Request.Method).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(handler, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler は/metrics用のハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAuth は委譲した認証の結果を記録する。
func (m *Metrics) ObserveAuth(outcome string) {
	m.authOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveProxy は上流への転送結果を記録する。
func (m *Metrics) ObserveProxy(route, outcome string) {
	m.proxyOutcomesTotal.WithLabelValues(route, outcome).Inc()
}

// ObservePublish はイベント発行の結果を記録する。
func (m *Metrics) ObservePublish(channel event.Channel, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(channel.String(), result).Inc()
}

// ObserveEvent は購読者が観測したイベントを記録する。
func (m *Metrics) ObserveEvent(channel event.Channel) {
	m.eventsObserved.WithLabelValues(channel.String()).Inc()
}

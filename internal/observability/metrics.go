// Package observability はPrometheusのメトリクスをまとめる。
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証系の結果ラベル
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeLocked   = "locked"
	OutcomeDisabled = "disabled"
)

// Metricsはプロセスごとに1つ作ってDIする。
// nilのままでも各メソッドは何もしない（テストで省略できる）
type Metrics struct {
	registry *prometheus.Registry

	authAttempts    *prometheus.CounterVec
	lockouts        prometheus.Counter
	revocations     *prometheus.CounterVec
	sweeperPurged   *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	recoveryEvents  *prometheus.CounterVec
	notifyFailures  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salon_auth_attempts_total",
			Help: "Authentication attempts by method and outcome",
		}, []string{"method", "outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salon_auth_lockouts_total",
			Help: "Accounts locked after repeated login failures",
		}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salon_token_revocations_total",
			Help: "Session revocations by kind (single, all)",
		}, []string{"kind"}),
		sweeperPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salon_sweeper_purged_total",
			Help: "Expired rows removed by the background sweeper",
		}, []string{"table"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salon_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"route"}),
		recoveryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salon_recovery_events_total",
			Help: "Password recovery steps by flow and outcome",
		}, []string{"flow", "outcome"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salon_notify_failures_total",
			Help: "Notification deliveries that failed",
		}, []string{"channel"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.authAttempts,
		m.lockouts,
		m.revocations,
		m.sweeperPurged,
		m.rateLimited,
		m.recoveryEvents,
		m.notifyFailures,
		m.requestDuration,
	)
	return m
}

// /metrics 用
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) AuthAttempt(method string, outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) Revocation(kind string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(kind).Inc()
}

func (m *Metrics) SweeperPurged(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweeperPurged.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

func (m *Metrics) RecoveryEvent(flow string, outcome string) {
	if m == nil {
		return
	}
	m.recoveryEvents.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) NotifyFailure(channel string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) ObserveRequest(method string, route string, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

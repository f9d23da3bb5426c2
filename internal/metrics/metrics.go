// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証試行の結果ラベル。
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeValidation         = "validation"
	OutcomeError              = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、監査、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordAttempt(outcome string)
	RecordLockout()
	RecordRecovery()
	RecordAuditFailure()
	RecordAuditDropped()
	RecordAuthLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	attempts      *prometheus.CounterVec
	lockouts      prometheus.Counter
	recoveries    prometheus.Counter
	auditFailures prometheus.Counter
	auditDropped  prometheus.Counter
	authLatency   prometheus.Histogram
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_lockouts_total",
			Help: "ロックされたアカウントの合計数",
		}),
		recoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_lockout_recoveries_total",
			Help: "クールダウン経過により解除されたロックの合計数",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_audit_failures_total",
			Help: "監査ログ書き込み失敗の合計数",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_audit_dropped_total",
			Help: "キュー溢れにより破棄された監査ログの合計数",
		}),
		authLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_authenticate_duration_seconds",
			Help:    "認証処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.attempts,
		c.lockouts,
		c.recoveries,
		c.auditFailures,
		c.auditDropped,
		c.authLatency,
		c.httpStatus,
	)

	return c
}

// RecordAttempt は結果別のログイン試行を記録する。
func (c *Collector) RecordAttempt(outcome string) {
	c.attempts.WithLabelValues(outcome).Inc()
}

// RecordLockout はアカウントのロックを記録する。
func (c *Collector) RecordLockout() {
	c.lockouts.Inc()
}

// RecordRecovery はロック解除を記録する。
func (c *Collector) RecordRecovery() {
	c.recoveries.Inc()
}

// RecordAuditFailure は監査ログの書き込み失敗を記録する。
func (c *Collector) RecordAuditFailure() {
	c.auditFailures.Inc()
}

// RecordAuditDropped は破棄された監査ログを記録する。
func (c *Collector) RecordAuditDropped() {
	c.auditDropped.Inc()
}

// RecordAuthLatency は認証処理のレイテンシを記録する。
func (c *Collector) RecordAuthLatency(duration time.Duration) {
	c.authLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAttempt(string) {}
func (Nop) RecordLockout() {}
func (Nop) RecordRecovery() {}
func (Nop) RecordAuditFailure() {}
func (Nop) RecordAuditDropped() {}
func (Nop) RecordAuthLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

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

// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authdesk"

// 認証操作の種別（auth_attempts_totalのactionラベル）
const (
	ActionSignIn  = "sign_in"
	ActionSignUp  = "sign_up"
	ActionSignOut = "sign_out"
	ActionProfile = "profile_update"
)

// 認証操作の結果（auth_attempts_totalのresultラベル）
const (
	ResultSuccess     = "success"
	ResultInvalid     = "invalid"     // 入力検証エラー
	ResultRejected    = "rejected"    // 認証サービスによる拒否
	ResultUnavailable = "unavailable" // 認証サービスに到達不能
	ResultPending     = "pending"     // メール確認待ち
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(action, result string)
	RecordRateLimited(route string)
	RecordHTTPStatus(statusCode int)
	ObserveIdentityRequest(operation, outcome string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts     *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	identityRequests *prometheus.CounterVec
	identityLatency  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "認証操作の試行回数（操作・結果別）",
		}, []string{"action", "result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "レート制限で拒否されたリクエスト数",
		}, []string{"route"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_status_total",
			Help:      "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTPリクエストの処理時間（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		identityRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_requests_total",
			Help:      "認証サービスへのリクエスト数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		identityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_request_duration_seconds",
			Help:      "認証サービスへのリクエストのレイテンシ（秒）",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.rateLimited,
		c.httpStatus,
		c.httpDuration,
		c.identityRequests,
		c.identityLatency,
	)

	return c
}

// RecordAuthAttempt は認証操作の試行を記録する。
func (c *Collector) RecordAuthAttempt(action, result string) {
	c.authAttempts.WithLabelValues(action, result).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveIdentityRequest は認証サービスへのリクエスト結果とレイテンシを記録する。
func (c *Collector) ObserveIdentityRequest(operation, outcome string, duration time.Duration) {
	c.identityRequests.WithLabelValues(operation, outcome).Inc()
	c.identityLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Middleware はHTTPステータスと処理時間を記録するミドルウェアを返す。
// ルートラベルにはchiのルートパターンを使い、未定義パスは "unmatched" にまとめる。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			c.RecordHTTPStatus(rec.statusCode)
			c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

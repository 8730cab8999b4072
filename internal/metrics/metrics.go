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
// サービス層・ワーカー・HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordVerification(result string)
	RecordReaperDeleted(count int64)
	RecordMailSent(transport string, duration time.Duration)
	RecordMailFailure(transport string)
	RecordOrderPlaced()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations *prometheus.CounterVec
	verifications *prometheus.CounterVec
	reaperDeleted prometheus.Counter
	mailLatency   *prometheus.HistogramVec
	mailFail      *prometheus.CounterVec
	ordersPlaced  prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_registrations_total",
			Help: "登録リクエストの結果別件数",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_verifications_total",
			Help: "確認コード検証の結果別件数",
		}, []string{"result"}),
		reaperDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_reaper_deleted_total",
			Help: "期限切れで削除された未確認アカウントの合計数",
		}),
		mailLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_mail_send_seconds",
			Help:    "メール送信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport"}),
		mailFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_mail_fail_total",
			Help: "メール送信失敗の合計数",
		}, []string{"transport"}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "確定した注文の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.registrations,
		c.verifications,
		c.reaperDeleted,
		c.mailLatency,
		c.mailFail,
		c.ordersPlaced,
		c.httpStatus,
	)

	return c
}

// RecordRegistration は登録結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordVerification は確認コード検証結果を記録する。
func (c *Collector) RecordVerification(result string) {
	c.verifications.WithLabelValues(result).Inc()
}

// RecordReaperDeleted は期限切れアカウントの削除数を記録する。
func (c *Collector) RecordReaperDeleted(count int64) {
	c.reaperDeleted.Add(float64(count))
}

// RecordMailSent はメール送信成功とレイテンシを記録する。
func (c *Collector) RecordMailSent(transport string, duration time.Duration) {
	c.mailLatency.WithLabelValues(transport).Observe(duration.Seconds())
}

// RecordMailFailure はメール送信失敗を記録する。
func (c *Collector) RecordMailFailure(transport string) {
	c.mailFail.WithLabelValues(transport).Inc()
}

// RecordOrderPlaced は注文確定を記録する。
func (c *Collector) RecordOrderPlaced() {
	c.ordersPlaced.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成やテストで使う。
type Nop struct{}

func (Nop) RecordRegistration(string) {}
func (Nop) RecordVerification(string) {}
func (Nop) RecordReaperDeleted(int64) {}
func (Nop) RecordMailSent(string, time.Duration) {}
func (Nop) RecordMailFailure(string) {}
func (Nop) RecordOrderPlaced() {}
func (Nop) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

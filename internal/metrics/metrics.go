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
// ストアやルックアップクライアントから利用する。
type MetricsCollector interface {
	RecordFavoriteMutation(op string, success bool)
	RecordRecipeMutation(op string, success bool)
	RecordImageUpload(success bool)
	RecordImageDelete(success bool)
	RecordSnapshotPush(store string)
	RecordLookupStatus(statusCode int)
	RecordLookupLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	favoriteMutations *prometheus.CounterVec
	recipeMutations   *prometheus.CounterVec
	imageUploads      *prometheus.CounterVec
	imageDeletes      *prometheus.CounterVec
	snapshotPushes    *prometheus.CounterVec
	lookupStatus      *prometheus.CounterVec
	lookupLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		favoriteMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastify_favorite_mutations_total",
			Help: "お気に入り操作の合計数（操作種別・成否別）",
		}, []string{"op", "result"}),
		recipeMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastify_recipe_mutations_total",
			Help: "投稿レシピ操作の合計数（操作種別・成否別）",
		}, []string{"op", "result"}),
		imageUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastify_image_uploads_total",
			Help: "レシピ画像アップロードの合計数（成否別）",
		}, []string{"result"}),
		imageDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastify_image_deletes_total",
			Help: "レシピ画像削除の合計数（成否別）",
		}, []string{"result"}),
		snapshotPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastify_snapshot_pushes_total",
			Help: "ライブ購読によるスナップショット配信の合計数（ストア別）",
		}, []string{"store"}),
		lookupStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastify_lookup_status_total",
			Help: "レシピ検索APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		lookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tastify_lookup_latency_seconds",
			Help:    "レシピ検索APIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.favoriteMutations,
		c.recipeMutations,
		c.imageUploads,
		c.imageDeletes,
		c.snapshotPushes,
		c.lookupStatus,
		c.lookupLatency,
	)

	return c
}

// resultLabel は成否をラベル値に変換する。
func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordFavoriteMutation はお気に入り操作を記録する。
func (c *Collector) RecordFavoriteMutation(op string, success bool) {
	c.favoriteMutations.WithLabelValues(op, resultLabel(success)).Inc()
}

// RecordRecipeMutation は投稿レシピ操作を記録する。
func (c *Collector) RecordRecipeMutation(op string, success bool) {
	c.recipeMutations.WithLabelValues(op, resultLabel(success)).Inc()
}

// RecordImageUpload は画像アップロードを記録する。
func (c *Collector) RecordImageUpload(success bool) {
	c.imageUploads.WithLabelValues(resultLabel(success)).Inc()
}

// RecordImageDelete は画像削除を記録する。
func (c *Collector) RecordImageDelete(success bool) {
	c.imageDeletes.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSnapshotPush はスナップショット配信を記録する。
func (c *Collector) RecordSnapshotPush(store string) {
	c.snapshotPushes.WithLabelValues(store).Inc()
}

// RecordLookupStatus はレシピ検索APIのHTTPステータスコードを記録する。
func (c *Collector) RecordLookupStatus(statusCode int) {
	c.lookupStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLookupLatency はレシピ検索APIのレイテンシを記録する。
func (c *Collector) RecordLookupLatency(duration time.Duration) {
	c.lookupLatency.Observe(duration.Seconds())
}

// Handler は/metricsエンドポイント用のHTTPハンドラーを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

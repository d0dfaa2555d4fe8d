// Package metrics collects Prometheus metrics for upstream calls, token refreshes, comparisons and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by [Collector] and [Nop].
type Recorder interface {
	RecordUpstreamRequest(endpoint string, status int, d time.Duration)
	RecordUpstreamRetry(endpoint string)
	RecordTokenRefresh(result string)
	RecordHTTPRequest(route string, status int, d time.Duration)
	RecordComparison(kind string, common int)
	RecordPlaylistBatch(ok bool)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamRetries  *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	comparisons      *prometheus.CounterVec
	commonItems      *prometheus.HistogramVec
	playlistBatches  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incommon_upstream_requests_total",
			Help: "Spotify Web API requests by endpoint and status code.",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "incommon_upstream_latency_seconds",
			Help:    "Spotify Web API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incommon_upstream_retries_total",
			Help: "Retried Spotify Web API requests.",
		}, []string{"endpoint"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incommon_token_refresh_total",
			Help: "OAuth token refresh attempts by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incommon_http_requests_total",
			Help: "Served HTTP requests by route and status code.",
		}, []string{"route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "incommon_http_latency_seconds",
			Help:    "Served HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incommon_comparisons_total",
			Help: "Completed library comparisons by kind.",
		}, []string{"kind"}),
		commonItems: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "incommon_common_items",
			Help:    "Number of items two libraries had in common.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"kind"}),
		playlistBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incommon_playlist_batches_total",
			Help: "Playlist add-tracks batches by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.upstreamRetries,
		c.tokenRefreshes,
		c.httpRequests,
		c.httpLatency,
		c.comparisons,
		c.commonItems,
		c.playlistBatches,
	)
	return c
}

// RecordUpstreamRequest records one attempt against the Spotify API. A status of 0 means a network error.
func (c *Collector) RecordUpstreamRequest(endpoint string, status int, d time.Duration) {
	c.upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (c *Collector) RecordUpstreamRetry(endpoint string) {
	c.upstreamRetries.WithLabelValues(endpoint).Inc()
}

func (c *Collector) RecordTokenRefresh(result string) {
	c.tokenRefreshes.WithLabelValues(result).Inc()
}

func (c *Collector) RecordHTTPRequest(route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) RecordComparison(kind string, common int) {
	c.comparisons.WithLabelValues(kind).Inc()
	c.commonItems.WithLabelValues(kind).Observe(float64(common))
}

func (c *Collector) RecordPlaylistBatch(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.playlistBatches.WithLabelValues(result).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordUpstreamRequest(string, int, time.Duration) {}
func (Nop) RecordUpstreamRetry(string)                       {}
func (Nop) RecordTokenRefresh(string)                        {}
func (Nop) RecordHTTPRequest(string, int, time.Duration)     {}
func (Nop) RecordComparison(string, int)                     {}
func (Nop) RecordPlaylistBatch(bool)                         {}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

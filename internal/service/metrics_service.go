package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	feedSnapshots   prometheus.Counter
	feedErrors      prometheus.Counter
	feedDropped     prometheus.Counter
	sensitiveEvents *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	exportJobs      *prometheus.CounterVec
	records         prometheus.Gauge
	recordsWithCard prometheus.Gauge
	onlineUsers     prometheus.Gauge
	activeSessions  prometheus.Gauge
	presenceWatches prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	feedSnapshotCount    uint64
	feedErrorCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	feedSnapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "record_feed_snapshots_total",
		Help: "Snapshots applied from the record feed",
	})

	feedErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "record_feed_errors_total",
		Help: "Errors reported by the record feed",
	})

	feedDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "record_feed_dropped_total",
		Help: "Malformed record documents rejected at the feed boundary",
	})

	sensitiveEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "record_sensitive_events_total",
		Help: "Newly captured sensitive data events",
	}, []string{"kind"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "record_mutations_total",
		Help: "Record mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Export jobs by format and final status",
	}, []string{"format", "status"})

	records := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "records_visible",
		Help: "Records in the current snapshot",
	})

	recordsWithCard := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "records_with_card",
		Help: "Records in the current snapshot carrying card data",
	})

	onlineUsers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_online_users",
		Help: "Presence keys currently marked online",
	})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "operator_sessions_active",
		Help: "Signed-in operator sessions",
	})

	presenceWatches := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_watches_open",
		Help: "Per-record presence watches currently open",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		feedSnapshots, feedErrors, feedDropped, sensitiveEvents, mutations, exportJobs,
		records, recordsWithCard, onlineUsers, activeSessions, presenceWatches,
		goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		feedSnapshots:   feedSnapshots,
		feedErrors:      feedErrors,
		feedDropped:     feedDropped,
		sensitiveEvents: sensitiveEvents,
		mutations:       mutations,
		exportJobs:      exportJobs,
		records:         records,
		recordsWithCard: recordsWithCard,
		onlineUsers:     onlineUsers,
		activeSessions:  activeSessions,
		presenceWatches: presenceWatches,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSnapshot records an applied snapshot and refreshes the record gauges.
func (m *MetricsService) ObserveSnapshot(stats models.RecordStats) {
	if m == nil {
		return
	}
	m.feedSnapshots.Inc()
	atomic.AddUint64(&m.feedSnapshotCount, 1)
	m.records.Set(float64(stats.Total))
	m.recordsWithCard.Set(float64(stats.WithCard))
}

// ObserveFeedError counts a record feed failure.
func (m *MetricsService) ObserveFeedError() {
	if m == nil {
		return
	}
	m.feedErrors.Inc()
	atomic.AddUint64(&m.feedErrorCount, 1)
}

// ObserveDropped counts malformed documents rejected by the feed.
func (m *MetricsService) ObserveDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.feedDropped.Add(float64(n))
}

// ObserveSensitiveEvent counts a newly captured card or personal data event.
func (m *MetricsService) ObserveSensitiveEvent(kind string) {
	if m == nil {
		return
	}
	m.sensitiveEvents.WithLabelValues(kind).Inc()
}

// ObserveMutation counts a record mutation outcome.
func (m *MetricsService) ObserveMutation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.mutations.WithLabelValues(operation, outcome).Inc()
}

// ObserveExportJob counts a finished export job.
func (m *MetricsService) ObserveExportJob(format models.ExportFormat, status models.ExportJobStatus) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(string(format), string(status)).Inc()
}

// SetOnlineUsers updates the global online gauge.
func (m *MetricsService) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

// SetActiveSessions updates the signed-in session gauge.
func (m *MetricsService) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SetPresenceWatches updates the open presence watch gauge.
func (m *MetricsService) SetPresenceWatches(n int) {
	if m == nil {
		return
	}
	m.presenceWatches.Set(float64(n))
}

// Snapshot returns aggregated metrics suitable for the stats endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		FeedSnapshots:            atomic.LoadUint64(&m.feedSnapshotCount),
		FeedErrors:               atomic.LoadUint64(&m.feedErrorCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

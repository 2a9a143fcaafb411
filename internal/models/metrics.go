package models

import "time"

// SystemMetrics is a lightweight snapshot of instrumentation exposed next to the dashboard stats.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	FeedSnapshots            uint64    `json:"feed_snapshots"`
	FeedErrors               uint64    `json:"feed_errors"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

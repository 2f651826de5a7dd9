package series

import (
	"sync/atomic"
	"time"

	"github.com/aaronlmathis/homemonitor/internal/metrics"
)

// HealthMetrics tracks counters for the refresh pipeline and store
type HealthMetrics struct {
	seriesCount       int64
	totalPointsStored int64
	refreshCount      int64
	refreshErrors     int64
	droppedEntries    int64
	wsClientCount     int64

	// Unix nanos of the last completed refresh attempt; zero until the
	// first attempt finishes, which gates readiness.
	lastRefreshNanos int64
}

// NewHealthMetrics creates a new health metrics tracker
func NewHealthMetrics() *HealthMetrics {
	return &HealthMetrics{}
}

// IncrementSeriesCount increments the active series count
func (h *HealthMetrics) IncrementSeriesCount() {
	n := atomic.AddInt64(&h.seriesCount, 1)
	metrics.UpdateSeriesCount(int(n))
}

// DecrementSeriesCount decrements the active series count
func (h *HealthMetrics) DecrementSeriesCount() {
	n := atomic.AddInt64(&h.seriesCount, -1)
	metrics.UpdateSeriesCount(int(n))
}

// RecordPointsStored records points accepted into a stored series
func (h *HealthMetrics) RecordPointsStored(n int64) {
	atomic.AddInt64(&h.totalPointsStored, n)
	metrics.RecordSeriesPoints(int(n))
}

// RecordRefresh records a completed refresh attempt
func (h *HealthMetrics) RecordRefresh(hasError bool) {
	atomic.AddInt64(&h.refreshCount, 1)
	if hasError {
		atomic.AddInt64(&h.refreshErrors, 1)
	}
	atomic.StoreInt64(&h.lastRefreshNanos, time.Now().UnixNano())
}

// RecordDroppedEntry records a feed entry excluded from a series
func (h *HealthMetrics) RecordDroppedEntry() {
	atomic.AddInt64(&h.droppedEntries, 1)
}

// SetWSClientCount sets the current WebSocket client count
func (h *HealthMetrics) SetWSClientCount(count int64) {
	atomic.StoreInt64(&h.wsClientCount, count)
}

// Ready reports whether at least one refresh attempt has completed
func (h *HealthMetrics) Ready() bool {
	return atomic.LoadInt64(&h.lastRefreshNanos) != 0
}

// GetSnapshot returns a snapshot of current health metrics
func (h *HealthMetrics) GetSnapshot() HealthSnapshot {
	snapshot := HealthSnapshot{
		SeriesCount:       atomic.LoadInt64(&h.seriesCount),
		TotalPointsStored: atomic.LoadInt64(&h.totalPointsStored),
		RefreshCount:      atomic.LoadInt64(&h.refreshCount),
		RefreshErrors:     atomic.LoadInt64(&h.refreshErrors),
		DroppedEntries:    atomic.LoadInt64(&h.droppedEntries),
		WSClientCount:     atomic.LoadInt64(&h.wsClientCount),
		Timestamp:         time.Now(),
	}
	if nanos := atomic.LoadInt64(&h.lastRefreshNanos); nanos != 0 {
		snapshot.LastRefresh = time.Unix(0, nanos)
	}
	return snapshot
}

// HealthSnapshot represents a point-in-time snapshot of health metrics
type HealthSnapshot struct {
	SeriesCount       int64     `json:"series_count"`
	TotalPointsStored int64     `json:"total_points_stored"`
	RefreshCount      int64     `json:"refresh_count"`
	RefreshErrors     int64     `json:"refresh_errors"`
	DroppedEntries    int64     `json:"dropped_entries"`
	WSClientCount     int64     `json:"ws_client_count"`
	LastRefresh       time.Time `json:"last_refresh,omitzero"`
	Timestamp         time.Time `json:"timestamp"`
}

// IsHealthy returns true if the refresh pipeline is operating normally
func (s HealthSnapshot) IsHealthy() bool {
	if s.RefreshCount == 0 {
		return false
	}
	// A run of failures with no successes means every channel is stale.
	return s.RefreshErrors < s.RefreshCount
}

// GetStatus returns a human-readable status string
func (s HealthSnapshot) GetStatus() string {
	switch {
	case s.RefreshCount == 0:
		return "waiting for first refresh"
	case s.RefreshErrors == 0:
		return "healthy"
	case s.RefreshErrors < s.RefreshCount:
		return "degraded: some refreshes failing"
	default:
		return "unhealthy: all refreshes failing"
	}
}

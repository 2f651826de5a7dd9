package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the API server and the refresh pipeline
var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homemonitor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homemonitor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)

	// Upstream ThingSpeak API call metrics
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homemonitor_thingspeak_requests_total",
			Help: "Total number of requests to the ThingSpeak API",
		},
		[]string{"channel", "status_code"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homemonitor_thingspeak_request_duration_seconds",
			Help:    "ThingSpeak API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel", "status_code"},
	)

	// Refresh cycle metrics
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homemonitor_refresh_total",
			Help: "Total number of channel refresh attempts",
		},
		[]string{"channel", "status"},
	)

	refreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homemonitor_refresh_duration_seconds",
			Help:    "Duration of a full channel refresh",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"channel"},
	)

	droppedEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homemonitor_dropped_entries_total",
			Help: "Total number of feed entries excluded from series",
		},
		[]string{"channel", "field", "reason"},
	)

	seriesPointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homemonitor_series_points_total",
			Help: "Total number of points stored into series",
		},
	)

	seriesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homemonitor_series_active",
			Help: "Current number of stored series",
		},
	)

	// WebSocket metrics
	websocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homemonitor_websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
		[]string{"stream_type"},
	)

	websocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homemonitor_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"stream_type"},
	)

	// Rate limiting metrics
	rateLimitedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homemonitor_rate_limited_requests_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"endpoint"},
	)
)

// RecordHTTPRequest records metrics for HTTP requests
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	labels := prometheus.Labels{
		"method":      method,
		"path":        path,
		"status_code": strconv.Itoa(statusCode),
	}

	httpRequestsTotal.With(labels).Inc()
	httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// RecordUpstreamRequest records metrics for ThingSpeak API requests
func RecordUpstreamRequest(channel string, statusCode int, duration time.Duration) {
	labels := prometheus.Labels{
		"channel":     channel,
		"status_code": strconv.Itoa(statusCode),
	}

	upstreamRequestsTotal.With(labels).Inc()
	upstreamRequestDuration.With(labels).Observe(duration.Seconds())
}

// RecordRefresh records the outcome and duration of one channel refresh
func RecordRefresh(channel string, duration time.Duration, hasError bool) {
	status := "success"
	if hasError {
		status = "error"
	}
	refreshTotal.With(prometheus.Labels{"channel": channel, "status": status}).Inc()
	refreshDuration.With(prometheus.Labels{"channel": channel}).Observe(duration.Seconds())
}

// RecordDroppedEntry records a feed entry excluded from a series
func RecordDroppedEntry(channel, field, reason string) {
	droppedEntriesTotal.With(prometheus.Labels{
		"channel": channel,
		"field":   field,
		"reason":  reason,
	}).Inc()
}

// RecordSeriesPoints records points accepted into series
func RecordSeriesPoints(n int) {
	seriesPointsTotal.Add(float64(n))
}

// UpdateSeriesCount updates the active series gauge
func UpdateSeriesCount(n int) {
	seriesActive.Set(float64(n))
}

// RecordWebSocketConnection records WebSocket connection metrics
func RecordWebSocketConnection(streamType string) {
	websocketConnectionsTotal.With(prometheus.Labels{"stream_type": streamType}).Inc()
	websocketConnectionsActive.With(prometheus.Labels{"stream_type": streamType}).Inc()
}

// RecordWebSocketDisconnection records WebSocket disconnection metrics
func RecordWebSocketDisconnection(streamType string) {
	websocketConnectionsActive.With(prometheus.Labels{"stream_type": streamType}).Dec()
}

// RecordRateLimitedRequest records rate limiting metrics
func RecordRateLimitedRequest(endpoint string) {
	rateLimitedRequestsTotal.With(prometheus.Labels{"endpoint": endpoint}).Inc()
}

package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/aaronlmathis/homemonitor/internal/metrics"
	"github.com/go-chi/chi/v5/middleware"
)

// PrometheusMiddleware records HTTP request metrics for Prometheus
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		path := sanitizePath(r.URL.Path)
		statusCode := ww.Status()

		metrics.RecordHTTPRequest(r.Method, path, statusCode, duration)
	})
}

// RequestIDResponseMiddleware adds the request ID to response headers
func RequestIDResponseMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// sanitizePath normalizes URL paths for metrics to prevent cardinality explosion
func sanitizePath(path string) string {
	path = strings.TrimSuffix(path, "/")

	if strings.HasPrefix(path, "/api/v1/channels/") {
		parts := strings.Split(path, "/")
		// /api/v1/channels/{id} -> /api/v1/channels/:id
		if len(parts) == 5 {
			return "/api/v1/channels/:id"
		}
		// /api/v1/channels/{id}/{action} -> /api/v1/channels/:id/{action}
		if len(parts) == 6 {
			return "/api/v1/channels/:id/" + parts[5]
		}
		// /api/v1/channels/{id}/fields/{field}/... keeps the field as a
		// placeholder too; field numbers are bounded but ids are not.
		if len(parts) >= 7 && parts[5] == "fields" {
			rest := ""
			if len(parts) > 7 {
				rest = "/" + strings.Join(parts[7:], "/")
			}
			return "/api/v1/channels/:id/fields/:field" + rest
		}
		return "/api/v1/channels/:id"
	}

	if strings.HasPrefix(path, "/api/v1/stream/") {
		parts := strings.Split(path, "/")
		if len(parts) >= 5 {
			return "/api/v1/stream/" + parts[4]
		}
	}

	return path
}

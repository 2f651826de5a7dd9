package middleware

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ETagMiddleware provides ETag support for the read-only data endpoints.
// Series content only changes when a refresh cycle replaces it, so a
// dashboard polling between cycles can be answered with a 304.
type ETagMiddleware struct {
	logger *zap.Logger
}

// NewETagMiddleware creates a new ETag middleware
func NewETagMiddleware(logger *zap.Logger) *ETagMiddleware {
	return &ETagMiddleware{
		logger: logger,
	}
}

// Middleware returns the ETag middleware handler
func (em *ETagMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only apply to safe GET requests
		if r.Method != "GET" {
			next.ServeHTTP(w, r)
			return
		}

		if em.shouldSkipETag(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Buffer the response so the tag can be computed before
		// anything reaches the wire.
		recorder := &etagResponseRecorder{
			ResponseWriter: w,
			status:         200,
			lastModified:   time.Now(),
		}

		next.ServeHTTP(recorder, r)

		if recorder.status == 200 && len(recorder.body) > 0 {
			etag := em.calculateETag(recorder.body)

			w.Header().Set("ETag", fmt.Sprintf(`"%s"`, etag))
			w.Header().Set("Last-Modified", recorder.lastModified.UTC().Format(http.TimeFormat))

			if clientETag := r.Header.Get("If-None-Match"); clientETag != "" {
				if em.etagMatches(clientETag, etag) {
					em.logger.Debug("ETag matched, serving 304",
						zap.String("path", r.URL.Path),
						zap.String("etag", etag),
						zap.String("request_id", middleware.GetReqID(r.Context())))

					w.WriteHeader(http.StatusNotModified)
					return
				}
			}

			em.setCacheHeaders(w, r)
		}

		recorder.flushTo(w)
	})
}

// shouldSkipETag determines if ETag should be skipped for a path
func (em *ETagMiddleware) shouldSkipETag(path string) bool {
	// Streaming, metrics and scheduler state are dynamic per request.
	skipPaths := []string{
		"/api/v1/stream/",
		"/api/v1/scheduler",
		"/metrics",
		"/healthz",
		"/readyz",
	}

	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	return false
}

// calculateETag calculates an ETag for the given content
func (em *ETagMiddleware) calculateETag(content []byte) string {
	hasher := md5.New()
	hasher.Write(content)
	return fmt.Sprintf("%x", hasher.Sum(nil))[:16]
}

// etagMatches checks if client ETag matches server ETag
func (em *ETagMiddleware) etagMatches(clientETag, serverETag string) bool {
	// Handle both quoted and unquoted ETags
	clientETag = strings.Trim(clientETag, `"`)
	serverETag = strings.Trim(serverETag, `"`)
	return clientETag == serverETag
}

// setCacheHeaders sets cache headers sized to the refresh cadence
func (em *ETagMiddleware) setCacheHeaders(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if strings.Contains(path, "/fields/") {
		// Series data is stable between refresh cycles.
		w.Header().Set("Cache-Control", "public, max-age=60")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=30")
}

// etagResponseRecorder buffers the response until the middleware decides
// between the full body and a 304. Headers still flow through to the
// underlying writer, which holds them until a status is written.
type etagResponseRecorder struct {
	http.ResponseWriter
	status       int
	body         []byte
	lastModified time.Time
}

func (r *etagResponseRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
}

func (r *etagResponseRecorder) Write(data []byte) (int, error) {
	r.body = append(r.body, data...)
	return len(data), nil
}

func (r *etagResponseRecorder) flushTo(w http.ResponseWriter) {
	w.WriteHeader(r.status)
	if len(r.body) > 0 {
		w.Write(r.body)
	}
}

package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// IdempotencyResult represents a cached response
type IdempotencyResult struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
	Timestamp  time.Time         `json:"timestamp"`
}

// IdempotencyMiddleware dedupes retried channel mutations. A client that
// resends a registration after a timeout gets the original response
// instead of a duplicate-channel conflict.
type IdempotencyMiddleware struct {
	logger *zap.Logger
	cache  map[string]*IdempotencyResult
	mutex  sync.RWMutex
	ttl    time.Duration
}

// NewIdempotencyMiddleware creates a new idempotency middleware
func NewIdempotencyMiddleware(logger *zap.Logger, ttl time.Duration) *IdempotencyMiddleware {
	im := &IdempotencyMiddleware{
		logger: logger,
		cache:  make(map[string]*IdempotencyResult),
		ttl:    ttl,
	}

	go im.cleanup()

	return im
}

// Middleware returns the idempotency middleware handler
func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only state-changing methods participate
		if r.Method != "POST" && r.Method != "PUT" && r.Method != "DELETE" {
			next.ServeHTTP(w, r)
			return
		}

		idempotencyKey := r.Header.Get("X-Idempotency-Key")
		if idempotencyKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		cacheKey := im.generateCacheKey(r, idempotencyKey)

		if result := im.getCachedResult(cacheKey); result != nil {
			im.logger.Debug("Serving cached idempotent response",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("request_id", middleware.GetReqID(r.Context())))

			im.serveCachedResponse(w, result)
			return
		}

		recorder := &idempotencyRecorder{
			ResponseWriter: w,
			statusCode:     200,
			headers:        make(map[string]string),
			body:           bytes.NewBuffer(nil),
		}

		next.ServeHTTP(recorder, r)

		// Only successful outcomes are worth replaying
		if recorder.statusCode >= 200 && recorder.statusCode < 300 {
			im.cacheResult(cacheKey, &IdempotencyResult{
				StatusCode: recorder.statusCode,
				Headers:    recorder.headers,
				Body:       recorder.body.Bytes(),
				Timestamp:  time.Now(),
			})
		}
	})
}

// generateCacheKey hashes method, path and the client-supplied key
func (im *IdempotencyMiddleware) generateCacheKey(r *http.Request, idempotencyKey string) string {
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%s:%s:%s", r.Method, r.URL.Path, idempotencyKey)))
	return hex.EncodeToString(hasher.Sum(nil))
}

// getCachedResult retrieves a cached result if it exists and is not expired
func (im *IdempotencyMiddleware) getCachedResult(cacheKey string) *IdempotencyResult {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result, exists := im.cache[cacheKey]
	if !exists {
		return nil
	}

	// Expired entries are swept by the cleanup goroutine
	if time.Since(result.Timestamp) > im.ttl {
		return nil
	}

	return result
}

// cacheResult stores a result in the cache
func (im *IdempotencyMiddleware) cacheResult(cacheKey string, result *IdempotencyResult) {
	im.mutex.Lock()
	defer im.mutex.Unlock()
	im.cache[cacheKey] = result
}

// serveCachedResponse serves a cached response
func (im *IdempotencyMiddleware) serveCachedResponse(w http.ResponseWriter, result *IdempotencyResult) {
	for key, value := range result.Headers {
		w.Header().Set(key, value)
	}

	w.Header().Set("X-Idempotency-Cache", "HIT")

	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

// cleanup periodically removes expired entries from the cache
func (im *IdempotencyMiddleware) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		im.mutex.Lock()

		for key, result := range im.cache {
			if now.Sub(result.Timestamp) > im.ttl {
				delete(im.cache, key)
			}
		}

		im.mutex.Unlock()
	}
}

// idempotencyRecorder captures response data for caching
type idempotencyRecorder struct {
	http.ResponseWriter
	statusCode  int
	headers     map[string]string
	body        *bytes.Buffer
	wroteHeader bool
}

func (rr *idempotencyRecorder) WriteHeader(statusCode int) {
	if rr.wroteHeader {
		return
	}
	rr.wroteHeader = true
	rr.statusCode = statusCode

	// Snapshot headers at commit time; anything the handler set before
	// this point is part of the response being cached.
	for key, values := range rr.ResponseWriter.Header() {
		if len(values) > 0 && !isHopByHopHeader(key) {
			rr.headers[key] = values[0]
		}
	}

	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *idempotencyRecorder) Write(data []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	rr.body.Write(data)
	return rr.ResponseWriter.Write(data)
}

func isHopByHopHeader(header string) bool {
	hopByHopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"TE",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	}

	headerLower := strings.ToLower(header)
	for _, hopHeader := range hopByHopHeaders {
		if headerLower == strings.ToLower(hopHeader) {
			return true
		}
	}
	return false
}

package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestIdempotencyReplaysResponse(t *testing.T) {
	var calls atomic.Int64

	im := NewIdempotencyMiddleware(zap.NewNop(), time.Minute)
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"call":%d}`, n)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/channels", nil)
		req.Header.Set("X-Idempotency-Key", "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	if first.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", first.Code)
	}

	second := do()
	if second.Code != http.StatusCreated {
		t.Fatalf("Expected replayed 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("Expected identical body, got %q and %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get("X-Idempotency-Cache") != "HIT" {
		t.Error("Expected cache hit header on replay")
	}
	if got := second.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected Content-Type replayed, got %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected handler to run once, ran %d times", calls.Load())
	}
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	var calls atomic.Int64

	im := NewIdempotencyMiddleware(zap.NewNop(), time.Minute)
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/v1/channels", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if calls.Load() != 2 {
		t.Errorf("Expected handler to run twice without keys, ran %d times", calls.Load())
	}
}

func TestIdempotencySkipsFailures(t *testing.T) {
	var calls atomic.Int64

	im := NewIdempotencyMiddleware(zap.NewNop(), time.Minute)
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/v1/channels", nil)
		req.Header.Set("X-Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if calls.Load() != 2 {
		t.Errorf("Expected failed responses not to be cached, handler ran %d times", calls.Load())
	}
}

func TestIdempotencyKeysAreScoped(t *testing.T) {
	var calls atomic.Int64

	im := NewIdempotencyMiddleware(zap.NewNop(), time.Minute)
	handler := im.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	// Same key on different paths must not collide.
	for _, path := range []string{"/api/v1/channels/1", "/api/v1/channels/2"} {
		req := httptest.NewRequest("DELETE", path, nil)
		req.Header.Set("X-Idempotency-Key", "same-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if calls.Load() != 2 {
		t.Errorf("Expected both paths to reach the handler, ran %d times", calls.Load())
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRouterHealth(t *testing.T) {
	router := NewRouter("1.0.0-test")
	router.RegisterRoutes(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var resp struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Data.Status != "ok" || resp.Data.Version != "1.0.0-test" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestRouterVersion(t *testing.T) {
	router := NewRouter("1.0.0-test")
	router.RegisterRoutes(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := NewRouter("1.0.0-test")
	router.RegisterRoutes(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestRouterWithoutVerifier(t *testing.T) {
	router := NewRouter("1.0.0-test")
	router.RegisterRoutes(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 without a verifier, got %d", w.Code)
	}
}

func TestMiddlewareChain(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	router := NewRouter("1.0.0-test")

	// Add middleware
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))

	router.RegisterRoutes(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Check that request ID was added
	requestID := w.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("expected X-Request-ID header to be set")
	}

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != requestID {
		t.Errorf("expected logged request_id %s, got %v", requestID, fields["request_id"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("expected logged status 200, got %v", fields["status"])
	}
}

func TestRequestIDMiddleware_KeepsClientID(t *testing.T) {
	router := NewRouter("1.0.0-test")
	router.Use(RequestIDMiddleware())

	var seen string
	router.Handle("/echo", func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set("X-Request-ID", "client-chosen")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if seen != "client-chosen" || w.Header().Get("X-Request-ID") != "client-chosen" {
		t.Errorf("expected client request ID to be kept, handler saw %q", seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	router := NewRouter("1.0.0-test")
	router.Use(RecoveryMiddleware(zap.New(core)))

	// Add a handler that panics
	router.Handle("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()

	// Should not panic, should return 500
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 after panic recovery, got %d", w.Code)
	}
	if logs.Len() != 1 {
		t.Errorf("expected the panic to be logged once, got %d entries", logs.Len())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := NewRouter("1.0.0-test")
	router.Use(RateLimitMiddleware(2))
	router.RegisterRoutes(nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected the burst to be served, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected status 429 after the burst, got %d", codes[2])
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	router := NewRouter("1.0.0-test")
	router.Use(RateLimitMiddleware(0))
	router.RegisterRoutes(nil)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, w.Code)
		}
	}
}

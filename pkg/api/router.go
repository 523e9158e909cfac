// Package api exposes the verifier over HTTP for hosts that keep extracted
// packages below a single root directory.
package api

import (
	"net/http"
	"runtime"
	"time"
)

// Router handles HTTP routing for the API
type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
	startTime  time.Time
	version    string
}

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// NewRouter creates a new API router
func NewRouter(version string) *Router {
	return &Router{
		mux:       http.NewServeMux(),
		startTime: time.Now(),
		version:   version,
	}
}

// Use adds middleware to the router
func (r *Router) Use(middleware Middleware) {
	r.middleware = append(r.middleware, middleware)
}

// Handle registers a handler for a specific pattern
func (r *Router) Handle(pattern string, handler http.HandlerFunc) {
	r.mux.HandleFunc(pattern, handler)
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	// Wrap in reverse order so the first middleware added runs outermost
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}

	handler.ServeHTTP(w, req)
}

// RegisterRoutes registers the health, version and verification routes.
// verifier may be nil, in which case only health and version are served.
func (r *Router) RegisterRoutes(verifier *VerifyHandlers) {
	r.Handle("/api/v1/health", r.handleHealth())
	r.Handle("/api/v1/version", r.handleVersion())

	if verifier != nil {
		r.Handle("/api/v1/verify", verifier.HandleVerify())
		r.Handle("/api/v1/stats", verifier.HandleStats())
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Version       string    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

// handleHealth returns the health check handler
func (r *Router) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			WriteError(w, req, MethodNotAllowed())
			return
		}

		_ = WriteSuccess(w, HealthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
			Version:       r.version,
			Timestamp:     time.Now(),
		})
	}
}

// VersionResponse represents the version info response
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// handleVersion returns the version info handler
func (r *Router) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			WriteError(w, req, MethodNotAllowed())
			return
		}

		_ = WriteSuccess(w, VersionResponse{
			Version:   r.version,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		})
	}
}

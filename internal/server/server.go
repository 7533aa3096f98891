package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sitedrop/internal/history"
	"sitedrop/internal/provider"
	"sitedrop/internal/quota"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 35 * time.Second
	HTTPWriteTimeout = 45 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware; must cover the provider call
	RequestTimeout = 45 * time.Second

	// Rate limiting - requests per minute
	GlobalRateLimit = 60 // All routes, per IP
	DeployRateLimit = 10 // Deploy endpoint, per IP
)

// Server represents the HTTP server
type Server struct {
	Tracker        *quota.Tracker
	Provider       *provider.Client
	History        *history.History
	Logger         *slog.Logger
	MaxUploadBytes int64
	TestMode       bool

	// Now supplies the current time; overridable in tests so quota
	// resets and cooldown reporting are deterministic.
	Now func() time.Time
}

// NewServer creates a new server instance
func NewServer(tracker *quota.Tracker, prov *provider.Client, hist *history.History, logger *slog.Logger, maxUploadBytes int64, testMode bool) *Server {
	return &Server{
		Tracker:        tracker,
		Provider:       prov,
		History:        hist,
		Logger:         logger,
		MaxUploadBytes: maxUploadBytes,
		TestMode:       testMode,
		Now:            time.Now,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recovererJSON)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"error": "method not allowed"})
	})

	// Routes
	r.Get("/health", s.HandleHealth)
	r.Get("/api/sites/{siteName}", s.HandleSiteStatus)

	// Preflight gets an empty success even without CORS request headers
	r.Options("/api/deploy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Deploy route with stricter rate limit
	if !s.TestMode {
		r.With(NewDeployRateLimitMiddleware(DeployRateLimit, s.Logger)).Post("/api/deploy", s.HandleDeploy)
	} else {
		r.Post("/api/deploy", s.HandleDeploy)
	}

	return r
}

// Start starts the HTTP server
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hot-rank/internal/core"
)

// Limiter bucket names routes can ask for
const (
	LimiterDefault   = "default"
	LimiterAggregate = "aggregate"
)

type Server struct {
	config   *core.Config
	logger   *core.Logger
	registry *core.Registry
	limiters map[string]*RateLimiter
	handler  http.Handler
	server   *http.Server
}

// New creates the HTTP server around the registered features
func New(config *core.Config, logger *core.Logger, registry *core.Registry) *Server {
	window := time.Duration(config.RateLimit.WindowMs) * time.Millisecond

	srv := &Server{
		config:   config,
		logger:   logger,
		registry: registry,
		limiters: map[string]*RateLimiter{
			LimiterDefault:   NewRateLimiter(window, config.RateLimit.Max),
			LimiterAggregate: NewRateLimiter(window, config.RateLimit.AggregateMax),
		},
	}
	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Logger)
	mux.Use(cors(s.config.Server.CORSOrigin))

	mux.Get("/healthz", s.handleHealth)
	if s.config.Server.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	// Feature routes, each behind its rate-limit bucket
	for _, route := range s.registry.GetAllRoutes() {
		limiter, ok := s.limiters[route.Limiter]
		if !ok {
			limiter = s.limiters[LimiterDefault]
		}
		mux.With(limiter.Middleware).Method(route.Method, route.Path, route.Handler)
	}

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		core.HandleError(w, r, core.NewNotFoundError("Route not found", nil))
	})

	s.handler = mux
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleHealth merges every feature's report into one document
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reports, degraded := s.registry.Health(r.Context())

	body := make(map[string]any)
	for name, report := range reports {
		sections, ok := report.(map[string]any)
		if !ok {
			body[name] = report
			continue
		}
		for key, section := range sections {
			body[key] = section
		}
	}

	body["status"] = "ok"
	if degraded {
		body["status"] = "degraded"
	}
	body["features"] = s.registry.GetFeatureStatus()

	core.WriteRawJSON(w, http.StatusOK, body)
}

// Start initializes the features and serves until Shutdown
func (s *Server) Start(ctx context.Context) error {
	if err := s.registry.InitAll(ctx); err != nil {
		s.logger.Error("Failed to initialize features", "error", err)
		return err
	}

	for _, limiter := range s.limiters {
		go limiter.Run(ctx)
	}

	s.logger.Info("Starting server", "host", s.config.Server.Host, "port", s.config.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then shuts the features down
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var shutdownErr error
	if err := s.server.Shutdown(ctx); err != nil {
		shutdownErr = fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if err := s.registry.ShutdownAll(ctx); err != nil {
		s.logger.Error("Failed to shutdown features", "error", err)
	}

	return shutdownErr
}

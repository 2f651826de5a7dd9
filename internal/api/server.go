package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aaronlmathis/homemonitor/internal/config"
	"github.com/aaronlmathis/homemonitor/internal/metrics"
	custommw "github.com/aaronlmathis/homemonitor/internal/middleware"
	"github.com/aaronlmathis/homemonitor/internal/poller"
	"github.com/aaronlmathis/homemonitor/internal/registry"
	"github.com/aaronlmathis/homemonitor/internal/series"
	"github.com/aaronlmathis/homemonitor/internal/thingspeak"
	"github.com/aaronlmathis/homemonitor/internal/version"
	"github.com/aaronlmathis/homemonitor/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server represents the API server
type Server struct {
	logger         *zap.Logger
	config         *config.Config
	router         chi.Router
	store          *series.MemStore
	health         *series.HealthMetrics
	registry       *registry.Registry
	poller         *poller.Poller
	wsHub          *ws.Hub
	sanitizer      *custommw.ErrorSanitizer
	etag           *custommw.ETagMiddleware
	idempotency    *custommw.IdempotencyMiddleware
	refreshLimiter *rate.Limiter
}

// NewServer creates a new API server and wires up its components
func NewServer(logger *zap.Logger, cfg *config.Config) (*Server, error) {
	health := series.NewHealthMetrics()

	s := &Server{
		logger:      logger,
		config:      cfg,
		router:      chi.NewRouter(),
		health:      health,
		store:       series.NewMemStoreWithHealth(health),
		wsHub:       ws.NewHub(logger, health),
		sanitizer:   custommw.NewErrorSanitizer(logger),
		etag:        custommw.NewETagMiddleware(logger),
		idempotency: custommw.NewIdempotencyMiddleware(logger, 10*time.Minute),
		refreshLimiter: rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(cfg.RateLimits.RefreshPerMinute)),
			cfg.RateLimits.RefreshPerMinute,
		),
	}

	if err := s.initRegistry(); err != nil {
		return nil, err
	}

	s.initPoller()

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) initRegistry() error {
	s.logger.Info("Loading channel registry",
		zap.String("path", s.config.Channels.FilePath))

	s.registry = registry.New(s.config.Channels.FilePath, s.config.Channels.MaxChannels, s.logger)
	if err := s.registry.Load(); err != nil {
		return err
	}

	s.logger.Info("Channel registry loaded", zap.Int("channels", s.registry.Len()))
	return nil
}

func (s *Server) initPoller() {
	client := thingspeak.NewClient(
		s.config.ThingSpeak.BaseURL,
		s.config.UpstreamTimeout(),
		s.config.ThingSpeak.Capacity,
		s.logger,
	)

	fields := make([]thingspeak.FieldDef, 0, len(s.config.Fields))
	for _, f := range s.config.Fields {
		fields = append(fields, thingspeak.FieldDef{Number: f.Number, Label: f.Label})
	}

	builder := thingspeak.NewBuilder(fields, s.config.ThingSpeak.Capacity, thingspeak.NewTimeConverter(), s.logger)
	builder.SetHealth(s.health)

	s.poller = poller.NewPoller(s.logger, s.store, s.health, client, builder, s.registry, poller.Config{
		Interval: s.config.PollInterval(),
		Results:  s.config.ThingSpeak.Results,
	})

	// Push each cycle's outcome to connected dashboards.
	s.poller.SetOnRefresh(func(results []poller.ChannelResult) {
		s.wsHub.BroadcastToRoom("feeds", "refresh", results)
	})
}

// Start starts the server components
func (s *Server) Start(ctx context.Context) error {
	// Start WebSocket hub
	go s.wsHub.Run()

	// Start the refresh scheduler
	return s.poller.Start(ctx)
}

// Stop stops the server components
func (s *Server) Stop() {
	s.logger.Info("Stopping server components")

	if s.poller != nil {
		s.poller.Stop()
	}

	if s.wsHub != nil {
		s.wsHub.Stop()
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(custommw.PrometheusMiddleware)
	s.router.Use(custommw.RequestIDResponseMiddleware)

	// CORS middleware
	allowOrigins := strings.Join(s.config.Server.CORS.AllowOrigins, ", ")
	allowMethods := strings.Join(s.config.Server.CORS.AllowMethods, ", ")
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigins)
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})
}

// rateLimitRefresh guards the manual refresh endpoints with a shared
// token bucket so a stuck dashboard cannot hammer ThingSpeak.
func (s *Server) rateLimitRefresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.refreshLimiter.Allow() {
			metrics.RecordRateLimitedRequest(r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "refresh rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	// Version endpoint
	s.router.Get("/version", s.handleVersion)

	// Prometheus metrics
	s.router.Handle("/metrics", promhttp.Handler())

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Basic info endpoint
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"message": "HomeMonitor API v1",
				"status":  "ready",
			})
		})

		// Channel registry reads
		r.Get("/channels", s.handleListChannels)
		r.Get("/channels/{channelID}", s.handleGetChannel)

		// Channel registry writes dedupe retried mutations
		r.Group(func(r chi.Router) {
			r.Use(s.idempotency.Middleware)

			r.Post("/channels", s.handleAddChannel)
			r.Put("/channels/{channelID}", s.handleUpdateChannel)
			r.Delete("/channels/{channelID}", s.handleDeleteChannel)
		})

		// Series data for display, cacheable between refresh cycles
		r.Group(func(r chi.Router) {
			r.Use(s.etag.Middleware)

			r.Get("/channels/{channelID}/fields/{field}/series", s.handleGetSeries)
			r.Get("/channels/{channelID}/fields/{field}/bounds", s.handleGetBounds)
			r.Get("/channels/{channelID}/fields/{field}/nearest", s.handleNearestPoint)
		})

		// Scheduler status
		r.Get("/scheduler", s.handleSchedulerStatus)

		// Manual refresh (rate limited)
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitRefresh)

			r.Post("/refresh", s.handleRefreshAll)
			r.Post("/channels/{channelID}/refresh", s.handleRefreshChannel)
		})

		// WebSocket endpoint for live refresh results
		r.Get("/stream/feeds", s.handleFeedsWebSocket)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.health.GetSnapshot()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  snapshot.GetStatus(),
		"healthy": snapshot.IsHealthy(),
		"details": snapshot,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !s.health.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "waiting for first refresh"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(version.Get())
}

func (s *Server) handleFeedsWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.ServeWS(w, r, "feeds")
}

// Package server exposes analyses over HTTP: JSON datasets, encoded
// scenes, node details, exports, metrics and a websocket event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/blockstat/forensics/internal/analysis"
	"github.com/blockstat/forensics/internal/bus"
	"github.com/blockstat/forensics/internal/config"
	"github.com/blockstat/forensics/internal/mixer"
	"github.com/blockstat/forensics/internal/observability"
)

// Version is reported by /health.
const Version = "1.0.0"

const serviceName = "token-forensics"

// Deps are the collaborators the server serves from.
type Deps struct {
	Analysis *analysis.Service
	Hub      *bus.Hub
	Health   *observability.HealthMonitor // optional
	Metrics  *observability.Metrics
	Mixer    mixer.Options
}

// Server is the HTTP front end.
type Server struct {
	cfg     config.ServerConfig
	metrics config.MetricsConfig
	deps    Deps
	router  *gin.Engine
	httpSrv *http.Server
}

// New builds the router.
func New(cfg config.ServerConfig, metricsCfg config.MetricsConfig, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = observability.Default()
	}
	if deps.Hub == nil {
		deps.Hub = bus.NewHub(bus.DefaultBuffer)
	}
	if deps.Mixer == (mixer.Options{}) {
		deps.Mixer = mixer.DefaultOptions()
	}
	switch cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, metrics: metricsCfg, deps: deps, router: gin.New()}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("server: listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("server: shutting down")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("server: panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))
	s.router.Use(s.corsMiddleware())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.observeMiddleware())
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// observeMiddleware logs every request and records it in Prometheus under
// its route pattern, not the raw path.
func (s *Server) observeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), latency)

		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int64("latency_ms", latency.Milliseconds()).
			Str("request_id", c.GetString("request_id")).
			Msg("server: request completed")
	}
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	if s.metrics.Enabled {
		path := s.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.deps.Metrics.Handler()))
	}
	s.router.GET("/ws", s.wsHandler)

	v1 := s.router.Group("/api/v1")
	v1.POST("/analyze", s.analyzeHandler)

	a := v1.Group("/analysis/:token")
	a.GET("", s.datasetHandler)
	a.GET("/scene", s.sceneHandler)
	a.GET("/mixer-graph", s.mixerGraphHandler)
	a.GET("/nodes/:id", s.nodeHandler)
	a.GET("/export", s.exportHandler)
}

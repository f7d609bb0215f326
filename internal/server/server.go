// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/fraudlens/paysim-monitor/internal/cache"
	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/dashboard"
	"github.com/fraudlens/paysim-monitor/internal/health"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/metrics"
	"github.com/fraudlens/paysim-monitor/internal/monitor"
	"github.com/fraudlens/paysim-monitor/internal/ratelimit"
	"github.com/fraudlens/paysim-monitor/internal/rpcserver"
	"github.com/fraudlens/paysim-monitor/internal/security"
	"github.com/fraudlens/paysim-monitor/internal/traces"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
	"github.com/fraudlens/paysim-monitor/internal/validation"
)

const (
	serviceName = "paysim-monitor"

	// memoryCacheEntries bounds the in-process cache used without REDIS_URL.
	memoryCacheEntries = 10000
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	store         transactions.Store
	cache         cache.Cache
	services      *monitor.Services
	mcp           *mcpserver.MCPServer
	health        *health.Registry
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	redis         *cache.RedisCache
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels the tracing context started in Run
	traceShutdown traces.ShutdownFunc

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets the transaction store, bypassing DATABASE_URL (for testing)
func WithStore(store transactions.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithCache sets the query cache, bypassing REDIS_URL (for testing)
func WithCache(c cache.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		health: health.NewRegistry(),
	}

	// Apply options first (may set store/cache/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.store == nil {
		store, db, err := OpenStore(ctx, cfg, s.logger)
		if err != nil {
			return nil, err
		}
		s.store, s.db = store, db
	}
	if s.db != nil {
		if err := metrics.RegisterDBStats(prometheus.DefaultRegisterer, s.db); err != nil {
			s.logger.Warn("db pool metrics unavailable", "error", err)
		}
	}

	// Initialize query cache (Redis if REDIS_URL set, otherwise in-process)
	if s.cache == nil {
		if cfg.RedisURL != "" {
			rc, err := cache.NewRedisCache(cfg.RedisURL)
			if err != nil {
				s.closeDB()
				return nil, err
			}
			s.redis = rc
			s.cache = rc
			s.logger.Info("using redis query cache", "url", maskDSN(cfg.RedisURL))
		} else {
			s.cache = cache.NewMemoryCache(memoryCacheEntries)
			s.logger.Info("using in-memory query cache", "ttl", cfg.CacheTTL)
		}
	}

	s.services = monitor.New(s.store, s.cache, cfg.CacheTTL)

	mcp, err := rpcserver.NewMCPServer(s.services)
	if err != nil {
		s.closeDB()
		return nil, fmt.Errorf("failed to build rpc server: %w", err)
	}
	s.mcp = mcp

	s.health.Require("store", s.store, 3*time.Second)
	s.health.Optional("cache", s.cache, time.Second)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func (s *Server) closeDB() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Request ID and logging run first so rejected requests are still logged
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.accessLogMiddleware())

	// Security headers
	s.router.Use(security.Headers())

	// CORS (the dashboard and REST mirror are read-only)
	s.router.Use(security.CORS("*"))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())
}

// maxRequestIDLen bounds caller-supplied X-Request-ID values.
const maxRequestIDLen = 128

// requestIDMiddleware reuses the caller's X-Request-ID when it is sane and
// mints one otherwise. The id and the server logger travel in the request
// context so handlers and the query services log with them.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		ctx := logging.WithLogger(logging.WithRequestID(c.Request.Context(), id), s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// accessLogMiddleware writes one line per request: debug for successes so
// dashboard polling stays quiet at info, warn for client errors and error
// for server errors.
func (s *Server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		ctx := c.Request.Context()
		logging.L(ctx).LogAttrs(ctx, level, "request completed",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", c.Writer.Size()),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// JSON-RPC (MCP) endpoint
	s.router.POST("/rpc", rpcserver.HTTPHandler(s.mcp))

	// REST mirror of the RPC tools
	v1 := s.router.Group("/v1")
	monitor.NewHandler(s.services).RegisterRoutes(v1)

	// Server-rendered analyst pages
	dashboard.NewHandler(s.services).RegisterRoutes(s.router)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No route for " + c.Request.Method + " " + c.Request.URL.Path,
		})
	})
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   rpcserver.ServerVersion,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails, then shuts down. Readiness flips once the port is bound.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The exporter outlives ctx until Shutdown cancels runCtx.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, traces.Options{
		ServiceName: serviceName,
		Version:     rpcserver.ServerVersion,
		Endpoint:    s.cfg.OTLPEndpoint,
		SampleRatio: s.cfg.TraceSampleRatio,
	}, s.logger)
	if err != nil {
		s.logger.Warn("tracing unavailable", "error", err)
	} else {
		s.traceShutdown = shutdownTraces
	}

	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("listen on :%s: %w", s.cfg.Port, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	s.ready.Store(true)
	s.logger.Info("server ready", "addr", ln.Addr().String(), "env", s.cfg.Env, "store", s.storeKind())

	select {
	case err := <-serveErr:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}
	return s.Shutdown()
}

func (s *Server) storeKind() string {
	if s.db != nil {
		return "postgres"
	}
	return "memory"
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Stop the tracing context
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Services returns the query services behind every surface.
func (s *Server) Services() *monitor.Services {
	return s.services
}

// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mdudarev/antifraud/internal/antifraud"
	"github.com/mdudarev/antifraud/internal/auth"
	"github.com/mdudarev/antifraud/internal/blocklist"
	"github.com/mdudarev/antifraud/internal/config"
	"github.com/mdudarev/antifraud/internal/health"
	"github.com/mdudarev/antifraud/internal/idgen"
	"github.com/mdudarev/antifraud/internal/logging"
	"github.com/mdudarev/antifraud/internal/metrics"
	"github.com/mdudarev/antifraud/internal/ratelimit"
	"github.com/mdudarev/antifraud/internal/retry"
	"github.com/mdudarev/antifraud/internal/security"
	"github.com/mdudarev/antifraud/internal/traces"
	"github.com/mdudarev/antifraud/internal/validation"
)

// resetter clears a store's data for the admin reset endpoint.
type resetter interface {
	Reset(ctx context.Context) error
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg              *config.Config
	antifraudService *antifraud.Service
	blocklistService *blocklist.Service
	authService      *auth.Service
	rateLimiter      *ratelimit.Limiter
	healthChecks     *health.Registry
	resetters        []resetter
	db               *sql.DB // nil if using in-memory
	router           *gin.Engine
	httpSrv          *http.Server
	logger           *slog.Logger
	tracesShutdown   func(context.Context) error
	cancelRunCtx     context.CancelFunc // cancels background goroutines started in Run

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, "json"),
		healthChecks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	defaults := antifraud.Limits{
		MaxAllowed: cfg.DefaultMaxAllowed,
		MaxManual:  cfg.DefaultMaxManual,
	}

	var (
		txStore    antifraud.TransactionStore
		limitStore antifraud.LimitStore
		cardStore  blocklist.CardStore
		ipStore    blocklist.IPStore
		userStore  auth.Store
	)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// The database may still be starting up alongside us.
		if err := retry.Do(ctx, 5, 500*time.Millisecond, func() error {
			return db.PingContext(ctx)
		}); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		pgTx := antifraud.NewPostgresStore(db)
		if err := pgTx.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transaction store", "error", err)
		}
		txStore = pgTx
		s.resetters = append(s.resetters, pgTx)

		pgLimits := antifraud.NewPostgresLimitStore(db, defaults)
		if err := pgLimits.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate limit store", "error", err)
		}
		limitStore = pgLimits
		s.resetters = append(s.resetters, pgLimits)

		pgCards := blocklist.NewPostgresCardStore(db)
		if err := pgCards.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate stolen card store", "error", err)
		}
		cardStore = pgCards
		s.resetters = append(s.resetters, pgCards)

		pgIPs := blocklist.NewPostgresIPStore(db)
		if err := pgIPs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate suspicious ip store", "error", err)
		}
		ipStore = pgIPs
		s.resetters = append(s.resetters, pgIPs)

		pgUsers := auth.NewPostgresStore(db)
		if err := pgUsers.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate user store", "error", err)
		}
		userStore = pgUsers

		s.healthChecks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		memTx := antifraud.NewMemoryStore()
		txStore = memTx
		s.resetters = append(s.resetters, memTx)

		memLimits := antifraud.NewMemoryLimitStore(defaults)
		limitStore = memLimits
		s.resetters = append(s.resetters, memLimits)

		memCards := blocklist.NewMemoryCardStore()
		cardStore = memCards
		s.resetters = append(s.resetters, memCards)

		memIPs := blocklist.NewMemoryIPStore()
		ipStore = memIPs
		s.resetters = append(s.resetters, memIPs)

		userStore = auth.NewMemoryStore()
	}

	s.blocklistService = blocklist.NewService(cardStore, ipStore)
	evaluator := antifraud.NewEvaluator(limitStore, s.blocklistService, txStore)
	s.antifraudService = antifraud.NewService(evaluator, txStore, limitStore)
	s.authService = auth.NewService(userStore)

	metrics.SetLimitGauges(defaults.MaxAllowed, defaults.MaxManual)

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

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
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

	s.router.GET("/api", s.infoHandler)

	authHandler := auth.NewHandler(s.authService)
	antifraudHandler := antifraud.NewHandler(s.antifraudService)
	blocklistHandler := blocklist.NewHandler(s.blocklistService)

	api := s.router.Group("/api")

	// PUBLIC: user registration
	authPublic := api.Group("/auth")
	authHandler.RegisterPublicRoutes(authPublic)

	// Everything else requires basic auth
	authed := api.Group("", auth.BasicAuth(s.authService))

	// ADMINISTRATOR: user management
	adminAuth := authed.Group("/auth", auth.RequireRole(auth.RoleAdministrator))
	authHandler.RegisterAdminRoutes(adminAuth)

	// ADMINISTRATOR + SUPPORT: user list
	listAuth := authed.Group("/auth", auth.RequireRole(auth.RoleAdministrator, auth.RoleSupport))
	authHandler.RegisterListRoute(listAuth)

	// MERCHANT: transaction submission
	merchant := authed.Group("/antifraud", auth.RequireRole(auth.RoleMerchant))
	antifraudHandler.RegisterMerchantRoutes(merchant)

	// SUPPORT: feedback, history, blocklists
	support := authed.Group("/antifraud", auth.RequireRole(auth.RoleSupport))
	antifraudHandler.RegisterSupportRoutes(support)
	blocklistHandler.RegisterRoutes(support)

	// ADMINISTRATOR: data reset
	authed.POST("/clear-data", auth.RequireRole(auth.RoleAdministrator), s.clearDataHandler)
}

// clearDataHandler wipes transactions, limits, and blocklists. User
// accounts are preserved so the caller keeps access.
func (s *Server) clearDataHandler(c *gin.Context) {
	ctx := c.Request.Context()

	for _, r := range s.resetters {
		if err := r.Reset(ctx); err != nil {
			logging.L(ctx).Error("data reset failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to clear data",
			})
			return
		}
	}

	metrics.SetLimitGauges(s.cfg.DefaultMaxAllowed, s.cfg.DefaultMaxManual)
	metrics.SetStolenCardCount(0)
	metrics.SetSuspiciousIPCount(0)
	logging.L(ctx).Info("all transaction data cleared")

	c.JSON(http.StatusOK, gin.H{"status": "Data cleared successfully!"})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthChecks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
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

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Antifraud",
		"description": "Transaction fraud classification service",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Distributed tracing (no-op when no endpoint configured)
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Sample DB pool stats into Prometheus gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending trace spans
	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
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

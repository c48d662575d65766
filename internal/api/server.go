package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bytebuddy/config"
	"bytebuddy/internal/auth"
	"bytebuddy/internal/database"
	"bytebuddy/internal/events"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/tools"
)

// RateLimiter provides simple in-memory sliding window rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Middleware limits requests per client IP
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "RATE_LIMITED",
				"message": "Too many requests. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

// HealthReporter is implemented by optional dependencies shown on /api/health
type HealthReporter interface {
	IsHealthy() bool
}

// Deps are the services the server routes to. Cache and Limiter may be nil.
type Deps struct {
	Store    database.Store
	Auth     *auth.Service
	Gate     *auth.Gate
	Quota    *quota.Service
	Tools    *tools.Service
	EventBus *events.EventBus
	Cache    HealthReporter
	Limiter  *RateLimiter
	Logger   *logging.Logger
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	deps       Deps
	hub        *UsageHub
	logger     *logging.Logger
	started    time.Time
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	router := gin.New()

	// Middleware
	router.Use(logging.GinMiddleware(deps.Logger))
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if origins := cfg.Origins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:  router,
		config:  cfg,
		deps:    deps,
		hub:     NewUsageHub(),
		logger:  deps.Logger.WithComponent("api"),
		started: time.Now(),
	}

	go s.hub.Run()
	s.hub.Attach(deps.EventBus)

	s.setupRoutes()
	return s
}

// Router exposes the handler for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)

	authMiddleware := auth.Middleware(s.deps.Gate, s.deps.Store)

	var limiters []gin.HandlerFunc
	if s.deps.Limiter != nil {
		limiters = append(limiters, s.deps.Limiter.Middleware())
	}
	auth.NewHandlers(s.deps.Auth).RegisterRoutes(api, authMiddleware, limiters...)

	// Websocket authenticates itself so browsers can pass the token as a query parameter
	api.GET("/ws", s.handleUsageWebSocket)

	protected := api.Group("")
	protected.Use(authMiddleware)
	{
		protected.POST("/notes/generate", s.handleGenerateNote)
		protected.GET("/notes", s.handleListNotes)
		protected.POST("/questions/ask", s.handleAskQuestion)
		protected.POST("/quizzes/generate", s.handleGenerateQuiz)
		protected.POST("/quizzes/submit", s.handleSubmitQuiz)
		protected.POST("/career/analyze", s.handleAnalyzeCareer)
		protected.POST("/habits/track", s.handleTrackHabit)
		protected.POST("/learning/practice", s.handlePractice)

		protected.GET("/user/stats", s.handleUserStats)
		protected.GET("/user/usage", s.handleUserUsage)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":   "healthy",
		"database": "healthy",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Cache != nil {
		body["cache"] = "healthy"
		if !s.deps.Cache.IsHealthy() {
			body["cache"] = "degraded"
		}
	}

	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Health check failed")
		body["status"] = "unhealthy"
		body["database"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	c.JSON(http.StatusOK, body)
}

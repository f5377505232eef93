package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskforge/pkg/api/middleware"
	"taskforge/pkg/auth"
	"taskforge/pkg/queue"
)

// Server exposes the Producer and Admin APIs over HTTP (spec.md §6.4).
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	engine    *queue.Engine
	validator *middleware.Validator
	log       *zap.Logger
}

// Config holds API server configuration.
type Config struct {
	Port        string
	Engine      *queue.Engine
	JWTService  *auth.JWTService
	APIKeyStore auth.APIKeyStore
	AuthEnabled bool
	Logger      *zap.Logger
}

// NewServer creates a new API server wired to the given queue.Engine.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.TracingMiddleware("taskforge-api"))
	router.Use(requestLogger(log))
	router.Use(middleware.RateLimitMiddleware())
	router.Use(middleware.BodySizeLimitMiddleware(1 << 20))

	if cfg.AuthEnabled {
		router.Use(middleware.AuthMiddleware(middleware.AuthConfig{
			JWTService:  cfg.JWTService,
			APIKeyStore: cfg.APIKeyStore,
			SkipPaths:   []string{"/health", "/metrics"},
		}))
	}

	s := &Server{
		router:    router,
		engine:    cfg.Engine,
		validator: middleware.NewValidator(middleware.DefaultValidatorConfig()),
		log:       log,
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server
// stops.
func (s *Server) Start() error {
	s.log.Info("starting API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", middleware.RequireRole(auth.RoleOperator), s.createJob)
			jobs.GET("", s.listJobs)
			jobs.GET("/stats", middleware.RequireRole(auth.RoleViewer), s.jobStats)
			jobs.GET("/:id", s.getJob)
			jobs.POST("/:id/retry", middleware.RequireRole(auth.RoleOperator), s.retryJob)
			jobs.DELETE("/:id", middleware.RequireRole(auth.RoleOperator), s.cancelJob)
		}
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// healthCheck reports whether the server has a usable engine wired in.
func (s *Server) healthCheck(c *gin.Context) {
	healthy := s.engine != nil
	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/applyflow/jobcrawl/internal/executor"
	"github.com/applyflow/jobcrawl/internal/logger"
	"github.com/applyflow/jobcrawl/internal/metrics"
	"github.com/applyflow/jobcrawl/internal/registry"
	"github.com/applyflow/jobcrawl/internal/scheduler"
)

const healthPingTimeout = 2 * time.Second

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server exposes the crawl core over HTTP.
type Server struct {
	executor  *executor.Executor
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	db        *sqlx.DB
	logger    logger.Interface

	httpServer *http.Server
}

// New creates the API server with its routes registered.
func New(
	cfg Config,
	exec *executor.Executor,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	m *metrics.Metrics,
	db *sqlx.DB,
	log logger.Interface,
) *Server {
	s := &Server{
		executor:  exec,
		registry:  reg,
		scheduler: sched,
		metrics:   m,
		db:        db,
		logger:    log.WithComponent("api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// registerRoutes wires the operational surface.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/crawls", s.handleStartCrawl)
		v1.GET("/crawls/active", s.handleListActive)
		v1.GET("/crawls/history", s.handleListHistory)
		v1.GET("/crawls/stats", s.handleStats)
		v1.GET("/crawls/:id", s.handleGetCrawl)

		v1.POST("/schedules", s.handleCreateSchedule)
		v1.GET("/schedules", s.handleListSchedules)
		v1.DELETE("/schedules/:id", s.handleCancelSchedule)
	}
}

// Start begins serving. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "address", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports process and database health.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

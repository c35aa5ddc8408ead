// Package adminapi exposes the pool's runtime surface over HTTP: health,
// Prometheus scraping, a pool stats snapshot, and a live tuning endpoint
// wired to config.RedisStore's hot-reload.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tasksql/taskdb/internal/config"
	"github.com/tasksql/taskdb/internal/logger"
	"github.com/tasksql/taskdb/internal/pool"
)

// Server is the Gin-based admin HTTP surface for one Pool.
type Server struct {
	router     *gin.Engine
	cfg        config.AdminConfig
	pool       *pool.Pool
	redisStore *config.RedisStore
	httpServer *http.Server
}

// NewServer creates an admin server for pool p. redisStore may be nil; when
// set, PUT /api/v1/pool/tuning persists through it so other processes
// subscribed to the same reload channel pick up the change too.
func NewServer(cfg config.AdminConfig, p *pool.Pool, redisStore *config.RedisStore) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:     router,
		cfg:        cfg,
		pool:       p,
		redisStore: redisStore,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.authMiddleware())
	v1.Use(s.loggingMiddleware())
	{
		v1.GET("/pool/stats", s.handlePoolStats)
		v1.GET("/pool/tuning", s.handleGetTuning)
		v1.PUT("/pool/tuning", s.handlePutTuning)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}
		key := c.GetHeader("Authorization")
		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}
		if key != s.cfg.APIKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.With("method", c.Request.Method, "path", c.Request.URL.Path)
		c.Next()
		reqLogger.Info("admin api request",
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{"status": "healthy", "pool": s.pool.Status()}
	if s.redisStore != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.redisStore.Health(ctx); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["redis"] = "healthy"
		}
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handlePoolStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.pool.Stats())
}

func (s *Server) handleGetTuning(c *gin.Context) {
	if s.redisStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no tuning store configured"})
		return
	}
	t, err := s.redisStore.LoadTuning(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handlePutTuning(c *gin.Context) {
	var t config.Tuning
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid tuning payload: %v", err)})
		return
	}

	s.pool.ApplyTuning(t.MaxIdleSeconds, t.MaxExecCount, t.MaxWaitTimeoutCount)

	if s.redisStore != nil {
		if err := s.redisStore.SaveTuning(c.Request.Context(), t); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("applied locally but failed to persist: %v", err)})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "tuning applied", "tuning": t})
}

// Start runs the admin HTTP server, blocking until it stops or errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logger.Info("admin api listening", "address", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// WatchTuning subscribes to redisStore's reload channel and applies every
// incoming Tuning to the pool until ctx is canceled. It subscribes before
// returning and applies updates from a goroutine of its own, so it can be
// called directly before Start.
func (s *Server) WatchTuning(ctx context.Context) error {
	if s.redisStore == nil {
		return nil
	}
	ch, err := s.redisStore.Watch(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-ch:
				if !ok {
					return
				}
				s.pool.ApplyTuning(t.MaxIdleSeconds, t.MaxExecCount, t.MaxWaitTimeoutCount)
				logger.Info("pool tuning reloaded", "max_idle_seconds", t.MaxIdleSeconds, "max_exec_count", t.MaxExecCount)
			}
		}
	}()
	return nil
}

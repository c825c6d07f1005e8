// Package ops serves the operational HTTP endpoints: liveness, run
// status, and Prometheus metrics.
package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"straddlebot/internal/metrics"
)

// Server is the observability HTTP server. It exposes read-only state
// and never touches the exchange.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	collector  *metrics.Collector
	log        zerolog.Logger
	version    string
	mode       string
	startTime  time.Time
}

// NewServer builds the ops server on the given port
func NewServer(port int, mode, version string, collector *metrics.Collector, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		collector: collector,
		log:       log.With().Str("component", "ops").Logger(),
		version:   version,
		mode:      mode,
		startTime: time.Now(),
	}

	router.Use(s.requestLogger())
	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", s.handleMetrics)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("ops server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("ops server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.version,
		"mode":    s.mode,
		"uptime":  int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	last := s.collector.LastRun()
	if last == nil {
		c.JSON(http.StatusOK, gin.H{"mode": s.mode, "last_run": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":     s.mode,
		"outcome":  metrics.Outcome(last),
		"last_run": last,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(s.collector.Collect()))
}

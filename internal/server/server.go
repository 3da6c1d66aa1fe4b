// Package server exposes a loopback device over a JSON status API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alkime/sokuji/internal/config"
	"github.com/alkime/sokuji/internal/driver"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP status and control server for one device.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	router  *gin.Engine
	device  *driver.Device
	metrics *prometheus.Registry
}

// New builds the router. A nil registry leaves /metrics unrouted.
func New(cfg *config.Config, dev *driver.Device, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		config:  cfg,
		logger:  logger,
		router:  router,
		device:  dev,
		metrics: reg,
	}

	setupSecurityMiddleware(router, cfg, logger)
	s.setupRoutes()

	return s
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully.
func Run(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	s.logger.Info("server stopped")

	return nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")
	{
		api.GET("/device", s.handleDevice)
		api.GET("/formats", s.handleFormats)
		api.GET("/format", s.handleGetFormat)
		api.POST("/format", s.handleNegotiate)
		api.POST("/streams/:direction/start", s.handleStart)
		api.POST("/streams/:direction/stop", s.handleStop)
		api.GET("/stats", s.handleStats)
		api.GET("/timestamp", s.handleTimestamp)
	}
}

// Package api exposes the ledger over HTTP.
//
// The confirmation endpoint answers with a bare "OK" or "Error" so ad
// networks retrying on failure learn nothing about the ledger's state.
// The account endpoints are for operators and return JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/rewardledger/internal/app"
)

// Server routes HTTP requests to the ledger services.
type Server struct {
	app    *app.App
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the router for a.
func New(a *app.App) (*Server, error) {
	if err := registerValidations(); err != nil {
		return nil, err
	}

	s := &Server{
		app:    a,
		logger: a.Logger.With("component", "api"),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	v1.POST("/rewards/confirm", s.handleConfirm)
	v1.POST("/users", s.handleCreateUser)
	v1.GET("/users/:id", s.handleGetUser)
	v1.PUT("/users/:id/level", s.handleSetLevel)
	v1.GET("/users/:id/commissions", s.handleEarnings)
	v1.GET("/users/:id/alerts", s.handleAlerts)
	v1.POST("/users/:id/sweep", s.handleSweep)

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.app.Store.DB().PingContext(c.Request.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		c.String(http.StatusServiceUnavailable, "unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}

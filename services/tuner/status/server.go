// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package status

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// DefaultAddr is the listen address of the status server.
const DefaultAddr = "127.0.0.1:9464"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Server serves search status over HTTP.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	addr    string
	router  *gin.Engine
	tracker *Tracker
	logger  *slog.Logger
}

// NewServer creates the status server.
//
// Inputs:
//
//	addr - Listen address (host:port)
//	tracker - Source of progress snapshots
//	metrics - Handler for /metrics. Nil leaves the route unregistered.
//	logger - Logger for structured logging
//
// Outputs:
//
//	*Server - Configured server, not yet listening
func NewServer(addr string, tracker *Tracker, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = DefaultAddr
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("cutofftune-status"))

	s := &Server{addr: addr, router: router, tracker: tracker, logger: logger}
	router.GET("/healthz", s.handleHealth)
	router.GET("/v1/status", s.handleStatus)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// Outputs:
//
//	error - Listen failure. Nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Status server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Status server shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("Status server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

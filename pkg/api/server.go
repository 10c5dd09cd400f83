// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package api exposes a read-only Gin HTTP control surface over the
// orchestrator and monitor: listing and inspecting executions, stopping
// a run, reading pipeline stats, and serving Prometheus metrics. This is
// management/observability surface only; the orchestrator has no
// import-time dependency back on this package.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dataforge/etlengine/pkg/common/metrics"
	"github.com/dataforge/etlengine/pkg/orchestrator"
)

// Server is the HTTP control surface process wrapper, grounded on the
// teacher's CoordinationNode's ginRouter/httpServer pairing.
type Server struct {
	addr       string
	logger     *zap.Logger
	ginRouter  *gin.Engine
	httpServer *http.Server
}

// NewServer builds a Server bound to addr, wiring routes over o and mon.
// opt may be nil, in which case the pipeline-stats endpoint reports
// recommendations as unavailable.
func NewServer(addr string, o *orchestrator.Orchestrator, mon Monitor, opt Recommender, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	collector := metrics.NewMetricsCollector("api")
	router.Use(metrics.HTTPMetricsMiddleware(collector))

	h := &executionHandlers{orchestrator: o, monitor: mon, optimizer: opt, logger: logger.With(zap.String("component", "api"))}
	h.registerRoutes(router)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		addr:      addr,
		logger:    logger,
		ginRouter: router,
	}
}

// Start begins serving in the background. It does not block.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.ginRouter,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("API server started", zap.String("addr", s.addr))
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

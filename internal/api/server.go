// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the routing service over HTTP using gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/events"
	"github.com/traylinx/switchai-router/internal/intelligence"
	"github.com/traylinx/switchai-router/internal/logging"
	"github.com/traylinx/switchai-router/internal/metrics"
)

// Server is the HTTP front of the routing service.
type Server struct {
	engine  *gin.Engine
	server  *http.Server
	cfg     atomic.Pointer[config.Config]
	service *intelligence.Service
	hub     *events.Hub
	metrics *metrics.Metrics
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHub serves the transparency event stream at /v1/events.
func WithHub(h *events.Hub) ServerOption {
	return func(s *Server) { s.hub = h }
}

// WithMetrics serves Prometheus metrics at /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds the gin engine and registers every route.
func NewServer(cfg *config.Config, svc *intelligence.Service, opts ...ServerOption) *Server {
	s := &Server{service: svc}
	s.cfg.Store(cfg)
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	s.engine = engine
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.health)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.engine.Group("/v1")
	v1.POST("/route", s.route)
	v1.POST("/decisions/:id/outcome", s.recordOutcome)
	if s.hub != nil {
		v1.GET("/events", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })
	}

	reports := v1.Group("/reports", s.reportingAuth())
	reports.GET("/summary", s.summary)
	reports.GET("/export", s.exportRecords)
}

// UpdateConfig swaps the configuration used for request-time checks after a reload.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Stop is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	log.Infof("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// reportingAuth guards report endpoints with the configured reporting key,
// accepted as a bearer token or the X-Management-Key header.
func (s *Server) reportingAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Management-Key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if !s.cfg.Load().CheckReportingKey(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing reporting key"})
			return
		}
		c.Next()
	}
}

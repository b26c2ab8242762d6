// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchai-router/internal/buildinfo"
	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/export"
	"github.com/traylinx/switchai-router/internal/intelligence"
	"github.com/traylinx/switchai-router/internal/logging"
	"github.com/traylinx/switchai-router/internal/recorder"
	"github.com/traylinx/switchai-router/internal/store"
)

// route decides the model for one query.
// POST /v1/route
//
//	{"request_id": "req-1", "account_id": "acct-1", "query": "hi", "context": {"provider": "anthropic", "conversation_turn": 1}}
//
// The request id comes from the body or the X-Request-ID header and becomes the
// decision record id, returned as record_id. Posting an outcome later requires it:
// without one the record gets a generated id that is never exposed over HTTP.
func (s *Server) route(c *gin.Context) {
	var req intelligence.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetHeader(logging.RequestIDHeader)
	}

	res := s.service.Route(req)
	resp := gin.H{"decision": res.Decision, "event": res.Decision.Event()}
	if res.Pending != nil && req.RequestID != "" {
		resp["record_id"] = req.RequestID
	}
	c.JSON(http.StatusOK, resp)
}

type outcomeRequest struct {
	RequestSucceeded        *bool `json:"request_succeeded"`
	ResponseTokens          int64 `json:"response_tokens"`
	EstimatedCostMillicents int64 `json:"estimated_cost_millicents"`
}

// recordOutcome queues the one-time outcome for a decision record.
// POST /v1/decisions/:id/outcome
//
// The id is the request id the decision was routed with.
func (s *Server) recordOutcome(c *gin.Context) {
	var body outcomeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}
	if body.RequestSucceeded == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request_succeeded is required"})
		return
	}
	if body.ResponseTokens < 0 || body.EstimatedCostMillicents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and cost counts must not be negative"})
		return
	}

	id := c.Param("id")
	err := s.service.RecordOutcome(id, store.Outcome{
		RequestSucceeded:        *body.RequestSucceeded,
		ResponseTokens:          body.ResponseTokens,
		EstimatedCostMillicents: body.EstimatedCostMillicents,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "id": id})
	case errors.Is(err, intelligence.ErrRecordingDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision recording is disabled"})
	case errors.Is(err, recorder.ErrQueueFull), errors.Is(err, recorder.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision recorder unavailable", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue outcome", "message": err.Error()})
	}
}

// summary returns the decision report for a window.
// GET /v1/reports/summary?account=acct-1&since=2026-03-01T00:00:00Z&until=...&lookback=168h
func (s *Server) summary(c *gin.Context) {
	f, err := s.window(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := s.service.Summary(c.Request.Context(), f)
	if errors.Is(err, intelligence.ErrNoStore) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no decision store configured"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// exportRecords streams the window's records as compressed JSON Lines.
// GET /v1/reports/export?codec=gzip&account=acct-1&lookback=24h
func (s *Server) exportRecords(c *gin.Context) {
	st := s.service.Store()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no decision store configured"})
		return
	}
	f, err := s.window(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	codec := c.DefaultQuery("codec", s.cfg.Load().Export.Codec)
	exp, err := export.New(st, config.ExportConfig{Codec: codec})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := path.Base(export.ObjectName("", f, exp.Codec()))
	contentType := "application/octet-stream"
	if exp.Codec() == export.CodecNone {
		contentType = "application/x-ndjson"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)

	n, err := exp.Write(c.Request.Context(), c.Writer, f)
	if err != nil {
		log.WithField("request_id", logging.RequestID(c)).Errorf("export aborted after %d records: %v", n, err)
		return
	}
	log.WithField("request_id", logging.RequestID(c)).Infof("exported %d decision records as %s", n, name)
}

// health reports store reachability.
// GET /healthz
func (s *Server) health(c *gin.Context) {
	thresholds := s.service.Router().Thresholds().Version
	if err := s.service.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error(), "thresholds": thresholds})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": buildinfo.Version, "thresholds": thresholds})
}

// window reads account, since, until and lookback query parameters.
// Without since, the window is the lookback (or the configured default) ending at until or now.
func (s *Server) window(c *gin.Context) (store.Filter, error) {
	f := store.Filter{AccountID: c.Query("account")}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid until: %w", err)
		}
		f.Until = t
	}

	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid since: %w", err)
		}
		f.Since = t
	} else {
		lookback := s.cfg.Load().Reporting.DefaultLookback
		if v := c.Query("lookback"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return f, fmt.Errorf("invalid lookback %q", v)
			}
			lookback = d
		}
		end := f.Until
		if end.IsZero() {
			end = time.Now()
		}
		f.Since = end.Add(-lookback)
	}

	if !f.Until.IsZero() && !f.Since.Before(f.Until) {
		return f, fmt.Errorf("since must be before until")
	}
	return f, nil
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package intelligence is the hot-path entry point for model routing.
// It owns the current router snapshot and fans each decision out to the
// decision recorder, the transparency event hub and metrics. None of those
// side channels can fail a routing call.
package intelligence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/events"
	"github.com/traylinx/switchai-router/internal/metrics"
	"github.com/traylinx/switchai-router/internal/recorder"
	"github.com/traylinx/switchai-router/internal/reporting"
	"github.com/traylinx/switchai-router/internal/routing"
	"github.com/traylinx/switchai-router/internal/store"
)

var (
	// ErrRecordingDisabled is returned for outcome updates when no recorder is running.
	ErrRecordingDisabled = errors.New("intelligence: decision recording disabled")
	// ErrNoStore is returned by read operations when no store is configured.
	ErrNoStore = errors.New("intelligence: no decision store configured")
)

// Request is one routing call.
type Request struct {
	// RequestID, when set, becomes the decision record id so outcomes can be
	// posted against it later.
	RequestID string          `json:"request_id,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Query     string          `json:"query"`
	Context   routing.Context `json:"context"`
}

// Result is the routing decision plus its recording handle.
type Result struct {
	Decision routing.Decision
	// Pending resolves once the decision record is durable. Nil when recording is disabled.
	Pending *recorder.Pending
}

// Service routes requests against the current configuration snapshot.
// It is safe for concurrent use.
type Service struct {
	router    atomic.Pointer[routing.Router]
	retention atomic.Int64

	store    *store.Store
	recorder *recorder.Recorder
	hub      *events.Hub
	metrics  *metrics.Metrics

	routerOpts []routing.Option
	now        func() time.Time

	// reloadMu serialises Reload so concurrent reloads cannot interleave.
	reloadMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists decisions to st. Without a store decisions are routed but never recorded.
func WithStore(st *store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithHub publishes a transparency event for every decision.
func WithHub(h *events.Hub) Option {
	return func(s *Service) { s.hub = h }
}

// WithMetrics records decision and recorder metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRouterOptions passes options to every router built by the service, including on reload.
func WithRouterOptions(opts ...routing.Option) Option {
	return func(s *Service) { s.routerOpts = append(s.routerOpts, opts...) }
}

// WithClock overrides the clock used for record timestamps and retention.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the router for cfg and starts the recorder when a store
// is configured and recording is enabled.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	r, err := routing.NewRouter(cfg.Routing, s.routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("intelligence: %w", err)
	}
	s.router.Store(r)
	s.setRetention(cfg.Store.RetentionDays)

	if s.store != nil && cfg.Recorder.Enabled {
		var recOpts []recorder.Option
		if s.metrics != nil {
			recOpts = append(recOpts, recorder.WithObserver(s.metrics))
		}
		s.recorder = recorder.New(s.store, cfg.Recorder, recOpts...)
		log.Infof("Decision recorder started (%d workers, queue %d)", cfg.Recorder.Workers, cfg.Recorder.QueueSize)
	} else {
		log.Info("Decision recording disabled")
	}
	return s, nil
}

// Router returns the current router snapshot.
func (s *Service) Router() *routing.Router {
	return s.router.Load()
}

// Route decides the model for req, queues its record and publishes its
// transparency event. It never blocks on persistence.
func (s *Service) Route(req Request) Result {
	d := s.Router().Route(req.Query, req.Context)

	log.WithField("request_id", req.RequestID).Debugf("routed to %s (%s, score %d, confidence %.2f, %d overrides) in %.3fms",
		d.SelectedModel, d.Tier, d.Complexity.Score, d.Complexity.Confidence, len(d.Overrides), d.RoutingTimeMs)

	if s.metrics != nil {
		s.metrics.ObserveDecision(d)
	}

	res := Result{Decision: d}
	if s.recorder != nil {
		res.Pending = s.recorder.Create(s.recordFor(req, d))
	}
	if s.hub != nil {
		s.hub.Publish(events.Message{RequestID: req.RequestID, AccountID: req.AccountID, Event: d.Event()})
	}
	return res
}

// recordFor builds the persisted row. The query text itself is never stored.
func (s *Service) recordFor(req Request, d routing.Decision) *store.Record {
	return &store.Record{
		ID:                req.RequestID,
		CreatedAt:         s.now().UTC(),
		AccountID:         req.AccountID,
		UserID:            req.UserID,
		Provider:          d.Provider,
		ConversationTurn:  req.Context.ConversationTurn,
		SelectedModel:     d.SelectedModel,
		Tier:              d.Tier.String(),
		Score:             d.Complexity.Score,
		Confidence:        d.Complexity.Confidence,
		Reasoning:         d.Reasoning,
		RoutingTimeMs:     d.RoutingTimeMs,
		QueryLength:       len([]rune(req.Query)),
		MatchedSignals:    d.Complexity.MatchedSignalNames(),
		Overrides:         d.OverrideTypes(),
		ThresholdsVersion: d.ThresholdsVersion,
	}
}

// RecordOutcome queues the one-time outcome update for a decision record.
func (s *Service) RecordOutcome(id string, out store.Outcome) error {
	if s.recorder == nil {
		return ErrRecordingDisabled
	}
	return s.recorder.UpdateOutcome(id, out)
}

// RecordOutcomeFor updates the record behind res if it is already durable.
func (s *Service) RecordOutcomeFor(res Result, out store.Outcome) bool {
	if s.recorder == nil || res.Pending == nil {
		return false
	}
	return s.recorder.UpdateOutcomeFor(res.Pending, out)
}

// Reload swaps in a router built from cfg. In-flight calls finish on the old
// snapshot. An invalid configuration leaves the current router in place.
func (s *Service) Reload(cfg *config.Config) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	r, err := routing.NewRouter(cfg.Routing, s.routerOpts...)
	if s.metrics != nil {
		s.metrics.ObserveReload(err == nil)
	}
	if err != nil {
		log.Errorf("Routing reload rejected, keeping thresholds %s: %v", s.Router().Thresholds().Version, err)
		return fmt.Errorf("intelligence: %w", err)
	}
	s.router.Store(r)
	s.setRetention(cfg.Store.RetentionDays)
	log.Infof("Routing configuration reloaded (thresholds %s, %d providers, %d context rules)",
		r.Thresholds().Version, len(cfg.Routing.Providers), len(cfg.Routing.ContextRules))
	return nil
}

// Summary reports on persisted decisions using the current pricing.
func (s *Service) Summary(ctx context.Context, f store.Filter) (*reporting.Summary, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return reporting.New(s.store, s.Router().Config()).Summary(ctx, f)
}

// Store returns the configured decision store, or nil.
func (s *Service) Store() *store.Store {
	return s.store
}

// Ping checks the decision store. It succeeds when no store is configured.
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}

// Prune deletes records older than the retention window.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, ErrNoStore
	}
	cutoff := s.now().Add(-time.Duration(s.retention.Load()))
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("Pruned %d decision records older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// RunRetention prunes on every tick until ctx is done.
func (s *Service) RunRetention(ctx context.Context, interval time.Duration) {
	if s.store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnf("Decision retention prune failed: %v", err)
			}
		}
	}
}

// Shutdown drains the recorder and disconnects event clients.
// The store is owned by the caller and left open.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.recorder == nil {
		return nil
	}
	if err := s.recorder.Close(ctx); err != nil {
		return fmt.Errorf("intelligence: recorder did not drain: %w", err)
	}
	return nil
}

func (s *Service) setRetention(days int) {
	if days <= 0 {
		days = 90
	}
	s.retention.Store(int64(time.Duration(days) * 24 * time.Hour))
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes routing and recorder counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traylinx/switchai-router/internal/routing"
)

const namespace = "switchai_router"

// Metrics owns its own registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	decisions      *prometheus.CounterVec
	overrides      *prometheus.CounterVec
	routingSeconds prometheus.Histogram
	scores         prometheus.Histogram
	writes         *prometheus.CounterVec
	writeSeconds   *prometheus.HistogramVec
	reloads        *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Routing decisions by provider and final tier.",
		}, []string{"provider", "tier"}),
		overrides: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_total",
			Help:      "Applied routing overrides by type.",
		}, []string{"type"}),
		routingSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_duration_seconds",
			Help:      "Time spent inside the router per decision.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
		scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "complexity_score",
			Help:      "Combined complexity score per decision.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_writes_total",
			Help:      "Decision recorder operations by kind and result.",
		}, []string{"op", "result"}),
		writeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recorder_write_duration_seconds",
			Help:      "Decision recorder write latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reload attempts by result.",
		}, []string{"result"}),
	}
	m.registry = reg
	return m
}

// ObserveDecision records one routing decision.
func (m *Metrics) ObserveDecision(d routing.Decision) {
	m.decisions.WithLabelValues(d.Provider, d.Tier.String()).Inc()
	for _, o := range d.Overrides {
		m.overrides.WithLabelValues(string(o.Type)).Inc()
	}
	m.routingSeconds.Observe(d.RoutingTimeMs / 1000)
	m.scores.Observe(float64(d.Complexity.Score))
}

// ObserveWrite implements recorder.Observer.
func (m *Metrics) ObserveWrite(op, result string, elapsed time.Duration) {
	m.writes.WithLabelValues(op, result).Inc()
	if elapsed > 0 {
		m.writeSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

// ObserveReload records a configuration reload attempt.
func (m *Metrics) ObserveReload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

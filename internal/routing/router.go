// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchai-router/internal/config"
)

// Router combines the query and context analyzers, selects a model from the
// tier configuration and runs the override pipeline. A Router is immutable after
// construction; configuration changes build a new Router.
type Router struct {
	cfg      config.RoutingConfig
	analyzer *QueryAnalyzer
	rules    *RuleSet
	counter  TokenCounter
	now      func() time.Time

	// modelTiers maps provider -> model -> tier, plus "" for any provider.
	modelTiers map[string]map[string]Tier
}

// Option configures a Router.
type Option func(*Router)

// WithClock replaces the clock used to measure routing time.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithTokenCounter replaces the token counter used by the length signals.
func WithTokenCounter(c TokenCounter) Option {
	return func(r *Router) { r.counter = c }
}

// NewRouter builds a router for cfg. The configuration is assumed to have been
// validated; only context rule compilation can fail here.
func NewRouter(cfg config.RoutingConfig, opts ...Option) (*Router, error) {
	r := &Router{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	rules, err := CompileRules(cfg.ContextRules)
	if err != nil {
		return nil, err
	}
	r.rules = rules
	r.analyzer = NewQueryAnalyzer(cfg.Thresholds, r.counter)
	r.modelTiers = indexModelTiers(cfg)
	return r, nil
}

// Thresholds returns the threshold set this router was built with.
func (r *Router) Thresholds() config.Thresholds { return r.cfg.Thresholds }

// Config returns the routing configuration this router was built with.
func (r *Router) Config() config.RoutingConfig { return r.cfg }

// AnalyzeQuery exposes the query analyzer on its own.
func (r *Router) AnalyzeQuery(text string) ComplexityAnalysis { return r.analyzer.Analyze(text) }

// Route selects a model for one request. It never fails: an unknown provider
// falls back to the default provider's tier map.
func (r *Router) Route(text string, ctx Context) Decision {
	start := r.now()
	th := r.cfg.Thresholds

	query := r.analyzer.Analyze(text)
	contextAnalysis := AnalyzeContext(th, r.rules, ctx)

	score := clampScore(query.Score + contextAnalysis.Adjustment)
	tier := TierForScore(score, th)

	signals := make([]Signal, 0, len(query.Signals)+len(contextAnalysis.Signals))
	signals = append(signals, query.Signals...)
	signals = append(signals, contextAnalysis.Signals...)
	complexity := ComplexityAnalysis{
		Score:      score,
		Tier:       tier,
		Confidence: query.Confidence,
		Signals:    signals,
		Reasoning:  describe(score, tier, signals),
	}

	providerName, provider := r.resolveProvider(ctx.Provider)
	state := &pipelineState{
		router:     r,
		ctx:        &ctx,
		provider:   providerName,
		models:     provider.Models,
		tier:       tier,
		model:      modelFor(provider.Models, tier),
		confidence: query.Confidence,
	}
	state.run()

	var reasoning strings.Builder
	reasoning.WriteString(complexity.Reasoning)
	if contextAnalysis.Adjustment != 0 {
		fmt.Fprintf(&reasoning, "; context %+d", contextAnalysis.Adjustment)
	}
	for _, o := range state.overrides {
		reasoning.WriteString("; ")
		reasoning.WriteString(o.Description)
	}

	return Decision{
		SelectedModel:     state.model,
		Provider:          providerName,
		Tier:              state.tier,
		Complexity:        complexity,
		Overrides:         state.overrides,
		Reasoning:         reasoning.String(),
		RoutingTimeMs:     float64(r.now().Sub(start).Microseconds()) / 1000,
		ThresholdsVersion: th.Version,
	}
}

func (r *Router) resolveProvider(name string) (string, config.ProviderConfig) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key != "" {
		if p, ok := r.cfg.Providers[key]; ok {
			return key, p
		}
		log.Warnf("unknown provider %q, routing with default provider %q", name, r.cfg.DefaultProvider)
	}
	return r.cfg.DefaultProvider, r.cfg.Providers[r.cfg.DefaultProvider]
}

// TierOfModel resolves the tier a model belongs to, preferring the given provider's map.
func (r *Router) TierOfModel(provider, model string) (Tier, bool) {
	if byModel, ok := r.modelTiers[strings.ToLower(strings.TrimSpace(provider))]; ok {
		if t, ok := byModel[model]; ok {
			return t, true
		}
	}
	t, ok := r.modelTiers[""][model]
	return t, ok
}

func indexModelTiers(cfg config.RoutingConfig) map[string]map[string]Tier {
	index := map[string]map[string]Tier{"": {}}
	for _, name := range cfg.ProviderNames() {
		m := cfg.Providers[name].Models
		byModel := map[string]Tier{
			m.Simple:  TierSimple,
			m.Medium:  TierMedium,
			m.Complex: TierComplex,
		}
		// A model listed under several tiers resolves to the highest.
		for model, t := range byModel {
			if _, seen := index[""][model]; !seen {
				index[""][model] = t
			}
		}
		index[name] = byModel
	}
	return index
}

func modelFor(m config.TierModels, t Tier) string {
	switch t {
	case TierSimple:
		return m.Simple
	case TierComplex:
		return m.Complex
	default:
		return m.Medium
	}
}

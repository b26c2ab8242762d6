// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reporting aggregates persisted routing decisions for dashboards and
// threshold tuning. It only reads.
package reporting

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/store"
)

// lowestTier is the tier label whose traffic the savings estimate is computed over.
const lowestTier = "simple"

// Source is the read side of the decision store.
type Source interface {
	TierDistribution(ctx context.Context, f store.Filter) (map[string]int64, error)
	ModelDistribution(ctx context.Context, f store.Filter) (map[string]int64, error)
	OverrideFrequency(ctx context.Context, f store.Filter) (map[string]int64, error)
	Averages(ctx context.Context, f store.Filter) (store.Averages, error)
	OutcomeTotals(ctx context.Context, f store.Filter) (store.OutcomeTotals, error)
	LowTierUsage(ctx context.Context, f store.Filter, tier string) ([]store.ProviderUsage, error)
}

// Summary is the full report for one window.
type Summary struct {
	AccountID         string              `json:"account_id,omitempty"`
	Since             time.Time           `json:"since"`
	Until             time.Time           `json:"until"`
	Decisions         int64               `json:"decisions"`
	TierDistribution  map[string]int64    `json:"tier_distribution"`
	ModelDistribution map[string]int64    `json:"model_distribution"`
	OverrideFrequency map[string]int64    `json:"override_frequency"`
	AvgConfidence     float64             `json:"avg_confidence"`
	AvgScore          float64             `json:"avg_score"`
	AvgRoutingTimeMs  float64             `json:"avg_routing_time_ms"`
	SuccessRate       float64             `json:"success_rate"`
	Outcomes          store.OutcomeTotals `json:"outcomes"`
	// EstimatedSavingsMillicents is what lowest-tier traffic would have cost at
	// the middle tier's price, minus what it actually cost.
	EstimatedSavingsMillicents int64 `json:"estimated_savings_millicents"`
}

// Reporter computes summaries from a Source using the configured tier pricing.
type Reporter struct {
	src             Source
	providers       map[string]config.ProviderConfig
	defaultProvider string
}

// New creates a reporter. Pricing comes from the routing configuration.
func New(src Source, routing config.RoutingConfig) *Reporter {
	return &Reporter{src: src, providers: routing.Providers, defaultProvider: routing.DefaultProvider}
}

// Summary runs every aggregate for f concurrently.
func (r *Reporter) Summary(ctx context.Context, f store.Filter) (*Summary, error) {
	s := &Summary{AccountID: f.AccountID, Since: f.Since, Until: f.Until}
	var (
		averages store.Averages
		usage    []store.ProviderUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.TierDistribution, err = r.src.TierDistribution(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		s.ModelDistribution, err = r.src.ModelDistribution(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		s.OverrideFrequency, err = r.src.OverrideFrequency(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		averages, err = r.src.Averages(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		s.Outcomes, err = r.src.OutcomeTotals(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		usage, err = r.src.LowTierUsage(gctx, f, lowestTier)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.Decisions = averages.Decisions
	s.AvgConfidence = averages.Confidence
	s.AvgScore = averages.Score
	s.AvgRoutingTimeMs = averages.RoutingTimeMs
	s.SuccessRate = s.Outcomes.SuccessRate()
	s.EstimatedSavingsMillicents = r.savings(usage)
	return s, nil
}

func (r *Reporter) savings(usage []store.ProviderUsage) int64 {
	var total int64
	for _, u := range usage {
		p, ok := r.providers[strings.ToLower(u.Provider)]
		if !ok {
			p = r.providers[r.defaultProvider]
		}
		atMedium := int64(math.Round(float64(u.ResponseTokens) / 1000 * p.Pricing.Medium))
		total += atMedium - u.CostMillicents
	}
	return total
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Filter narrows aggregate queries to a lookback window and optionally one account.
type Filter struct {
	AccountID string
	Since     time.Time
	Until     time.Time
}

func (f Filter) where() (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.AccountID != "" {
		clauses = append(clauses, "d.account_id = ?")
		args = append(args, f.AccountID)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "d.created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "d.created_at < ?")
		args = append(args, f.Until.UTC())
	}
	return strings.Join(clauses, " AND "), args
}

// Averages are the mean routing metrics over the filtered decisions.
type Averages struct {
	Decisions     int64   `json:"decisions"`
	Confidence    float64 `json:"avg_confidence"`
	Score         float64 `json:"avg_score"`
	RoutingTimeMs float64 `json:"avg_routing_time_ms"`
}

// OutcomeTotals summarise the decisions that have an outcome attached.
type OutcomeTotals struct {
	WithOutcome    int64 `json:"with_outcome"`
	Succeeded      int64 `json:"succeeded"`
	ResponseTokens int64 `json:"response_tokens"`
	CostMillicents int64 `json:"cost_millicents"`
}

// SuccessRate is Succeeded over WithOutcome, or zero when nothing has an outcome.
func (t OutcomeTotals) SuccessRate() float64 {
	if t.WithOutcome == 0 {
		return 0
	}
	return float64(t.Succeeded) / float64(t.WithOutcome)
}

// ProviderUsage is the lowest-tier traffic of one provider, used for savings estimates.
type ProviderUsage struct {
	Provider       string `json:"provider"`
	Requests       int64  `json:"requests"`
	ResponseTokens int64  `json:"response_tokens"`
	CostMillicents int64  `json:"cost_millicents"`
}

// TierDistribution counts decisions per tier.
func (s *Store) TierDistribution(ctx context.Context, f Filter) (map[string]int64, error) {
	where, args := f.where()
	return s.countBy(ctx, `SELECT d.tier, COUNT(*) FROM routing_decisions d WHERE `+where+` GROUP BY d.tier`, args)
}

// ModelDistribution counts decisions per selected model.
func (s *Store) ModelDistribution(ctx context.Context, f Filter) (map[string]int64, error) {
	where, args := f.where()
	return s.countBy(ctx, `SELECT d.selected_model, COUNT(*) FROM routing_decisions d WHERE `+where+` GROUP BY d.selected_model`, args)
}

// OverrideFrequency counts applied overrides per type.
func (s *Store) OverrideFrequency(ctx context.Context, f Filter) (map[string]int64, error) {
	where, args := f.where()
	return s.countBy(ctx, `SELECT o.type, COUNT(*)
	FROM routing_overrides o
	JOIN routing_decisions d ON d.id = o.decision_id
	WHERE `+where+` GROUP BY o.type`, args)
}

func (s *Store) countBy(ctx context.Context, query string, args []any) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distribution: %w", err)
	}
	return counts, nil
}

// Averages computes mean confidence, score and routing latency.
func (s *Store) Averages(ctx context.Context, f Filter) (Averages, error) {
	where, args := f.where()
	var (
		avg                  Averages
		conf, score, latency sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
	SELECT COUNT(*), AVG(d.confidence), AVG(d.score), AVG(d.routing_time_ms)
	FROM routing_decisions d WHERE `+where), args...).Scan(&avg.Decisions, &conf, &score, &latency)
	if err != nil {
		return Averages{}, fmt.Errorf("failed to query averages: %w", err)
	}
	avg.Confidence = conf.Float64
	avg.Score = score.Float64
	avg.RoutingTimeMs = latency.Float64
	return avg, nil
}

// OutcomeTotals sums outcomes over decisions that have one.
func (s *Store) OutcomeTotals(ctx context.Context, f Filter) (OutcomeTotals, error) {
	where, args := f.where()
	var (
		totals                     OutcomeTotals
		succeeded, tokens, costSum sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
	SELECT COUNT(*),
		SUM(CASE WHEN d.request_succeeded THEN 1 ELSE 0 END),
		SUM(d.response_tokens),
		SUM(d.estimated_cost_millicents)
	FROM routing_decisions d WHERE `+where+` AND d.outcome_at IS NOT NULL`), args...).
		Scan(&totals.WithOutcome, &succeeded, &tokens, &costSum)
	if err != nil {
		return OutcomeTotals{}, fmt.Errorf("failed to query outcome totals: %w", err)
	}
	totals.Succeeded = succeeded.Int64
	totals.ResponseTokens = tokens.Int64
	totals.CostMillicents = costSum.Int64
	return totals, nil
}

// LowTierUsage returns per-provider totals for lowest-tier decisions with an outcome.
func (s *Store) LowTierUsage(ctx context.Context, f Filter, tier string) ([]ProviderUsage, error) {
	where, args := f.where()
	args = append(args, tier)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
	SELECT d.provider, COUNT(*), SUM(d.response_tokens), SUM(d.estimated_cost_millicents)
	FROM routing_decisions d
	WHERE `+where+` AND d.tier = ? AND d.outcome_at IS NOT NULL
	GROUP BY d.provider
	ORDER BY d.provider`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query low tier usage: %w", err)
	}
	defer rows.Close()

	var usage []ProviderUsage
	for rows.Next() {
		var u ProviderUsage
		var tokens, costSum sql.NullInt64
		if err := rows.Scan(&u.Provider, &u.Requests, &tokens, &costSum); err != nil {
			return nil, fmt.Errorf("failed to scan low tier usage: %w", err)
		}
		u.ResponseTokens = tokens.Int64
		u.CostMillicents = costSum.Int64
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating low tier usage: %w", err)
	}
	return usage, nil
}

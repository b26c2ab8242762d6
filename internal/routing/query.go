// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchai-router/internal/config"
)

const (
	// baselineScore is where every query starts before signals apply.
	baselineScore = 50

	// maxAnalyzedBytes bounds the prefix scanned by the lexical signals.
	maxAnalyzedBytes = 64 * 1024

	// reasoningSignals is how many matched signals are named in the reasoning.
	reasoningSignals = 3
)

// QueryAnalyzer scores raw query text. It holds only immutable configuration
// and is safe for concurrent use.
type QueryAnalyzer struct {
	thresholds config.Thresholds
	counter    TokenCounter
}

// NewQueryAnalyzer creates an analyzer. A nil counter uses DefaultTokenCounter.
func NewQueryAnalyzer(th config.Thresholds, counter TokenCounter) *QueryAnalyzer {
	if counter == nil {
		counter = DefaultTokenCounter()
	}
	return &QueryAnalyzer{thresholds: th, counter: counter}
}

// Analyze maps text to a complexity score, tier and confidence.
// It never fails; empty input yields the baseline medium result with zero confidence.
func (a *QueryAnalyzer) Analyze(text string) (result ComplexityAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("query analyzer panic, using baseline: %v", r)
			result = a.baseline("analysis failed")
		}
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return a.baseline("empty query")
	}

	raw := truncateUTF8(trimmed, maxAnalyzedBytes)
	q := &queryInput{
		raw:    raw,
		lower:  strings.ToLower(raw),
		tokens: a.counter.Count(trimmed),
	}

	signals := make([]Signal, len(querySignals))
	score := baselineScore
	evidence := 0
	for i, def := range querySignals {
		matched, value := def.match(q, &a.thresholds)
		signals[i] = Signal{Name: def.name, Weight: def.weight, Matched: matched, MatchedValue: value}
		if matched {
			score += def.weight
			evidence += abs(def.weight)
		}
	}

	score = clampScore(score)
	tier := TierForScore(score, a.thresholds)
	return ComplexityAnalysis{
		Score:      score,
		Tier:       tier,
		Confidence: confidenceFor(evidence, a.thresholds),
		Signals:    signals,
		Reasoning:  describe(score, tier, signals),
	}
}

func (a *QueryAnalyzer) baseline(reason string) ComplexityAnalysis {
	signals := make([]Signal, len(querySignals))
	for i, def := range querySignals {
		signals[i] = Signal{Name: def.name, Weight: def.weight}
	}
	tier := TierForScore(baselineScore, a.thresholds)
	return ComplexityAnalysis{
		Score:     baselineScore,
		Tier:      tier,
		Signals:   signals,
		Reasoning: fmt.Sprintf("%s, baseline score %d (%s)", reason, baselineScore, tier),
	}
}

// TierForScore maps a clamped score onto the configured boundaries.
func TierForScore(score int, th config.Thresholds) Tier {
	switch {
	case score <= th.SimpleMaxScore:
		return TierSimple
	case score <= th.MediumMaxScore:
		return TierMedium
	default:
		return TierComplex
	}
}

func confidenceFor(evidence int, th config.Thresholds) float64 {
	norm := th.ConfidenceNormalization
	if norm <= 0 {
		norm = config.DefaultThresholds().ConfidenceNormalization
	}
	c := float64(evidence) / norm
	if c > 1 {
		return 1
	}
	return c
}

// describe names the strongest matched signals. The sort is stable so equal
// weights keep declaration order.
func describe(score int, tier Tier, signals []Signal) string {
	matched := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if s.Matched {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return fmt.Sprintf("score %d (%s), no signals matched", score, tier)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return abs(matched[i].Weight) > abs(matched[j].Weight)
	})
	if len(matched) > reasoningSignals {
		matched = matched[:reasoningSignals]
	}
	parts := make([]string, len(matched))
	for i, s := range matched {
		parts[i] = fmt.Sprintf("%s (%+d)", s.Name, s.Weight)
	}
	return fmt.Sprintf("score %d (%s): %s", score, tier, strings.Join(parts, ", "))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

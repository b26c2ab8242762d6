// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"strings"

	"github.com/traylinx/switchai-router/internal/config"
)

// ContextAnalysis is the additive score adjustment derived from the routing context.
type ContextAnalysis struct {
	Adjustment int      `json:"adjustment"`
	Signals    []Signal `json:"signals"`
}

var workspaceWeights = []struct {
	name   string
	weight int
	types  []string
}{
	{name: "workspace_analysis", weight: 15, types: []string{"analysis", "research", "data"}},
	{name: "workspace_engineering", weight: 10, types: []string{"engineering", "code", "development"}},
	{name: "workspace_writing", weight: 5, types: []string{"writing", "documentation"}},
	{name: "workspace_casual", weight: -10, types: []string{"casual", "personal", "chat"}},
}

const (
	proposingWeight           = 15
	documentsWeight           = 5
	longConversationWeight    = 5
	sustainedComplexityWeight = 5
)

// AnalyzeContext maps the routing context to a score adjustment. It never reads
// query text and never modifies ctx. rules may be nil.
func AnalyzeContext(th config.Thresholds, rules *RuleSet, ctx Context) ContextAnalysis {
	signals := make([]Signal, 0, len(workspaceWeights)+4+rules.Len())

	workspace := ""
	if ctx.WorkspaceType != nil {
		workspace = strings.ToLower(strings.TrimSpace(*ctx.WorkspaceType))
	}
	for _, w := range workspaceWeights {
		sig := Signal{Name: w.name, Weight: w.weight}
		for _, t := range w.types {
			if workspace == t {
				sig.Matched = true
				sig.MatchedValue = workspace
				break
			}
		}
		signals = append(signals, sig)
	}

	proposing := Signal{Name: "feature_proposing", Weight: proposingWeight}
	if ctx.FeatureMode != nil && ctx.FeatureMode.Phase == PhaseProposing {
		proposing.Matched = true
		proposing.MatchedValue = ctx.FeatureMode.Name
	}
	signals = append(signals, proposing)

	signals = append(signals, Signal{Name: "has_documents", Weight: documentsWeight, Matched: ctx.HasDocuments})

	long := Signal{Name: "long_conversation", Weight: longConversationWeight}
	if ctx.ConversationTurn > th.LongConversationTurns {
		long.Matched = true
	}
	signals = append(signals, long)

	sustained := Signal{Name: "sustained_complexity", Weight: sustainedComplexityWeight}
	if n := len(ctx.RecentScores); n > 0 {
		sum := 0
		for _, s := range ctx.RecentScores {
			sum += s
		}
		if float64(sum)/float64(n) > float64(th.MediumMaxScore) {
			sustained.Matched = true
		}
	}
	signals = append(signals, sustained)

	signals = rules.evaluate(&ctx, signals)

	adjustment := 0
	for _, s := range signals {
		if s.Matched {
			adjustment += s.Weight
		}
	}
	return ContextAnalysis{Adjustment: adjustment, Signals: signals}
}

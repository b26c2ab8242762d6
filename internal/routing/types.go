// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is one of the three service levels a request can be routed to.
// Ordered by cost/capability: Simple < Medium < Complex.
type Tier int

const (
	// TierSimple is the lightweight, cheapest tier.
	TierSimple Tier = iota
	// TierMedium is the balanced middle tier.
	TierMedium
	// TierComplex is the heavy, most capable tier.
	TierComplex
)

var tierNames = [...]string{"simple", "medium", "complex"}

// String returns the lower-case tier name.
func (t Tier) String() string {
	if t >= TierSimple && t <= TierComplex {
		return tierNames[t]
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// ParseTier parses a tier name. Unknown names report false.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return TierSimple, true
	case "medium":
		return TierMedium, true
	case "complex":
		return TierComplex, true
	default:
		return TierMedium, false
	}
}

// MarshalJSON implements json.Marshaler.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseTier(s)
	if !ok {
		return fmt.Errorf("unknown tier %q", s)
	}
	*t = parsed
	return nil
}

// Signal is one matched or unmatched rule. Weights are authored constants.
type Signal struct {
	Name         string `json:"name"`
	Weight       int    `json:"weight"`
	Matched      bool   `json:"matched"`
	MatchedValue string `json:"matched_value,omitempty"`
}

// ComplexityAnalysis is the result of scoring a query.
type ComplexityAnalysis struct {
	Score      int      `json:"score"`
	Tier       Tier     `json:"tier"`
	Confidence float64  `json:"confidence"`
	Signals    []Signal `json:"signals"`
	Reasoning  string   `json:"reasoning"`
}

// MatchedSignalNames returns the names of matched signals in declaration order.
func (c ComplexityAnalysis) MatchedSignalNames() []string {
	names := make([]string, 0, len(c.Signals))
	for _, s := range c.Signals {
		if s.Matched {
			names = append(names, s.Name)
		}
	}
	return names
}

// FeaturePhase is the phase of a guided feature mode.
type FeaturePhase string

const (
	PhaseGathering  FeaturePhase = "gathering"
	PhaseProposing  FeaturePhase = "proposing"
	PhaseRefining   FeaturePhase = "refining"
	PhaseConfirming FeaturePhase = "confirming"
)

// FeatureMode describes an active guided feature flow, such as a meeting or task wizard.
type FeatureMode struct {
	Name  string       `json:"name"`
	Phase FeaturePhase `json:"phase"`
}

// Context is the caller-supplied snapshot for one routing call. The router never writes to it.
type Context struct {
	Provider         string       `json:"provider"`
	ThinkingMode     bool         `json:"thinking_mode"`
	AccountTier      string       `json:"account_tier"`
	WorkspaceType    *string      `json:"workspace_type,omitempty"`
	FeatureMode      *FeatureMode `json:"feature_mode,omitempty"`
	HasDocuments     bool         `json:"has_documents"`
	ConversationTurn int          `json:"conversation_turn"`
	CurrentModel     *string      `json:"current_model,omitempty"`
	RecentScores     []int        `json:"recent_scores,omitempty"`
}

// OverrideType names one of the policy overrides.
type OverrideType string

const (
	OverrideExplicitPreference OverrideType = "explicit_preference"
	OverrideMinimumConfidence  OverrideType = "minimum_confidence"
	OverrideCacheCoherence     OverrideType = "cache_coherence"
)

// Override records one applied policy rule.
type Override struct {
	Type          OverrideType `json:"type"`
	Description   string       `json:"description"`
	OriginalModel string       `json:"original_model"`
	OverriddenTo  string       `json:"overridden_to"`
}

// Decision is the router's output for one request.
type Decision struct {
	SelectedModel     string             `json:"selected_model"`
	Provider          string             `json:"provider"`
	Tier              Tier               `json:"tier"`
	Complexity        ComplexityAnalysis `json:"complexity"`
	Overrides         []Override         `json:"overrides"`
	Reasoning         string             `json:"reasoning"`
	RoutingTimeMs     float64            `json:"routing_time_ms"`
	ThresholdsVersion string             `json:"thresholds_version"`
}

// OverrideTypes returns the applied override types in application order.
func (d Decision) OverrideTypes() []string {
	types := make([]string, len(d.Overrides))
	for i, o := range d.Overrides {
		types[i] = string(o.Type)
	}
	return types
}

// HasOverride reports whether an override of the given type was applied.
func (d Decision) HasOverride(t OverrideType) bool {
	for _, o := range d.Overrides {
		if o.Type == t {
			return true
		}
	}
	return false
}

// Event is the transparency payload emitted when a response starts streaming.
type Event struct {
	SelectedModel string   `json:"selectedModel"`
	Tier          string   `json:"tier"`
	Score         int      `json:"score"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Overrides     []string `json:"overrides"`
}

// Event builds the UI event for this decision.
func (d Decision) Event() Event {
	return Event{
		SelectedModel: d.SelectedModel,
		Tier:          d.Tier.String(),
		Score:         d.Complexity.Score,
		Confidence:    d.Complexity.Confidence,
		Reasoning:     d.Reasoning,
		Overrides:     d.OverrideTypes(),
	}
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultProvider is used when routing.default-provider is not set.
const DefaultProvider = "anthropic"

// RoutingConfig is the static, versioned tier/model configuration plus thresholds.
// A loaded RoutingConfig is treated as immutable; reloads build a new value.
type RoutingConfig struct {
	// DefaultProvider names the provider whose tier map is used for unknown providers.
	DefaultProvider string `yaml:"default-provider" json:"default-provider"`
	// Thresholds holds the tunable cutoffs.
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
	// Providers maps a provider identifier to its tier map and pricing.
	Providers map[string]ProviderConfig `yaml:"providers" json:"providers"`
	// ContextRules are additional expression-based context signals.
	ContextRules []ContextRule `yaml:"context-rules" json:"context-rules"`
}

// Thresholds is the versioned threshold configuration consumed by the router.
type Thresholds struct {
	// Version identifies this threshold set; it is stamped on every decision record.
	Version string `yaml:"version" json:"version"`
	// MinimumConfidence is the confidence below which a lowest-tier candidate is raised to the middle tier.
	MinimumConfidence float64 `yaml:"minimum-confidence" json:"minimum-confidence"`
	// CacheCoherenceConfidence is the confidence a mid-conversation downgrade must exceed.
	// It may not be below MinimumConfidence.
	CacheCoherenceConfidence float64 `yaml:"cache-coherence-confidence" json:"cache-coherence-confidence"`
	// ConfidenceNormalization divides the summed absolute signal weights.
	ConfidenceNormalization float64 `yaml:"confidence-normalization" json:"confidence-normalization"`
	// SimpleMaxScore is the highest score classified as simple.
	SimpleMaxScore int `yaml:"simple-max-score" json:"simple-max-score"`
	// MediumMaxScore is the highest score classified as medium.
	MediumMaxScore int `yaml:"medium-max-score" json:"medium-max-score"`
	// ShortQueryTokens: queries with fewer tokens fire the short-query signal.
	ShortQueryTokens int `yaml:"short-query-tokens" json:"short-query-tokens"`
	// LongQueryTokens: queries with more tokens fire the long-query signal.
	LongQueryTokens int `yaml:"long-query-tokens" json:"long-query-tokens"`
	// LongConversationTurns: conversations past this turn fire the long-conversation signal.
	LongConversationTurns int `yaml:"long-conversation-turns" json:"long-conversation-turns"`
}

// ProviderConfig is one provider's tier map.
type ProviderConfig struct {
	Models  TierModels  `yaml:"models" json:"models"`
	Pricing TierPricing `yaml:"pricing" json:"pricing"`
}

// TierModels maps each tier to a concrete model identifier.
type TierModels struct {
	Simple  string `yaml:"simple" json:"simple"`
	Medium  string `yaml:"medium" json:"medium"`
	Complex string `yaml:"complex" json:"complex"`
}

// TierPricing is the estimated cost per 1K response tokens, in millicents, for each tier.
type TierPricing struct {
	Simple  float64 `yaml:"simple" json:"simple"`
	Medium  float64 `yaml:"medium" json:"medium"`
	Complex float64 `yaml:"complex" json:"complex"`
}

// ContextRule is an expression evaluated against the routing context.
// When evaluates to true, Weight is added to the context adjustment.
type ContextRule struct {
	Name   string `yaml:"name" json:"name"`
	When   string `yaml:"when" json:"when"`
	Weight int    `yaml:"weight" json:"weight"`
}

// DefaultThresholds returns the conservative starting thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Version:                  "v1",
		MinimumConfidence:        0.50,
		CacheCoherenceConfidence: 0.70,
		ConfidenceNormalization:  60,
		SimpleMaxScore:           25,
		MediumMaxScore:           65,
		ShortQueryTokens:         5,
		LongQueryTokens:          300,
		LongConversationTurns:    10,
	}
}

// DefaultProviders returns the built-in provider tier maps.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"anthropic": {
			Models:  TierModels{Simple: "claude-3-5-haiku-latest", Medium: "claude-sonnet-4-5", Complex: "claude-opus-4-1"},
			Pricing: TierPricing{Simple: 400, Medium: 1500, Complex: 7500},
		},
		"openai": {
			Models:  TierModels{Simple: "gpt-4o-mini", Medium: "gpt-4o", Complex: "o3"},
			Pricing: TierPricing{Simple: 60, Medium: 1000, Complex: 4000},
		},
		"google": {
			Models:  TierModels{Simple: "gemini-2.0-flash-lite", Medium: "gemini-2.5-flash", Complex: "gemini-2.5-pro"},
			Pricing: TierPricing{Simple: 30, Medium: 250, Complex: 1000},
		},
	}
}

func (r *RoutingConfig) applyDefaults() {
	r.DefaultProvider = strings.ToLower(strings.TrimSpace(r.DefaultProvider))
	if r.DefaultProvider == "" {
		r.DefaultProvider = DefaultProvider
	}

	// Zero is a meaningful setting for minimum-confidence, cache-coherence-confidence,
	// simple-max-score, short-query-tokens and long-conversation-turns, so those are
	// seeded before decoding instead of filled here. Only fields that cannot be zero are.
	def := DefaultThresholds()
	t := &r.Thresholds
	if strings.TrimSpace(t.Version) == "" {
		t.Version = def.Version
	}
	if t.ConfidenceNormalization == 0 {
		t.ConfidenceNormalization = def.ConfidenceNormalization
	}
	if t.MediumMaxScore == 0 {
		t.MediumMaxScore = def.MediumMaxScore
	}
	if t.LongQueryTokens == 0 {
		t.LongQueryTokens = def.LongQueryTokens
	}

	if len(r.Providers) == 0 {
		r.Providers = DefaultProviders()
	} else {
		normalized := make(map[string]ProviderConfig, len(r.Providers))
		for name, p := range r.Providers {
			normalized[strings.ToLower(strings.TrimSpace(name))] = p
		}
		r.Providers = normalized
	}

	rules := make([]ContextRule, 0, len(r.ContextRules))
	for _, rule := range r.ContextRules {
		rule.Name = strings.TrimSpace(rule.Name)
		rule.When = strings.TrimSpace(rule.When)
		if rule.When == "" {
			continue
		}
		rules = append(rules, rule)
	}
	r.ContextRules = rules
}

// Validate checks the routing configuration for inverted boundaries and missing maps.
func (r *RoutingConfig) Validate() error {
	t := r.Thresholds
	if t.MinimumConfidence < 0 || t.MinimumConfidence > 1 {
		return fmt.Errorf("%w: minimum-confidence %.2f outside [0,1]", ErrInvalid, t.MinimumConfidence)
	}
	if t.CacheCoherenceConfidence < 0 || t.CacheCoherenceConfidence > 1 {
		return fmt.Errorf("%w: cache-coherence-confidence %.2f outside [0,1]", ErrInvalid, t.CacheCoherenceConfidence)
	}
	if t.CacheCoherenceConfidence < t.MinimumConfidence {
		return fmt.Errorf("%w: cache-coherence-confidence %.2f must not be below minimum-confidence %.2f",
			ErrInvalid, t.CacheCoherenceConfidence, t.MinimumConfidence)
	}
	if t.ConfidenceNormalization <= 0 {
		return fmt.Errorf("%w: confidence-normalization must be positive", ErrInvalid)
	}
	if t.SimpleMaxScore < 0 || t.SimpleMaxScore >= t.MediumMaxScore || t.MediumMaxScore >= 100 {
		return fmt.Errorf("%w: score boundaries must satisfy 0 <= simple (%d) < medium (%d) < 100",
			ErrInvalid, t.SimpleMaxScore, t.MediumMaxScore)
	}
	if t.ShortQueryTokens < 0 || t.ShortQueryTokens >= t.LongQueryTokens {
		return fmt.Errorf("%w: short-query-tokens must be below long-query-tokens", ErrInvalid)
	}

	if _, ok := r.Providers[r.DefaultProvider]; !ok {
		return fmt.Errorf("%w: default provider %q has no tier map", ErrInvalid, r.DefaultProvider)
	}
	for _, name := range r.ProviderNames() {
		m := r.Providers[name].Models
		if m.Simple == "" || m.Medium == "" || m.Complex == "" {
			return fmt.Errorf("%w: provider %q must map every tier to a model", ErrInvalid, name)
		}
	}

	seen := make(map[string]bool, len(r.ContextRules))
	for _, rule := range r.ContextRules {
		if rule.Name == "" {
			return fmt.Errorf("%w: context rule %q has no name", ErrInvalid, rule.When)
		}
		if seen[rule.Name] {
			return fmt.Errorf("%w: duplicate context rule %q", ErrInvalid, rule.Name)
		}
		seen[rule.Name] = true
	}
	return nil
}

// ProviderNames returns provider identifiers in sorted order.
func (r *RoutingConfig) ProviderNames() []string {
	names := make([]string, 0, len(r.Providers))
	for name := range r.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"fmt"

	"github.com/traylinx/switchai-router/internal/config"
)

// pipelineState is the candidate selection as it moves through the overrides.
type pipelineState struct {
	router     *Router
	ctx        *Context
	provider   string
	models     config.TierModels
	tier       Tier
	model      string
	confidence float64
	overrides  []Override
}

// overrideRule inspects the candidate and may replace it.
type overrideRule func(s *pipelineState) (Override, bool)

// overridePipeline is applied in this order; every applied override is recorded.
var overridePipeline = []overrideRule{
	explicitPreference,
	minimumConfidence,
	cacheCoherence,
}

func (s *pipelineState) run() {
	s.overrides = make([]Override, 0, len(overridePipeline))
	for _, rule := range overridePipeline {
		if o, applied := rule(s); applied {
			s.overrides = append(s.overrides, o)
		}
	}
}

func (s *pipelineState) moveTo(t Tier, model string, typ OverrideType, description string) Override {
	o := Override{
		Type:          typ,
		Description:   description,
		OriginalModel: s.model,
		OverriddenTo:  model,
	}
	s.tier = t
	s.model = model
	return o
}

// explicitPreference never serves a deep-reasoning request from the lowest tier.
func explicitPreference(s *pipelineState) (Override, bool) {
	if !s.ctx.ThinkingMode || s.tier != TierSimple {
		return Override{}, false
	}
	return s.moveTo(TierMedium, modelFor(s.models, TierMedium), OverrideExplicitPreference,
		"thinking mode requested, raised simple to medium"), true
}

// minimumConfidence raises a weakly-evidenced lowest-tier candidate.
func minimumConfidence(s *pipelineState) (Override, bool) {
	th := s.router.cfg.Thresholds
	if s.tier != TierSimple || s.confidence >= th.MinimumConfidence {
		return Override{}, false
	}
	return s.moveTo(TierMedium, modelFor(s.models, TierMedium), OverrideMinimumConfidence,
		fmt.Sprintf("confidence %.2f below %.2f, raised simple to medium", s.confidence, th.MinimumConfidence)), true
}

// cacheCoherence keeps the current model on a mid-conversation downgrade
// unless confidence exceeds the cache-coherence threshold. Upgrades pass.
func cacheCoherence(s *pipelineState) (Override, bool) {
	if s.ctx.ConversationTurn <= 1 || s.ctx.CurrentModel == nil || *s.ctx.CurrentModel == "" {
		return Override{}, false
	}
	current := *s.ctx.CurrentModel
	currentTier, ok := s.router.TierOfModel(s.provider, current)
	if !ok || s.tier >= currentTier {
		return Override{}, false
	}
	th := s.router.cfg.Thresholds
	if s.confidence > th.CacheCoherenceConfidence {
		return Override{}, false
	}
	return s.moveTo(currentTier, current, OverrideCacheCoherence,
		fmt.Sprintf("turn %d: kept %s (%s), confidence %.2f does not exceed %.2f for a downgrade to %s",
			s.ctx.ConversationTurn, current, currentTier, s.confidence, th.CacheCoherenceConfidence, s.tier)), true
}

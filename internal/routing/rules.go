// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchai-router/internal/config"
)

// ruleEnv is the flattened view of a Context that context rules are evaluated against.
type ruleEnv struct {
	Provider         string `expr:"provider"`
	ThinkingMode     bool   `expr:"thinking_mode"`
	AccountTier      string `expr:"account_tier"`
	WorkspaceType    string `expr:"workspace_type"`
	FeatureName      string `expr:"feature_name"`
	FeaturePhase     string `expr:"feature_phase"`
	HasDocuments     bool   `expr:"has_documents"`
	ConversationTurn int    `expr:"turn"`
	CurrentModel     string `expr:"current_model"`
	RecentScores     []int  `expr:"recent_scores"`
}

func newRuleEnv(ctx *Context) ruleEnv {
	env := ruleEnv{
		Provider:         ctx.Provider,
		ThinkingMode:     ctx.ThinkingMode,
		AccountTier:      ctx.AccountTier,
		HasDocuments:     ctx.HasDocuments,
		ConversationTurn: ctx.ConversationTurn,
		RecentScores:     ctx.RecentScores,
	}
	if ctx.WorkspaceType != nil {
		env.WorkspaceType = *ctx.WorkspaceType
	}
	if ctx.FeatureMode != nil {
		env.FeatureName = ctx.FeatureMode.Name
		env.FeaturePhase = string(ctx.FeatureMode.Phase)
	}
	if ctx.CurrentModel != nil {
		env.CurrentModel = *ctx.CurrentModel
	}
	return env
}

type compiledRule struct {
	name    string
	weight  int
	program *vm.Program
}

// RuleSet is a compiled, immutable list of context rules.
type RuleSet struct {
	rules []compiledRule
}

// CompileRules compiles every rule up front so a bad expression is rejected at load time.
func CompileRules(rules []config.ContextRule) (*RuleSet, error) {
	set := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		program, err := expr.Compile(r.When, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile context rule '%s': %w", r.Name, err)
		}
		set.rules = append(set.rules, compiledRule{name: r.Name, weight: r.Weight, program: program})
	}
	return set, nil
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

func (s *RuleSet) evaluate(ctx *Context, out []Signal) []Signal {
	if s.Len() == 0 {
		return out
	}
	env := newRuleEnv(ctx)
	for _, r := range s.rules {
		sig := Signal{Name: r.name, Weight: r.weight}
		result, err := expr.Run(r.program, env)
		if err != nil {
			log.Debugf("context rule %s failed: %v", r.name, err)
		} else if matched, ok := result.(bool); ok && matched {
			sig.Matched = true
			sig.MatchedValue = "rule"
		}
		out = append(out, sig)
	}
	return out
}

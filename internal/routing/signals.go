// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/traylinx/switchai-router/internal/config"
)

// queryInput is the pre-processed text a query signal is matched against.
type queryInput struct {
	raw    string
	lower  string
	tokens int
}

// matcher reports whether a signal fires and, if so, what it matched.
type matcher func(q *queryInput, th *config.Thresholds) (bool, string)

// querySignal is one row of the declarative signal table.
type querySignal struct {
	name   string
	weight int
	match  matcher
}

// lowerPattern matches a regular expression against the lower-cased text.
func lowerPattern(expr string) matcher {
	re := regexp.MustCompile(expr)
	return func(q *queryInput, _ *config.Thresholds) (bool, string) {
		if m := re.FindString(q.lower); m != "" {
			return true, strings.TrimSpace(m)
		}
		return false, ""
	}
}

// rawPattern matches a case-sensitive regular expression against the raw text.
func rawPattern(expr string) matcher {
	re := regexp.MustCompile(expr)
	return func(q *queryInput, _ *config.Thresholds) (bool, string) {
		if m := re.FindString(q.raw); m != "" {
			return true, strings.TrimSpace(m)
		}
		return false, ""
	}
}

func contains(needle string) matcher {
	return func(q *queryInput, _ *config.Thresholds) (bool, string) {
		if strings.Contains(q.raw, needle) {
			return true, needle
		}
		return false, ""
	}
}

var numberedStep = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
var stepByStep = regexp.MustCompile(`\bstep[- ]by[- ]step\b`)

// querySignals is evaluated in declaration order. The score is the sum of
// matched weights and does not depend on that order; the reasoning string does.
var querySignals = []querySignal{
	// Length.
	{name: "short_query", weight: -15, match: func(q *queryInput, th *config.Thresholds) (bool, string) {
		if q.tokens < th.ShortQueryTokens {
			return true, fmt.Sprintf("%d tokens", q.tokens)
		}
		return false, ""
	}},
	{name: "long_query", weight: 15, match: func(q *queryInput, th *config.Thresholds) (bool, string) {
		if q.tokens > th.LongQueryTokens {
			return true, fmt.Sprintf("%d tokens", q.tokens)
		}
		return false, ""
	}},

	// Simple markers.
	{name: "greeting", weight: -20, match: lowerPattern(`^\s*(hi|hello|hey|howdy|greetings|good\s+(morning|afternoon|evening)|thanks|thank\s+you)\b`)},
	{name: "factual_question", weight: -20, match: lowerPattern(`^\s*((what|who)(\s+is|\s+are|\s+was|\s+were|'s)|when|where)\b`)},
	{name: "definition", weight: -15, match: lowerPattern(`\b(define|definition\s+of|meaning\s+of)\b`)},
	{name: "list_request", weight: -10, match: lowerPattern(`^\s*(list|name)\b`)},
	{name: "single_question", weight: -5, match: func(q *queryInput, _ *config.Thresholds) (bool, string) {
		if strings.Count(q.raw, "?") == 1 && strings.HasSuffix(strings.TrimSpace(q.raw), "?") {
			return true, "?"
		}
		return false, ""
	}},

	// Complex markers.
	{name: "analysis", weight: 25, match: lowerPattern(`\b(analy[sz]e|analysis|compare|comparison|contrast|evaluate|evaluation|assess|assessment|critique)\b`)},
	{name: "design_strategy", weight: 20, match: lowerPattern(`\b(design|architect\w*|strateg\w*|roadmap)\b`)},
	{name: "research", weight: 15, match: lowerPattern(`\b(research|investigate|in-depth|comprehensive|thorough)\b`)},
	{name: "tradeoffs", weight: 20, match: lowerPattern(`\b(trade-?offs?|implications|pros\s+and\s+cons)\b`)},
	{name: "refactor_debug", weight: 15, match: lowerPattern(`\b(refactor\w*|debug\w*|troubleshoot\w*|optimi[sz]e)\b`)},
	{name: "multiple_questions", weight: 10, match: func(q *queryInput, _ *config.Thresholds) (bool, string) {
		if n := strings.Count(q.raw, "?"); n >= 2 {
			return true, fmt.Sprintf("%d questions", n)
		}
		return false, ""
	}},
	{name: "multi_step", weight: 15, match: func(q *queryInput, _ *config.Thresholds) (bool, string) {
		if n := len(numberedStep.FindAllStringIndex(q.raw, 3)); n >= 2 {
			return true, fmt.Sprintf("%d numbered steps", n)
		}
		if m := stepByStep.FindString(q.lower); m != "" {
			return true, m
		}
		return false, ""
	}},

	// Code markers.
	{name: "code_fence", weight: 10, match: contains("```")},
	{name: "code_keyword", weight: 5, match: rawPattern(`\b(func|def|import|return|const|struct|async|await|#include|public\s+static)\b`)},
	{name: "file_extension", weight: 5, match: lowerPattern(`\b\w+\.(go|py|js|jsx|ts|tsx|java|rb|rs|cpp|cc|hpp|cs|php|sql|sh|ya?ml|json|toml)\b`)},
	{name: "api_error_terms", weight: 5, match: lowerPattern(`\b(api|endpoints?|stack\s*trace|exceptions?|errors?|null\s*pointer|segfault|codebase|repository|compiler|runtime)\b`)},
}

// QuerySignalNames lists the query signal table in declaration order.
func QuerySignalNames() []string {
	names := make([]string, len(querySignals))
	for i, s := range querySignals {
		names[i] = s.name
	}
	return names
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/switchai-router/internal/config"
)

func newTestAnalyzer() *QueryAnalyzer {
	return NewQueryAnalyzer(config.DefaultThresholds(), nil)
}

func matched(c ComplexityAnalysis, name string) bool {
	for _, s := range c.Signals {
		if s.Name == name {
			return s.Matched
		}
	}
	return false
}

func TestAnalyze_EmptyInputIsBaseline(t *testing.T) {
	a := newTestAnalyzer()
	for _, text := range []string{"", "   ", "\n\t"} {
		got := a.Analyze(text)
		assert.Equal(t, baselineScore, got.Score)
		assert.Equal(t, TierMedium, got.Tier)
		assert.Zero(t, got.Confidence)
		assert.Len(t, got.Signals, len(querySignals))
		assert.Empty(t, got.MatchedSignalNames())
		assert.Contains(t, got.Reasoning, "empty query")
	}
}

func TestAnalyze_Greeting(t *testing.T) {
	got := newTestAnalyzer().Analyze("hi")

	assert.Equal(t, 15, got.Score)
	assert.Equal(t, TierSimple, got.Tier)
	assert.InDelta(t, 35.0/60.0, got.Confidence, 1e-9)
	assert.Equal(t, []string{"short_query", "greeting"}, got.MatchedSignalNames())
	assert.Equal(t, "score 15 (simple): greeting (-20), short_query (-15)", got.Reasoning)
}

func TestAnalyze_Signals(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		signals []string
	}{
		{"factual opener", "Who was the first person on the moon", []string{"factual_question"}},
		{"definition", "Please define idempotency for me", []string{"definition"}},
		{"list request", "List the planets of the solar system", []string{"list_request"}},
		{"trailing question", "Is it going to rain tomorrow in Paris?", []string{"single_question"}},
		{"analysis verb", "Compare these two approaches for caching our data", []string{"analysis"}},
		{"design", "Help me architect a queue for billing events", []string{"design_strategy"}},
		{"research", "Give me a comprehensive overview of vector databases", []string{"research"}},
		{"tradeoffs", "What are the pros and cons of monorepos", []string{"tradeoffs"}},
		{"refactor", "Can you refactor this handler to be shorter", []string{"refactor_debug"}},
		{"multiple questions", "Why does it fail? And how do I fix it?", []string{"multiple_questions"}},
		{"numbered steps", "Do this:\n1. fetch the data\n2. clean it up\n3. plot it", []string{"multi_step"}},
		{"step by step", "Walk me through it step by step please", []string{"multi_step"}},
		{"code fence", "Why is this slow\n```\nfor i := range xs {}\n```", []string{"code_fence"}},
		{"code keyword", "This func never returns when the channel is closed", []string{"code_keyword"}},
		{"file extension", "The build breaks whenever I touch main.go in the repo", []string{"file_extension"}},
		{"api terms", "The endpoint keeps throwing an exception on startup", []string{"api_error_terms"}},
	}

	a := newTestAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.text)
			for _, name := range tt.signals {
				assert.True(t, matched(got, name), "expected %s to match, got %v", name, got.MatchedSignalNames())
			}
		})
	}
}

func TestAnalyze_ScoreIsBaselinePlusMatchedWeights(t *testing.T) {
	got := newTestAnalyzer().Analyze("Analyze this codebase and suggest improvements")

	want := baselineScore
	for _, s := range got.Signals {
		if s.Matched {
			want += s.Weight
		}
	}
	assert.Equal(t, want, got.Score)
	assert.Equal(t, 80, got.Score)
	assert.Equal(t, TierComplex, got.Tier)
}

func TestAnalyze_ReasoningTiesKeepDeclarationOrder(t *testing.T) {
	got := newTestAnalyzer().Analyze("Design a migration plan and explain the tradeoffs")

	assert.Equal(t, 90, got.Score)
	assert.Equal(t, "score 90 (complex): design_strategy (+20), tradeoffs (+20)", got.Reasoning)
}

func TestAnalyze_ReasoningNamesAtMostThreeSignals(t *testing.T) {
	text := "Analyze and compare the architecture options, research the tradeoffs, then refactor the api?"
	got := newTestAnalyzer().Analyze(text)

	assert.GreaterOrEqual(t, len(got.MatchedSignalNames()), 4)
	assert.Equal(t, 2, strings.Count(got.Reasoning, ", "))
	assert.True(t, strings.HasPrefix(got.Reasoning, "score 100 (complex): analysis (+25)"))
}

func TestAnalyze_ClampsScore(t *testing.T) {
	a := newTestAnalyzer()

	high := a.Analyze("Analyze, evaluate and design a comprehensive strategy. Discuss the tradeoffs. " +
		"Then refactor and debug the api.go endpoint step by step. Why? How?")
	assert.Equal(t, 100, high.Score)
	assert.Equal(t, 1.0, high.Confidence)

	low := a.Analyze("hello, list")
	assert.GreaterOrEqual(t, low.Score, 0)
	assert.Equal(t, TierSimple, low.Tier)
}

func TestAnalyze_PathologicalInput(t *testing.T) {
	a := newTestAnalyzer()
	inputs := []string{
		strings.Repeat("analyze the tradeoffs ", 100000),
		strings.Repeat("?", 70000),
		"こんにちは、元気ですか",
		"\x00\xff\xfe binary \x01",
		strings.Repeat("日本語", 30000),
	}
	for _, text := range inputs {
		got := a.Analyze(text)
		assert.GreaterOrEqual(t, got.Score, 0)
		assert.LessOrEqual(t, got.Score, 100)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}

	long := a.Analyze(inputs[0])
	assert.True(t, matched(long, "long_query"))
	assert.Equal(t, TierComplex, long.Tier)
}

func TestAnalyze_UsesInjectedCounter(t *testing.T) {
	th := config.DefaultThresholds()
	a := NewQueryAnalyzer(th, TokenCounterFunc(func(string) int { return 1000 }))

	got := a.Analyze("hi")
	assert.True(t, matched(got, "long_query"))
	assert.False(t, matched(got, "short_query"))
}

func TestTierForScore(t *testing.T) {
	th := config.DefaultThresholds()
	tests := []struct {
		score int
		want  Tier
	}{
		{0, TierSimple},
		{25, TierSimple},
		{26, TierMedium},
		{65, TierMedium},
		{66, TierComplex},
		{100, TierComplex},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForScore(tt.score, th), "score %d", tt.score)
	}

	th.SimpleMaxScore = 10
	th.MediumMaxScore = 90
	assert.Equal(t, TierMedium, TierForScore(25, th))
	assert.Equal(t, TierMedium, TierForScore(90, th))
}

func TestTier_JSON(t *testing.T) {
	data, err := TierComplex.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"complex"`, string(data))

	var tier Tier
	require.NoError(t, tier.UnmarshalJSON([]byte(`"simple"`)))
	assert.Equal(t, TierSimple, tier)
	assert.Error(t, tier.UnmarshalJSON([]byte(`"huge"`)))
}

func TestTokenCounting(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 2, EstimateTokens("hello"))

	c := DefaultTokenCounter()
	assert.Zero(t, c.Count(""))
	assert.Positive(t, c.Count("hello world"))
	assert.Greater(t, c.Count(strings.Repeat("word ", 20000)), 10000)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	// "é" is two bytes; cutting in the middle backs off to the rune start.
	assert.Equal(t, "a", truncateUTF8("aé", 2))
	assert.Equal(t, "aé", truncateUTF8("aéb", 3))
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"sync"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// maxTokenizedBytes caps how much text is run through the BPE encoder; beyond
// it the count is extrapolated. The head is already well past long-query-tokens.
const maxTokenizedBytes = 2 * 1024

// TokenCounter estimates the number of tokens in a query.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(string) int

// Count implements TokenCounter.
func (f TokenCounterFunc) Count(text string) int { return f(text) }

// EstimateTokens approximates token count as roughly four bytes per token,
// rounding up so that any non-empty text counts as at least one token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

type bpeCounter struct {
	codec tokenizer.Codec
}

var (
	defaultCounterOnce sync.Once
	defaultCounter     TokenCounter
)

// DefaultTokenCounter returns a shared cl100k_base counter. If the encoding
// cannot be loaded it falls back to EstimateTokens.
func DefaultTokenCounter() TokenCounter {
	defaultCounterOnce.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("cl100k_base tokenizer unavailable, using byte estimate: %v", err)
			defaultCounter = TokenCounterFunc(EstimateTokens)
			return
		}
		defaultCounter = &bpeCounter{codec: codec}
	})
	return defaultCounter
}

// Count implements TokenCounter.
func (c *bpeCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	head := text
	if len(head) > maxTokenizedBytes {
		head = truncateUTF8(head, maxTokenizedBytes)
	}
	if head == "" {
		return EstimateTokens(text)
	}
	ids, _, err := c.codec.Encode(head)
	if err != nil {
		return EstimateTokens(text)
	}
	n := len(ids)
	if len(head) < len(text) {
		// Extrapolate the remainder at the observed density.
		n += int(float64(len(text)-len(head)) * float64(n) / float64(len(head)))
	}
	return n
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

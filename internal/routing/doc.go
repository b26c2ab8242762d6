// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package routing decides which model tier serves a single request.
//
// A QueryAnalyzer scores the raw text against a declarative signal table, a
// context analysis adds adjustments from the caller's situation, and the Router
// merges both, picks the provider's model for the combined tier and applies the
// override pipeline (explicit preference, minimum confidence, cache coherence).
// Everything here is pure and safe for concurrent use; nothing is persisted.
package routing

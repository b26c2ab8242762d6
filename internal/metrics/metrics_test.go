// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/switchai-router/internal/routing"
)

func TestObserveDecision(t *testing.T) {
	m := New()
	d := routing.Decision{
		Provider:      "anthropic",
		Tier:          routing.TierMedium,
		RoutingTimeMs: 0.4,
		Complexity:    routing.ComplexityAnalysis{Score: 30},
		Overrides:     []routing.Override{{Type: routing.OverrideExplicitPreference}},
	}
	m.ObserveDecision(d)
	m.ObserveDecision(d)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("anthropic", "medium")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.overrides.WithLabelValues("explicit_preference")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.routingSeconds))
}

func TestObserveWriteAndReload(t *testing.T) {
	m := New()
	m.ObserveWrite("create", "ok", time.Millisecond)
	m.ObserveWrite("create", "dropped", 0)
	m.ObserveReload(true)
	m.ObserveReload(false)
	m.ObserveReload(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("create", "dropped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reloads.WithLabelValues("error")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReload(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `switchai_router_config_reloads_total{result="ok"} 1`)
}

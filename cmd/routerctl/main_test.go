// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/traylinx/switchai-router/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "decisions.db")
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("store:\n  driver: sqlite3\n  dsn: %s\nexport:\n  codec: none\n", dsn)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path, dsn
}

func seed(t *testing.T, dsn string) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.DriverSQLite, dsn)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Insert(ctx, &store.Record{
		ID:                "rec-1",
		CreatedAt:         time.Now().Add(-time.Hour),
		AccountID:         "acct-1",
		Provider:          "anthropic",
		SelectedModel:     "claude-3-5-haiku-latest",
		Tier:              "simple",
		Score:             15,
		Confidence:        0.58,
		MatchedSignals:    []string{"greeting", "short_query"},
		ThresholdsVersion: "v1",
	}))
	require.NoError(t, st.UpdateOutcome(ctx, "rec-1", store.Outcome{RequestSucceeded: true, ResponseTokens: 120, EstimatedCostMillicents: 35}))
}

func TestRouteCommand(t *testing.T) {
	out, err := execute(t, "route", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, "claude-3-5-haiku-latest (anthropic)")
	assert.Contains(t, out, "Overrides:   none")

	out, err = execute(t, "route", "--json", "--thinking", "--provider", "openai", "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gjson.Get(out, "selected_model").String())
	assert.Equal(t, "explicit_preference", gjson.Get(out, "overrides.0.type").String())
}

func TestRouteCommand_CacheCoherence(t *testing.T) {
	out, err := execute(t, "route", "--json", "--turn", "5", "--current-model", "claude-opus-4-1", "list colors")
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-1", gjson.Get(out, "selected_model").String())
	assert.Contains(t, gjson.Get(out, "overrides.#.type").String(), "cache_coherence")
}

func TestRouteCommand_RequiresQuery(t *testing.T) {
	_, err := execute(t, "route")
	assert.Error(t, err)
}

func TestReportCommand(t *testing.T) {
	path, dsn := writeConfig(t)
	seed(t, dsn)

	out, err := execute(t, "--config", path, "report", "--account", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.Get(out, "decisions").Int())
	assert.Equal(t, int64(145), gjson.Get(out, "estimated_savings_millicents").Int())

	_, err = execute(t, "--config", path, "report", "--since", "not-a-time")
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	path, dsn := writeConfig(t)
	seed(t, dsn)

	out, err := execute(t, "--config", path, "export", "-o", "-")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "rec-1", gjson.Get(lines[0], "id").String())
	assert.True(t, gjson.Get(lines[0], "outcome.request_succeeded").Bool())

	file := filepath.Join(t.TempDir(), "out.jsonl.gz")
	_, err = execute(t, "--config", path, "export", "--codec", "gzip", "-o", file)
	require.NoError(t, err)
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = execute(t, "--config", path, "export", "--upload")
	assert.Error(t, err, "no object store configured")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: thresholds v1, 3 providers, 0 context rules")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  thresholds:\n    simple-max-score: 70\n"), 0o600))
	_, err = execute(t, "--config", path, "validate")
	assert.Error(t, err)
}

func TestWindowFlags(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	w := windowFlags{lookback: 24 * time.Hour}
	f, err := w.filter(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), f.Since)
	assert.Equal(t, now, f.Until)

	w = windowFlags{since: "2026-03-09T00:00:00Z", lookback: time.Hour}
	_, err = w.filter(now)
	assert.Error(t, err)

	w = windowFlags{}
	_, err = w.filter(now)
	assert.Error(t, err)
}

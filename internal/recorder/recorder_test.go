// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/store"
)

// memWriter is an in-memory Writer with optional blocking and failure injection.
type memWriter struct {
	mu        sync.Mutex
	records   map[string]*store.Record
	outcomes  map[string]store.Outcome
	attempts  int
	failFirst int
	failAll   bool
	gate      chan struct{}
}

func newMemWriter() *memWriter {
	return &memWriter{records: map[string]*store.Record{}, outcomes: map[string]store.Outcome{}}
}

func (w *memWriter) Insert(ctx context.Context, rec *store.Record) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.failAll || w.attempts <= w.failFirst {
		return errors.New("database is locked")
	}
	w.records[rec.ID] = rec
	return nil
}

func (w *memWriter) UpdateOutcome(ctx context.Context, id string, out store.Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.records[id]; !ok {
		return store.ErrNotFound
	}
	if _, ok := w.outcomes[id]; ok {
		return store.ErrOutcomeRecorded
	}
	w.outcomes[id] = out
	return nil
}

func (w *memWriter) snapshot() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records), len(w.outcomes)
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveWrite(op, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[op+"/"+result]++
}

func (o *countingObserver) get(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[key]
}

func testConfig() config.RecorderConfig {
	return config.RecorderConfig{Enabled: true, Workers: 2, QueueSize: 64, MaxAttempts: 2, RetryBackoff: time.Millisecond, WriteTimeout: time.Second}
}

func waitDone(t *testing.T, p *Pending) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pending create did not resolve")
	}
}

func TestRecorder_CreateResolvesWithID(t *testing.T) {
	w := newMemWriter()
	r := New(w, testConfig())
	defer r.Close(context.Background())

	p := r.Create(&store.Record{Provider: "anthropic", Tier: "simple"})
	waitDone(t, p)

	id, ok := p.ID()
	require.True(t, ok)
	assert.NotEmpty(t, id)
	assert.NoError(t, p.Err())
	n, _ := w.snapshot()
	assert.Equal(t, 1, n)
}

func TestRecorder_KeepsCallerID(t *testing.T) {
	w := newMemWriter()
	r := New(w, testConfig())
	defer r.Close(context.Background())

	p := r.Create(&store.Record{ID: "req-42"})
	waitDone(t, p)
	id, ok := p.ID()
	require.True(t, ok)
	assert.Equal(t, "req-42", id)
}

func TestRecorder_OutcomeAfterCreateOnSameShard(t *testing.T) {
	w := newMemWriter()
	r := New(w, testConfig())

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("req-%d", i)
		r.Create(&store.Record{ID: id})
		require.NoError(t, r.UpdateOutcome(id, store.Outcome{RequestSucceeded: true, ResponseTokens: 10}))
	}
	require.NoError(t, r.Close(context.Background()))

	records, outcomes := w.snapshot()
	assert.Equal(t, 20, records)
	assert.Equal(t, 20, outcomes)
}

func TestRecorder_UpdateOutcomeForUnresolvedIsSkipped(t *testing.T) {
	w := newMemWriter()
	w.gate = make(chan struct{})
	obs := &countingObserver{}
	r := New(w, testConfig(), WithObserver(obs))

	p := r.Create(&store.Record{ID: "slow"})
	assert.False(t, r.UpdateOutcomeFor(p, store.Outcome{RequestSucceeded: true}))
	assert.Equal(t, 1, obs.get("outcome/skipped"))

	close(w.gate)
	waitDone(t, p)
	assert.True(t, r.UpdateOutcomeFor(p, store.Outcome{RequestSucceeded: true}))
	require.NoError(t, r.Close(context.Background()))

	_, outcomes := w.snapshot()
	assert.Equal(t, 1, outcomes)
}

func TestRecorder_SecondOutcomeIsSkipped(t *testing.T) {
	w := newMemWriter()
	obs := &countingObserver{}
	r := New(w, testConfig(), WithObserver(obs))

	r.Create(&store.Record{ID: "once"})
	require.NoError(t, r.UpdateOutcome("once", store.Outcome{ResponseTokens: 1}))
	require.NoError(t, r.UpdateOutcome("once", store.Outcome{ResponseTokens: 2}))
	require.NoError(t, r.UpdateOutcome("unknown", store.Outcome{ResponseTokens: 3}))
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, int64(1), w.outcomes["once"].ResponseTokens)
	assert.Equal(t, 2, obs.get("outcome/skipped"))
	assert.Equal(t, 1, obs.get("outcome/ok"))
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	w := newMemWriter()
	w.gate = make(chan struct{})
	obs := &countingObserver{}
	cfg := testConfig()
	cfg.Workers, cfg.QueueSize = 1, 1
	r := New(w, cfg, WithObserver(obs))

	var dropped int
	for i := 0; i < 3; i++ {
		p := r.Create(&store.Record{ID: fmt.Sprintf("r%d", i)})
		if errors.Is(p.Err(), ErrQueueFull) {
			dropped++
			_, ok := p.ID()
			assert.False(t, ok)
		}
	}
	assert.GreaterOrEqual(t, dropped, 1)
	assert.Equal(t, dropped, obs.get("create/dropped"))

	close(w.gate)
	require.NoError(t, r.Close(context.Background()))
}

func TestRecorder_QueueSizeIsSplitAcrossWorkers(t *testing.T) {
	cases := []struct {
		workers, queueSize, perShard int
	}{
		{4, 64, 16},
		{3, 10, 3},
		{4, 2, 1},
	}
	for _, tc := range cases {
		cfg := testConfig()
		cfg.Workers, cfg.QueueSize = tc.workers, tc.queueSize
		r := New(newMemWriter(), cfg)

		total := 0
		for _, shard := range r.shards {
			assert.Equal(t, tc.perShard, cap(shard))
			total += cap(shard)
		}
		if tc.queueSize >= tc.workers {
			assert.LessOrEqual(t, total, tc.queueSize)
		}
		require.NoError(t, r.Close(context.Background()))
	}
}

func TestRecorder_RetriesTransientFailure(t *testing.T) {
	w := newMemWriter()
	w.failFirst = 1
	r := New(w, testConfig())
	defer r.Close(context.Background())

	p := r.Create(&store.Record{ID: "flaky"})
	waitDone(t, p)
	_, ok := p.ID()
	assert.True(t, ok)
	assert.Equal(t, 2, w.attempts)
}

func TestRecorder_GivesUpAfterMaxAttempts(t *testing.T) {
	w := newMemWriter()
	w.failAll = true
	obs := &countingObserver{}
	r := New(w, testConfig(), WithObserver(obs))
	defer r.Close(context.Background())

	p := r.Create(&store.Record{ID: "doomed"})
	waitDone(t, p)
	_, ok := p.ID()
	assert.False(t, ok)
	assert.Error(t, p.Err())
	assert.Equal(t, 2, w.attempts)
	assert.Equal(t, 1, obs.get("create/error"))
}

func TestRecorder_CloseDrainsAndRejects(t *testing.T) {
	w := newMemWriter()
	r := New(w, testConfig())

	for i := 0; i < 50; i++ {
		r.Create(&store.Record{ID: fmt.Sprintf("d%d", i)})
	}
	require.NoError(t, r.Close(context.Background()))
	n, _ := w.snapshot()
	assert.Equal(t, 50, n)

	p := r.Create(&store.Record{ID: "late"})
	assert.ErrorIs(t, p.Err(), ErrClosed)
	assert.ErrorIs(t, r.UpdateOutcome("late", store.Outcome{}), ErrClosed)
	assert.NoError(t, r.Close(context.Background()))
}

func TestRecorder_CloseHonoursContext(t *testing.T) {
	w := newMemWriter()
	w.gate = make(chan struct{})
	r := New(w, testConfig())
	r.Create(&store.Record{ID: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	close(w.gate)
}

func TestShardFor(t *testing.T) {
	assert.Equal(t, 0, shardFor("anything", 1))
	assert.Equal(t, shardFor("abc", 8), shardFor("abc", 8))
	for _, id := range []string{"a", "b", "c", "d"} {
		s := shardFor(id, 4)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 4)
	}
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package recorder persists routing decisions off the request path.
// Writes go through bounded, sharded queues; a full queue drops the write and
// logs instead of blocking the caller. Operations on the same record id land on
// the same shard, so a record's create is always applied before its outcome.
package recorder

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/store"
)

var (
	// ErrQueueFull is reported when a write was dropped because its shard queue was full.
	ErrQueueFull = errors.New("recorder: queue full")
	// ErrClosed is reported for writes submitted after Close.
	ErrClosed = errors.New("recorder: closed")
)

// Writer is the persistence the recorder drives. *store.Store implements it.
type Writer interface {
	Insert(ctx context.Context, rec *store.Record) error
	UpdateOutcome(ctx context.Context, id string, out store.Outcome) error
}

// Observer receives one call per finished, dropped or skipped operation.
type Observer interface {
	ObserveWrite(op, result string, elapsed time.Duration)
}

// Operation and result labels passed to Observer.
const (
	OpCreate  = "create"
	OpOutcome = "outcome"

	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
	ResultSkipped = "skipped"
)

type opKind int

const (
	opCreate opKind = iota
	opOutcome
)

type operation struct {
	kind    opKind
	id      string
	rec     *store.Record
	outcome store.Outcome
	pending *Pending
}

// Recorder is an asynchronous decision writer. It is safe for concurrent use.
type Recorder struct {
	writer   Writer
	cfg      config.RecorderConfig
	observer Observer
	warn     *rate.Limiter

	mu     sync.RWMutex
	closed bool
	shards []chan *operation
	wg     sync.WaitGroup
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithObserver reports per-operation results, typically to metrics.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observer = o }
}

// New starts cfg.Workers shard workers writing to w.
func New(w Writer, cfg config.RecorderConfig, opts ...Option) *Recorder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}

	// At most one warning per second, bursting to five.
	r := &Recorder{
		writer: w,
		cfg:    cfg,
		warn:   rate.NewLimiter(rate.Every(time.Second), 5),
		shards: make([]chan *operation, cfg.Workers),
	}
	for _, opt := range opts {
		opt(r)
	}

	// QueueSize is the total capacity, split across shards.
	perShard := cfg.QueueSize / cfg.Workers
	if perShard < 1 {
		perShard = 1
	}
	for i := range r.shards {
		r.shards[i] = make(chan *operation, perShard)
		r.wg.Add(1)
		go r.worker(r.shards[i])
	}
	return r
}

// Create queues rec for insertion and returns immediately. When rec.ID is
// empty a UUID is assigned. The returned Pending resolves once the write
// finished, failed or was dropped.
func (r *Recorder) Create(rec *store.Record) *Pending {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	p := newPending(rec.ID)
	if err := r.enqueue(&operation{kind: opCreate, id: rec.ID, rec: rec, pending: p}); err != nil {
		p.resolve(err)
	}
	return p
}

// UpdateOutcome queues the one-time outcome update for id. A record that is not
// durable yet, or already has an outcome, is skipped at debug level. The only
// errors returned are ErrQueueFull and ErrClosed, both already logged.
func (r *Recorder) UpdateOutcome(id string, out store.Outcome) error {
	if out.RecordedAt.IsZero() {
		out.RecordedAt = time.Now()
	}
	return r.enqueue(&operation{kind: opOutcome, id: id, outcome: out})
}

// UpdateOutcomeFor updates the record behind p if its create has already
// resolved successfully. Otherwise the update is skipped without waiting and
// false is returned.
func (r *Recorder) UpdateOutcomeFor(p *Pending, out store.Outcome) bool {
	id, ok := p.ID()
	if !ok {
		log.Debugf("decision record not yet durable, skipping outcome update")
		r.observe(OpOutcome, ResultSkipped, 0)
		return false
	}
	return r.UpdateOutcome(id, out) == nil
}

// Close stops accepting writes and waits for queued ones to drain, or for ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, ch := range r.shards {
			close(ch)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) enqueue(op *operation) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.observe(opName(op.kind), ResultDropped, 0)
		return ErrClosed
	}
	select {
	case r.shards[shardFor(op.id, len(r.shards))] <- op:
		return nil
	default:
		r.observe(opName(op.kind), ResultDropped, 0)
		if r.warn.Allow() {
			log.Warnf("decision recorder queue full, dropping %s for %s", opName(op.kind), op.id)
		}
		return ErrQueueFull
	}
}

func (r *Recorder) worker(queue <-chan *operation) {
	defer r.wg.Done()
	for op := range queue {
		r.process(op)
	}
}

func (r *Recorder) process(op *operation) {
	start := time.Now()
	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err = r.apply(op)
		if err == nil || !retryable(err) {
			break
		}
		if attempt < r.cfg.MaxAttempts && r.cfg.RetryBackoff > 0 {
			time.Sleep(r.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.observe(opName(op.kind), ResultOK, elapsed)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrOutcomeRecorded):
		log.Debugf("outcome update for %s skipped: %v", op.id, err)
		r.observe(opName(op.kind), ResultSkipped, elapsed)
	default:
		r.observe(opName(op.kind), ResultError, elapsed)
		if r.warn.Allow() {
			log.Warnf("decision recorder failed to %s %s after %d attempts: %v", opName(op.kind), op.id, r.cfg.MaxAttempts, err)
		}
	}
	if op.pending != nil {
		op.pending.resolve(err)
	}
}

func (r *Recorder) apply(op *operation) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	if op.kind == opCreate {
		return r.writer.Insert(ctx, op.rec)
	}
	return r.writer.UpdateOutcome(ctx, op.id, op.outcome)
}

func (r *Recorder) observe(op, result string, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveWrite(op, result, elapsed)
	}
}

func retryable(err error) bool {
	return !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrOutcomeRecorded)
}

func opName(k opKind) string {
	if k == opCreate {
		return OpCreate
	}
	return OpOutcome
}

func shardFor(id string, n int) int {
	if n == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % uint32(n))
}

// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package recorder

import "sync"

// Pending tracks one queued create. Its id is only handed out once the record
// is durable.
type Pending struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

func newPending(id string) *Pending {
	return &Pending{id: id, done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the create finished, failed or was dropped.
func (p *Pending) Done() <-chan struct{} { return p.done }

// ID returns the record id if the create has resolved successfully. It never blocks.
func (p *Pending) ID() (string, bool) {
	select {
	case <-p.done:
		if p.err == nil {
			return p.id, true
		}
		return "", false
	default:
		return "", false
	}
}

// Err is the create's failure, or nil while unresolved or on success.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

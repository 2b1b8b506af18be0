// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipe implements an in-process, bidirectional byte pipe (C2):
// two endpoints connected by channels, with blocking, non-blocking, and
// timed-receive read semantics and order-preserving delivery.
package pipe

import (
	"context"
	"sync"
	"time"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/timeutil"

	vfs "github.com/wasicore/vfs"
)

const chunkQueueDepth = 4096

// Pipe is one endpoint of a bidirectional byte pipe. New returns the two
// endpoints of a pair; each endpoint's tx feeds the other's rx.
type Pipe struct {
	clock timeutil.Clock

	mu        sync.Mutex // guards remainder and the close swap
	tx        chan []byte
	rx        chan []byte
	remainder []byte
	block     bool
	open      bool

	createdAt time.Time
	accessed  time.Time
	modified  time.Time
}

// New constructs a connected pair of pipe endpoints. block sets the
// blocking-read default for both ends; it may be changed later with
// SetBlocking.
func New(clock timeutil.Clock, block bool) (a, b *Pipe) {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	c1 := make(chan []byte, chunkQueueDepth)
	c2 := make(chan []byte, chunkQueueDepth)
	now := clock.Now()

	a = &Pipe{clock: clock, tx: c1, rx: c2, block: block, open: true, createdAt: now, accessed: now, modified: now}
	b = &Pipe{clock: clock, tx: c2, rx: c1, block: block, open: true, createdAt: now, accessed: now, modified: now}
	return
}

// SetBlocking changes whether Read blocks when no data is available.
func (p *Pipe) SetBlocking(block bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = block
}

// Read implements io.Reader. It drains the buffered remainder first, then
// performs either a non-blocking or blocking receive depending on the
// pipe's blocking mode.
func (p *Pipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.drainLocked(buf); n > 0 {
		return n, nil
	}

	if !p.open {
		return 0, nil
	}

	if !p.block {
		select {
		case chunk, ok := <-p.rx:
			if !ok {
				return 0, nil
			}
			p.installRemainderLocked(chunk)
			return p.drainLocked(buf), nil
		default:
			return 0, nil
		}
	}

	chunk, ok := <-p.rx
	if !ok {
		return 0, nil
	}
	p.installRemainderLocked(chunk)
	p.accessed = p.clock.Now()
	return p.drainLocked(buf), nil
}

// Recv reads with a bounded timeout, parking the calling goroutine in
// linearly increasing intervals (matching the original's
// `tick_wait/10` backoff, capped at 20ms) rather than blocking forever.
// It returns vfs.Timedout once the deadline elapses, and the context's
// error (mapped through vfs.Timedout) if ctx is cancelled first.
func (p *Pipe) Recv(ctx context.Context, buf []byte, timeout time.Duration) (n int, err error) {
	var report reqtrace.ReportFunc
	if reqtrace.Enabled() {
		ctx, report = reqtrace.StartSpan(ctx, "pipe.Recv")
		defer func() { report(err) }()
	}

	deadline := p.clock.Now().Add(timeout)
	tick := time.Millisecond
	for {
		p.mu.Lock()
		if m := p.drainLocked(buf); m > 0 {
			p.mu.Unlock()
			return m, nil
		}
		open := p.open
		p.mu.Unlock()
		if !open {
			return 0, nil
		}

		select {
		case chunk, ok := <-p.rx:
			if !ok {
				return 0, nil
			}
			p.mu.Lock()
			p.installRemainderLocked(chunk)
			m := p.drainLocked(buf)
			p.accessed = p.clock.Now()
			p.mu.Unlock()
			return m, nil
		case <-ctx.Done():
			return 0, vfs.Timedout
		default:
		}

		if !p.clock.Now().Before(deadline) {
			return 0, vfs.Timedout
		}

		wait := tick / 10
		if wait > 20*time.Millisecond {
			wait = 20 * time.Millisecond
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return 0, vfs.Timedout
		case <-time.After(wait):
		}
		tick += time.Millisecond
	}
}

// Write implements io.Writer: it enqueues a copy of buf. Write does not
// block while the queue holds fewer than chunkQueueDepth chunks; once the
// queue is full, it blocks until the reader takes a chunk.
func (p *Pipe) Write(buf []byte) (int, error) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return 0, vfs.Io
	}
	tx := p.tx
	p.modified = p.clock.Now()
	p.mu.Unlock()

	cp := make([]byte, len(buf))
	copy(cp, buf)

	select {
	case tx <- cp:
		return len(buf), nil
	default:
		// Queue momentarily full: fall back to a blocking send rather than
		// dropping bytes, preserving in-order delivery.
		tx <- cp
		return len(buf), nil
	}
}

// Seek is a no-op: pipes have no addressable offset.
func (p *Pipe) Seek(offset int64, whence int) (int64, error) {
	return 0, nil
}

// Close closes this endpoint's send channel, so the peer's next receive
// observes EOF, and marks this endpoint closed so its own Read/Recv stop
// consuming and its own Write fails with vfs.Io. Closing is idempotent.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil
	}
	close(p.tx)
	p.remainder = nil
	p.open = false
	return nil
}

func (p *Pipe) drainLocked(buf []byte) int {
	if len(p.remainder) == 0 {
		return 0
	}
	n := copy(buf, p.remainder)
	p.remainder = p.remainder[n:]
	if len(p.remainder) == 0 {
		p.remainder = nil
	}
	return n
}

func (p *Pipe) installRemainderLocked(chunk []byte) {
	p.remainder = append(p.remainder[:0:0], chunk...)
	// Opportunistically drain any further chunks already queued so a
	// single Read call can return more than one send's worth of bytes.
	for {
		select {
		case more, ok := <-p.rx:
			if !ok {
				return
			}
			p.remainder = append(p.remainder, more...)
		default:
			return
		}
	}
}

// VirtualFile contract (richer, authoritative impl per the resolution of
// the duplicated-impl open question: see SPEC_FULL.md §9).

func (p *Pipe) Size() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(len(p.remainder))
}

func (p *Pipe) LastAccessed() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessed
}

func (p *Pipe) LastModified() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modified
}

func (p *Pipe) CreatedTime() time.Time {
	return p.createdAt
}

// SetLen is not meaningful for a pipe; it is a no-op.
func (p *Pipe) SetLen(uint64) error { return nil }

// Unlink closes the pipe.
func (p *Pipe) Unlink() error { return p.Close() }

// BytesAvailableRead reports the buffered remainder as a lower bound;
// further chunks may be queued beyond it, so the count is never exact.
func (p *Pipe) BytesAvailableRead() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.remainder)), false
}

func (p *Pipe) Sync() error { return nil }

func (p *Pipe) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Fixed-pool zero-copy buffer allocator for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package buffer implements the core's zero-copy buffer allocator: a pool of
// N fixed-size slabs handed out as exclusive, non-cloneable Tokens.
//
// This generalizes dma.Region, a first-fit allocator over an arbitrary
// memory range meant for actual hardware DMA memory, into a fixed-size-slab
// pool: rather than first-fit over a byte range, allocation always rounds
// up to the single configured slab size, which keeps the implementation
// allocation-free after construction - the same zero-heap-after-init
// discipline dma.Region observes, achieved by pre-slicing one backing array
// instead of scanning a free list of variable-size blocks.
package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/usbarmory/dot15d4/dot15derr"
	"github.com/usbarmory/dot15d4/token"
)

// Token is a non-cloneable handle to one allocated slab, truncated to the
// length requested at allocation time. It behaves as an exclusive mutable
// view: at most one live Token exists per slab at any time (buffer.Pool
// enforces this via its free bitmap).
type Token struct {
	guard token.Guard
	pool  *Pool
	slab  int
	data  []byte
}

// Bytes exposes the token's backing slice for reading and writing.
func (t *Token) Bytes() []byte {
	return t.data
}

// Len returns the length the token was allocated with (which may be less
// than the pool's slab size).
func (t *Token) Len() int {
	return len(t.data)
}

// consume spends the token's linear guard, returning the slab index so the
// pool can free it. Panics (via the guard) if called twice.
func (t *Token) consume() int {
	t.guard.Consume()
	return t.slab
}

// Pool is a fixed-pool allocator: Slots slabs of SlabSize bytes each,
// allocated once at construction time from a single backing array.
type Pool struct {
	mu sync.Mutex

	slabSize int
	backing  []byte
	free     []bool
	freeN    int

	// waiters holds the wake channels of producers blocked in Allocate,
	// in FIFO order, bounded to backlogDepth entries.
	waiters      []chan struct{}
	backlogDepth int
}

// NewPool constructs a pool of `slots` slabs of `slabSize` bytes each. A
// blocked-producer waker backlog of `backlogDepth` entries is reserved for
// the async Allocate variant.
func NewPool(slots, slabSize, backlogDepth int) *Pool {
	if slots <= 0 || slabSize <= 0 {
		panic("dot15d4/buffer: slots and slabSize must be positive")
	}

	free := make([]bool, slots)
	for i := range free {
		free[i] = true
	}

	return &Pool{
		slabSize:     slabSize,
		backing:      make([]byte, slots*slabSize),
		free:         free,
		freeN:        slots,
		backlogDepth: backlogDepth,
	}
}

// Slots returns the total number of slabs in the pool.
func (p *Pool) Slots() int {
	return len(p.free)
}

// SlabSize returns the configured slab size.
func (p *Pool) SlabSize() int {
	return p.slabSize
}

// TryAllocate attempts a non-blocking allocation of size bytes (size must be
// <= SlabSize; requesting more than a slab can hold is a caller error and
// panics, matching the token-misuse failure semantics used throughout this
// core). Returns dot15derr.ErrOutOfMemory if no slab is currently free.
func (p *Pool) TryAllocate(size int) (*Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.allocateLocked(size)
}

func (p *Pool) allocateLocked(size int) (*Token, error) {
	if size <= 0 || size > p.slabSize {
		panic(fmt.Sprintf("dot15d4/buffer: requested size %d exceeds slab size %d", size, p.slabSize))
	}

	for i, isFree := range p.free {
		if isFree {
			p.free[i] = false
			p.freeN--
			start := i * p.slabSize
			return &Token{
				guard: token.New("BufferToken"),
				pool:  p,
				slab:  i,
				data:  p.backing[start : start+size : start+p.slabSize],
			}, nil
		}
	}

	return nil, dot15derr.ErrOutOfMemory
}

// Allocate waits until a slab becomes available (or ctx is done). It is
// cancel-safe: if ctx is cancelled before a slab is granted, the waiter
// registration is removed and no slab is consumed.
func (p *Pool) Allocate(ctx context.Context, size int) (*Token, error) {
	for {
		p.mu.Lock()
		if tok, err := p.allocateLocked(size); err == nil || err != dot15derr.ErrOutOfMemory {
			p.mu.Unlock()
			return tok, err
		}

		if len(p.waiters) >= p.backlogDepth {
			p.mu.Unlock()
			return nil, dot15derr.ErrAllocatorBacklogExceeded
		}

		wake := make(chan struct{}, 1)
		p.waiters = append(p.waiters, wake)
		p.mu.Unlock()

		select {
		case <-wake:
			// A slab was freed and offered to us; retry the allocation.
		case <-ctx.Done():
			if !p.removeWaiter(wake) {
				// Already popped for wakeup: the freed slab must not go
				// to waste on a cancelled waiter. Collect the in-flight
				// signal and pass it on to the next blocked producer.
				<-wake
				p.wakeNextWaiter()
			}
			return nil, ctx.Err()
		}
	}
}

// removeWaiter unregisters a cancelled waiter, reporting false if it was
// already popped for wakeup (its wake signal is in flight).
func (p *Pool) removeWaiter(wake chan struct{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, w := range p.waiters {
		if w == wake {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool) wakeNextWaiter() {
	p.mu.Lock()
	var wake chan struct{}
	if len(p.waiters) > 0 {
		wake = p.waiters[0]
		p.waiters = p.waiters[1:]
	}
	p.mu.Unlock()

	if wake != nil {
		wake <- struct{}{}
	}
}

// Deallocate returns a token's slab to the pool. The token must have been
// allocated from this exact pool; presenting it to a different pool panics,
// matching the token-misuse failure semantics used throughout this core.
func (p *Pool) Deallocate(tok *Token) {
	if tok.pool != p {
		panic("dot15d4/buffer: token deallocated to a different pool than it was allocated from")
	}

	slab := tok.consume()

	p.mu.Lock()
	if p.free[slab] {
		p.mu.Unlock()
		panic("dot15d4/buffer: double free of buffer token")
	}
	p.free[slab] = true
	p.freeN++

	var wake chan struct{}
	if len(p.waiters) > 0 {
		wake = p.waiters[0]
		p.waiters = p.waiters[1:]
	}
	p.mu.Unlock()

	if wake != nil {
		wake <- struct{}{}
	}
}

// Bounded, routed MPMC request/response channel for the dot15d4 MAC core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mac implements the MAC service: the bounded, address-routed
// request/response channel that brokers MCPS/MLME requests between
// producers and the MAC service task, the PIB, the frame-for-us filter,
// and the service task itself.
package mac

import (
	"context"
	"sync"

	"github.com/usbarmory/dot15d4/dot15derr"
	"github.com/usbarmory/dot15d4/token"
)

// RequestMatcher is the constraint every request type sent over a Channel must
// satisfy: a predicate matching it against a receiver-supplied address.
type RequestMatcher[A any] interface {
	MatchesAddress(addr A) bool
}

type slotState int

const (
	slotFree slotState = iota
	slotReserved
	slotRequest
	slotResponse
)

type sendMode int

const (
	modeNoResponse sendMode = iota
	modePolling
)

type messageSlot[A any, Req RequestMatcher[A], Resp any] struct {
	state slotState
	mode  sendMode
	req   Req
	resp  Resp
}

type consumerSlot[A any] struct {
	allocated bool // a ConsumerToken has been handed out for this slot
	filtering bool // currently registered with an address via WaitForRequest
	address   A
}

// Channel is a bounded MPMC channel of capacity M message slots and C
// consumer slots. Requests are matched to waiting consumers (or consumers
// to pending requests) by address, in submission order per address.
//
// All internal state lives behind one mutex; every blocking operation
// below releases it before waiting and re-scans state after being woken,
// the same pattern buffer.Pool uses for its allocation backlog - the
// single-owner-goroutine discipline this core depends on makes a plain
// mutex, not an atomic or lock-free structure, the right tool.
type Channel[A any, Req RequestMatcher[A], Resp any] struct {
	mu sync.Mutex

	messages        []messageSlot[A, Req, Resp]
	freeMessages    int
	pendingRequests []int // FIFO of slot indices holding a Request

	consumers     []consumerSlot[A]
	freeConsumers int

	// requestWaiters holds wake channels for producers blocked on
	// request-token allocation, bounded to backlogDepth.
	requestWaiters []chan struct{}
	backlogDepth   int

	// gen is closed and replaced on every state change, waking every
	// goroutine blocked in a select on it so it can re-scan. Used by
	// every other blocking operation (response waiting, request
	// waiting).
	gen chan struct{}
}

// NewChannel constructs a channel with M message slots, C consumer slots
// and a producer backlog of depth backlogDepth.
func NewChannel[A any, Req RequestMatcher[A], Resp any](m, c, backlogDepth int) *Channel[A, Req, Resp] {
	if m <= 0 || c <= 0 {
		panic("dot15d4/mac: channel must have at least one message and consumer slot")
	}
	return &Channel[A, Req, Resp]{
		messages:      make([]messageSlot[A, Req, Resp], m),
		freeMessages:  m,
		consumers:     make([]consumerSlot[A], c),
		freeConsumers: c,
		backlogDepth:  backlogDepth,
		gen:           make(chan struct{}),
	}
}

func (c *Channel[A, Req, Resp]) broadcastLocked() {
	close(c.gen)
	c.gen = make(chan struct{})
}

// RequestToken is a reserved, not-yet-sent message slot.
type RequestToken[A any, Req RequestMatcher[A], Resp any] struct {
	guard token.Guard
	ch    *Channel[A, Req, Resp]
	slot  int
}

// ResponseToken is a pending request's slot, held by a receiver until it
// calls Received.
type ResponseToken[A any, Req RequestMatcher[A], Resp any] struct {
	guard token.Guard
	ch    *Channel[A, Req, Resp]
	slot  int
}

// PollingResponseToken represents an outstanding polling-mode request,
// used to later retrieve its response via WaitForResponse.
type PollingResponseToken[A any, Req RequestMatcher[A], Resp any] struct {
	guard token.Guard
	ch    *Channel[A, Req, Resp]
	slot  int
}

// ConsumerToken is a reserved consumer slot.
type ConsumerToken[A any] struct {
	guard token.Guard
	id    int
}

// Slot returns the message slot id this token is bound to.
func (t PollingResponseToken[A, Req, Resp]) Slot() int {
	return t.slot
}

// Slot returns the message slot id this token is bound to.
func (t ResponseToken[A, Req, Resp]) Slot() int {
	return t.slot
}

// TryAllocateRequestToken attempts a non-blocking reservation of a free
// message slot.
func (c *Channel[A, Req, Resp]) TryAllocateRequestToken() (RequestToken[A, Req, Resp], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocateRequestTokenLocked()
}

func (c *Channel[A, Req, Resp]) allocateRequestTokenLocked() (RequestToken[A, Req, Resp], error) {
	for i := range c.messages {
		if c.messages[i].state == slotFree {
			c.messages[i].state = slotReserved
			c.freeMessages--
			return RequestToken[A, Req, Resp]{guard: token.New("RequestToken"), ch: c, slot: i}, nil
		}
	}
	return RequestToken[A, Req, Resp]{}, dot15derr.ErrChannelFull
}

// AllocateRequestToken waits for a free message slot, or until ctx is
// done. Cancel-safe: a cancelled wait leaves no trace in the channel.
func (c *Channel[A, Req, Resp]) AllocateRequestToken(ctx context.Context) (RequestToken[A, Req, Resp], error) {
	for {
		c.mu.Lock()
		tok, err := c.allocateRequestTokenLocked()
		if err == nil || err != dot15derr.ErrChannelFull {
			c.mu.Unlock()
			return tok, err
		}

		if len(c.requestWaiters) >= c.backlogDepth {
			c.mu.Unlock()
			return RequestToken[A, Req, Resp]{}, dot15derr.ErrAllocatorBacklogExceeded
		}

		wake := make(chan struct{}, 1)
		c.requestWaiters = append(c.requestWaiters, wake)
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			if !c.removeRequestWaiter(wake) {
				// Already popped for wakeup: the slot freed on our
				// behalf must not go to waste on a cancelled waiter.
				// Collect the in-flight signal and pass it on.
				<-wake
				c.mu.Lock()
				c.wakeOneRequestWaiterLocked()
				c.mu.Unlock()
			}
			return RequestToken[A, Req, Resp]{}, ctx.Err()
		}
	}
}

// removeRequestWaiter unregisters a cancelled waiter, reporting false if
// it was already popped for wakeup (its wake signal is in flight).
func (c *Channel[A, Req, Resp]) removeRequestWaiter(wake chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.requestWaiters {
		if w == wake {
			c.requestWaiters = append(c.requestWaiters[:i], c.requestWaiters[i+1:]...)
			return true
		}
	}
	return false
}

// ReleaseRequestToken returns a reserved slot without sending anything.
func (c *Channel[A, Req, Resp]) ReleaseRequestToken(tok RequestToken[A, Req, Resp]) {
	c.checkOwnership(tok.ch)
	tok.guard.Consume()

	c.mu.Lock()
	c.messages[tok.slot] = messageSlot[A, Req, Resp]{}
	c.freeMessages++
	c.wakeOneRequestWaiterLocked()
	c.mu.Unlock()
}

func (c *Channel[A, Req, Resp]) wakeOneRequestWaiterLocked() {
	if len(c.requestWaiters) == 0 {
		return
	}
	wake := c.requestWaiters[0]
	c.requestWaiters = c.requestWaiters[1:]
	wake <- struct{}{}
}

func (c *Channel[A, Req, Resp]) checkOwnership(ch *Channel[A, Req, Resp]) {
	if ch != c {
		panic("dot15d4/mac: token presented to the wrong channel")
	}
}

// SendRequestNoResponse consumes tok and enqueues req; any response the
// receiver produces for it is discarded.
func (c *Channel[A, Req, Resp]) SendRequestNoResponse(tok RequestToken[A, Req, Resp], req Req) {
	c.checkOwnership(tok.ch)
	slot := tok.slot
	tok.guard.Consume()

	c.mu.Lock()
	c.messages[slot] = messageSlot[A, Req, Resp]{state: slotRequest, mode: modeNoResponse, req: req}
	c.pendingRequests = append(c.pendingRequests, slot)
	c.broadcastLocked()
	c.mu.Unlock()
}

// SendRequestPollingResponse consumes tok, enqueues req, and returns a
// token the sender can later pass to WaitForResponse.
func (c *Channel[A, Req, Resp]) SendRequestPollingResponse(tok RequestToken[A, Req, Resp], req Req) PollingResponseToken[A, Req, Resp] {
	c.checkOwnership(tok.ch)
	slot := tok.slot
	tok.guard.Consume()

	c.mu.Lock()
	c.messages[slot] = messageSlot[A, Req, Resp]{state: slotRequest, mode: modePolling, req: req}
	c.pendingRequests = append(c.pendingRequests, slot)
	c.broadcastLocked()
	c.mu.Unlock()

	return PollingResponseToken[A, Req, Resp]{guard: token.New("PollingResponseToken"), ch: c, slot: slot}
}

// WaitForResponse awaits the first response matching any token in toks,
// consuming the matched token and returning its index in toks and its
// response. toks itself is not modified. Cancel-safe.
func (c *Channel[A, Req, Resp]) WaitForResponse(ctx context.Context, toks []PollingResponseToken[A, Req, Resp]) (int, Resp, error) {
	for {
		c.mu.Lock()
		for i, t := range toks {
			if t.ch != c {
				c.mu.Unlock()
				panic("dot15d4/mac: token presented to the wrong channel")
			}
			if c.messages[t.slot].state == slotResponse {
				resp := c.messages[t.slot].resp
				c.messages[t.slot] = messageSlot[A, Req, Resp]{}
				c.freeMessages++
				c.wakeOneRequestWaiterLocked()
				t.guard.Consume()
				c.mu.Unlock()
				return i, resp, nil
			}
		}
		wake := c.gen
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero Resp
			return -1, zero, ctx.Err()
		}
	}
}

// SendRequestAwaitingResponse is a convenience wrapper sending req and
// waiting for its single response.
func (c *Channel[A, Req, Resp]) SendRequestAwaitingResponse(ctx context.Context, tok RequestToken[A, Req, Resp], req Req) (Resp, error) {
	polling := c.SendRequestPollingResponse(tok, req)
	_, resp, err := c.WaitForResponse(ctx, []PollingResponseToken[A, Req, Resp]{polling})
	return resp, err
}

// TryAllocateConsumerToken attempts a non-blocking reservation of a free
// consumer slot.
func (c *Channel[A, Req, Resp]) TryAllocateConsumerToken() (ConsumerToken[A], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.freeConsumers == 0 {
		return ConsumerToken[A]{}, dot15derr.ErrChannelFull
	}
	for i := range c.consumers {
		if !c.consumers[i].allocated {
			c.freeConsumers--
			c.consumers[i].allocated = true
			return ConsumerToken[A]{guard: token.New("ConsumerToken"), id: i}, nil
		}
	}
	panic("dot15d4/mac: freeConsumers out of sync with consumer slot table")
}

// ReleaseConsumerToken returns a reserved consumer slot.
func (c *Channel[A, Req, Resp]) ReleaseConsumerToken(tok ConsumerToken[A]) {
	tok.guard.Consume()

	c.mu.Lock()
	c.consumers[tok.id] = consumerSlot[A]{}
	c.freeConsumers++
	c.mu.Unlock()
}

// TryReceiveRequest attempts a non-blocking match of a pending request
// against addr, without registering as a waiting consumer if none is
// found.
func (c *Channel[A, Req, Resp]) TryReceiveRequest(tok *ConsumerToken[A], addr A) (ResponseToken[A, Req, Resp], Req, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryMatchLocked(addr)
}

func (c *Channel[A, Req, Resp]) tryMatchLocked(addr A) (ResponseToken[A, Req, Resp], Req, bool) {
	for i, slot := range c.pendingRequests {
		if c.messages[slot].req.MatchesAddress(addr) {
			req := c.messages[slot].req
			c.pendingRequests = append(c.pendingRequests[:i], c.pendingRequests[i+1:]...)
			// The slot keeps holding the request until Received frees
			// or parks it; only the pending queue entry is gone.
			return ResponseToken[A, Req, Resp]{guard: token.New("ResponseToken"), ch: c, slot: slot}, req, true
		}
	}
	var zero Req
	return ResponseToken[A, Req, Resp]{}, zero, false
}

// WaitForRequest suspends until a pending request matching addr is
// available, or ctx is done. Cancel-safe: a cancelled wait leaves no
// consumer registration behind.
func (c *Channel[A, Req, Resp]) WaitForRequest(ctx context.Context, tok *ConsumerToken[A], addr A) (ResponseToken[A, Req, Resp], Req, error) {
	for {
		c.mu.Lock()
		if rt, req, ok := c.tryMatchLocked(addr); ok {
			c.consumers[tok.id].filtering = false
			c.mu.Unlock()
			return rt, req, nil
		}
		c.consumers[tok.id].filtering = true
		c.consumers[tok.id].address = addr
		wake := c.gen
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			c.mu.Lock()
			c.consumers[tok.id].filtering = false
			c.mu.Unlock()
			var zero Req
			return ResponseToken[A, Req, Resp]{}, zero, ctx.Err()
		}
	}
}

// Received completes the exchange for tok with resp and frees or parks the
// slot depending on the original send mode: fire-and-forget sends free
// the slot immediately and discard resp; polling-mode sends park resp in
// the slot for WaitForResponse to collect.
func (c *Channel[A, Req, Resp]) Received(tok ResponseToken[A, Req, Resp], resp Resp) {
	c.checkOwnership(tok.ch)
	slot := tok.slot
	tok.guard.Consume()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.messages[slot].mode {
	case modeNoResponse:
		c.messages[slot] = messageSlot[A, Req, Resp]{}
		c.freeMessages++
		c.wakeOneRequestWaiterLocked()
	case modePolling:
		c.messages[slot].state = slotResponse
		c.messages[slot].resp = resp
	}
	c.broadcastLocked()
}

// Receive is a convenience wrapper: wait for a request matching addr,
// invoke handler, and deliver its result via Received.
func (c *Channel[A, Req, Resp]) Receive(ctx context.Context, tok *ConsumerToken[A], addr A, handler func(Req) Resp) error {
	rt, req, err := c.WaitForRequest(ctx, tok, addr)
	if err != nil {
		return err
	}
	c.Received(rt, handler(req))
	return nil
}

// Stats reports a quiescent snapshot of slot usage, for diagnostics and
// tests of the slot-conservation invariant.
type Stats struct {
	FreeMessages  int
	FreeConsumers int
	Pending       int
}

// Stats returns a snapshot of the channel's current slot usage.
func (c *Channel[A, Req, Resp]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{FreeMessages: c.freeMessages, FreeConsumers: c.freeConsumers, Pending: len(c.pendingRequests)}
}

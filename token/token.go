// Linear-type token guard for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package token provides the single mechanism enforcing linear-type
// discipline ("must be explicitly consumed, must never be dropped") for
// every handle in the dot15d4 core: buffer tokens, request/response/consumer
// tokens on the MAC channel.
//
// Go has no linear types, so the guard is emulated the same way the standard
// library emulates "must Close()" on *os.File and net.Conn: a finalizer is
// attached to a tiny heap object at construction, and the finalizer panics
// if it ever runs - i.e. if the guard was garbage collected without having
// been explicitly consumed first. This is weaker than a compile-time
// guarantee (a token can still be leaked in ways that dodge GC, e.g. stored
// in a package-level slice forever) but it is the same bar the standard
// library accepts for this kind of resource leak detection, and it is
// sufficient for the purpose: catching accidental drops in normal control
// flow during development and testing.
package token

import "runtime"

// Guard is embedded in every linear token type in this module. It must be
// consumed exactly once via Consume.
type Guard struct {
	state *guardState
}

type guardState struct {
	kind     string
	consumed bool
	onLeaked func(kind string)
}

// New creates an armed guard. kind names the token type for the panic
// message ("RequestToken", "BufferToken", ...).
func New(kind string) Guard {
	state := &guardState{kind: kind, onLeaked: panicLeaked}
	runtime.SetFinalizer(state, finalize)
	return Guard{state: state}
}

func panicLeaked(kind string) {
	panic("dot15d4/token: " + kind + " dropped without being consumed; tokens are linear and must be released or consumed explicitly")
}

func finalize(s *guardState) {
	if !s.consumed {
		s.onLeaked(s.kind)
	}
}

// Consume marks the guard as spent, suppressing the leak panic. It must be
// called exactly once, when the caller hands off or releases the resource
// the guard protects. Calling Consume twice (double-release/double-free) is
// itself a programming error and panics, matching the "misuse is fatal in
// debug" failure semantics required by the core's token contract.
func (g Guard) Consume() {
	if g.state == nil {
		panic("dot15d4/token: Consume called on a zero-value Guard")
	}
	if g.state.consumed {
		panic("dot15d4/token: " + g.state.kind + " consumed twice")
	}
	g.state.consumed = true
	runtime.SetFinalizer(g.state, nil)
}

// Kind returns the token type name the guard was created with, for
// diagnostics.
func (g Guard) Kind() string {
	if g.state == nil {
		return ""
	}
	return g.state.kind
}

// CancellationGuard runs onCancel via defer unless Inactivate is called
// first. Callers `defer`-install cleanup (clear a registered waker, free a
// slot) immediately after registering it, then
// Inactivate once the operation completes normally so the cleanup is
// skipped. If the surrounding goroutine returns early - e.g. because
// ctx.Done() fired - the deferred guard still runs and reverts the
// registration. The buffer pool and the MAC channel do not use this type;
// they revert their registrations inline in their ctx.Done() branches.
type CancellationGuard struct {
	onCancel    func()
	inactivated bool
}

// NewCancellationGuard installs onCancel to run on Cancel unless Inactivate
// is called first.
func NewCancellationGuard(onCancel func()) *CancellationGuard {
	return &CancellationGuard{onCancel: onCancel}
}

// Inactivate prevents onCancel from running. Call this once the guarded
// operation has completed successfully.
func (g *CancellationGuard) Inactivate() {
	g.inactivated = true
}

// Cancel runs onCancel unless the guard was inactivated. Intended to be
// called via defer immediately after NewCancellationGuard.
func (g *CancellationGuard) Cancel() {
	if !g.inactivated {
		g.onCancel()
	}
}

// Driver coprocessor task for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package radio

import (
	"context"
	"fmt"

	"github.com/usbarmory/dot15d4/frame"
)

type commandKind int

const (
	cmdDisable commandKind = iota
	cmdEnable
	cmdReceive
	cmdTransmit
)

type command struct {
	kind commandKind

	// ctx is the submitting caller's context, carried so that
	// cancellation reaches the driver operation itself, not just the
	// submission. Transmit ignores it per its non-cancellable contract.
	ctx context.Context

	rxCfg  RxConfig
	txCfg  TxConfig
	uf     frame.UnsizedFrame
	sf     frame.SizedFrame
	result chan<- result
}

type result struct {
	sized frame.SizedFrame
	ok    bool
	err   error
}

// Task owns a Driver exclusively and serializes commands submitted over a
// bounded channel, so the driver coprocessor task is the single owner
// goroutine for the radio - matching this core's "one goroutine per
// mutable resource" concurrency discipline.
type Task struct {
	driver Driver
	cmds   chan command
}

// NewTask constructs a Task driving driver, with a command backlog of depth
// queueDepth. Call Run in its own goroutine to pump it.
func NewTask(driver Driver, queueDepth int) *Task {
	return &Task{driver: driver, cmds: make(chan command, queueDepth)}
}

// Run pumps submitted commands until ctx is cancelled. Exactly one
// goroutine should call Run for the lifetime of the Task.
func (t *Task) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-t.cmds:
			t.dispatch(cmd)
		}
	}
}

func (t *Task) dispatch(cmd command) {
	switch cmd.kind {
	case cmdDisable:
		err := t.driver.Disable(cmd.ctx)
		cmd.result <- result{err: err}
	case cmdEnable:
		err := t.driver.Enable(cmd.ctx)
		cmd.result <- result{err: err}
	case cmdReceive:
		// The caller's context drives the reception: a caller
		// abandoning its Receive (ack wait timeout) must cancel the
		// radio operation too, or the driver would keep writing into a
		// buffer the caller is about to release.
		sized, err := t.driver.Receive(cmd.ctx, cmd.rxCfg, cmd.uf)
		cmd.result <- result{sized: sized, err: err}
	case cmdTransmit:
		// Transmit is never cancelled: it is submitted with
		// context.Background() regardless of the caller's ctx, per
		// the non-cancellable contract on Driver.Transmit.
		ok, err := t.driver.Transmit(context.Background(), cmd.txCfg, cmd.sf)
		cmd.result <- result{ok: ok, err: err}
	}
}

// Disable idles the radio.
func (t *Task) Disable(ctx context.Context) error {
	r, err := t.submit(ctx, command{kind: cmdDisable})
	if err != nil {
		return err
	}
	return r.err
}

// Enable brings the radio out of idle.
func (t *Task) Enable(ctx context.Context) error {
	r, err := t.submit(ctx, command{kind: cmdEnable})
	if err != nil {
		return err
	}
	return r.err
}

// Receive requests a frame reception. Cancel-safe: if ctx is cancelled
// before the command is picked up by Run, Receive returns ctx.Err() at
// once (a command already sitting in the queue is still handed to the
// driver later, with the cancelled ctx); once picked up, cancellation is
// forwarded to the driver, whose Receive contract guarantees the radio is
// left idle and the buffer unconsumed.
func (t *Task) Receive(ctx context.Context, cfg RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error) {
	r, err := t.submit(ctx, command{kind: cmdReceive, rxCfg: cfg, uf: uf})
	if err != nil {
		return frame.SizedFrame{}, err
	}
	return r.sized, r.err
}

// Transmit requests a frame transmission. Not cancel-safe: once submitted,
// ctx cancellation is ignored for the transmit itself (only submission can
// still fail if the queue never drains).
func (t *Task) Transmit(ctx context.Context, cfg TxConfig, sf frame.SizedFrame) (bool, error) {
	r, err := t.submit(ctx, command{kind: cmdTransmit, txCfg: cfg, sf: sf})
	if err != nil {
		return false, err
	}
	return r.ok, r.err
}

func (t *Task) submit(ctx context.Context, cmd command) (result, error) {
	resultCh := make(chan result, 1)
	cmd.ctx = ctx
	cmd.result = resultCh

	select {
	case t.cmds <- cmd:
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case r := <-resultCh:
		return r, nil
	case <-ctx.Done():
		if cmd.kind == cmdTransmit {
			// Must not abandon a transmit in flight: block for the
			// real result instead of returning early.
			return <-resultCh, nil
		}
		return result{}, ctx.Err()
	}
}

func (k commandKind) String() string {
	switch k {
	case cmdDisable:
		return "disable"
	case cmdEnable:
		return "enable"
	case cmdReceive:
		return "receive"
	case cmdTransmit:
		return "transmit"
	default:
		return fmt.Sprintf("commandKind(%d)", int(k))
	}
}

// Radio driver and timer collaborator interfaces for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package radio defines the external collaborator surface this core
// drives but does not implement - the concrete radio peripheral driver
// and its timer - plus the coprocessor task that serializes access to
// them on behalf of the MAC service.
package radio

import (
	"context"
	"time"

	"github.com/usbarmory/dot15d4/frame"
)

// RxConfig parameterizes a single receive operation.
type RxConfig struct {
	Channel uint8
	Timeout time.Duration
}

// TxConfig parameterizes a single transmit operation.
type TxConfig struct {
	Channel uint8
	CCA     bool
}

// Driver is the collaborator interface a concrete radio peripheral driver
// implements. Every method is atomic with respect to the radio: the
// driver coprocessor task is the only caller, and it never issues a
// second command before the first completes.
type Driver interface {
	// Disable idles the radio.
	Disable(ctx context.Context) error

	// Enable brings the radio out of idle.
	Enable(ctx context.Context) error

	// Receive fills an unsized driver frame and returns it sized once a
	// frame arrives or ctx is cancelled. Cancellation must leave the
	// radio idle and the frame buffer unconsumed.
	Receive(ctx context.Context, cfg RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error)

	// Transmit sends a sized driver frame and reports whether it was
	// sent successfully. Must not be cancelled once started.
	Transmit(ctx context.Context, cfg TxConfig, sf frame.SizedFrame) (bool, error)

	// IEEE802154Address returns the radio's burned-in extended address.
	IEEE802154Address() [8]byte
}

// Transceiver is the subset of Driver (or Task) behavior the MAC service
// depends on: submitting receive and transmit operations without needing
// Disable/Enable/IEEE802154Address. Satisfied by both *Task (the serialized
// coprocessor the MAC service normally drives through) and any Driver
// directly, which lets tests exercise the MAC service against a fake driver
// with no task pump running.
type Transceiver interface {
	Receive(ctx context.Context, cfg RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error)
	Transmit(ctx context.Context, cfg TxConfig, sf frame.SizedFrame) (bool, error)
}

// Timer is the collaborator interface the single monotonic radio timer
// implements.
type Timer interface {
	// Now returns the current monotonic instant.
	Now() time.Time

	// ScheduleAlarm arms a one-shot alarm for the given instant.
	ScheduleAlarm(at time.Time)

	// WaitForAlarm blocks until the most recently scheduled alarm fires
	// or ctx is cancelled. Cancel-safe.
	WaitForAlarm(ctx context.Context) (time.Time, error)

	// WaitForAlarmAt is a convenience combining ScheduleAlarm and
	// WaitForAlarm.
	WaitForAlarmAt(ctx context.Context, at time.Time) (time.Time, error)
}

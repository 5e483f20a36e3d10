// IEEE 802.15.4 MAC/driver core error kinds
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dot15derr defines the sentinel error kinds shared across the
// dot15d4 packages (buffer, frame, mpdu, mac, radio).
//
// Errors are propagated as ordinary Go errors (errors.New / fmt.Errorf with
// %w) and compared with errors.Is, matching the convention used by the
// other packages of this module.
package dot15derr

import "errors"

var (
	// ErrOutOfMemory is returned by a non-blocking buffer allocation when
	// no slab is free.
	ErrOutOfMemory = errors.New("dot15d4: out of memory")

	// ErrAllocatorBacklogExceeded is returned when more producers than the
	// configured waker backlog depth try to block on allocation at once.
	ErrAllocatorBacklogExceeded = errors.New("dot15d4: allocator backlog exceeded")

	// ErrMalformedFrame is returned by the MPDU parser when a buffer does
	// not decode into a structurally valid frame.
	ErrMalformedFrame = errors.New("dot15d4: malformed frame")

	// ErrInvalidParameter is returned for PIB writes or MAC requests
	// carrying inconsistent arguments.
	ErrInvalidParameter = errors.New("dot15d4: invalid parameter")

	// ErrChannelAccessFailure is a transmit confirm error kind.
	ErrChannelAccessFailure = errors.New("dot15d4: channel access failure")

	// ErrNoAck is a transmit confirm error kind for an unacknowledged
	// unicast transmission (reported alongside Acked=false; callers that
	// want a hard error from send helpers can check for this).
	ErrNoAck = errors.New("dot15d4: no acknowledgment received")

	// ErrFrameTooLong is a transmit confirm error kind.
	ErrFrameTooLong = errors.New("dot15d4: frame too long")

	// ErrTransactionExpired is a queue discipline error kind.
	ErrTransactionExpired = errors.New("dot15d4: transaction expired")

	// ErrTransactionOverflow is a queue discipline error kind.
	ErrTransactionOverflow = errors.New("dot15d4: transaction overflow")

	// ErrCounterError is reserved for the security suite (frame counter
	// replay detection); not produced by this core.
	ErrCounterError = errors.New("dot15d4: counter error")

	// ErrChannelFull is returned by non-blocking token allocation on the
	// MAC channel when no slot is free. It is backpressure, not a fault.
	ErrChannelFull = errors.New("dot15d4: channel full")
)

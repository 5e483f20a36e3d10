// Immediate acknowledgment wait for the dot15d4 MAC core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mac

import (
	"context"

	"github.com/usbarmory/dot15d4/buffer"
	"github.com/usbarmory/dot15d4/frame"
	"github.com/usbarmory/dot15d4/mpdu"
	"github.com/usbarmory/dot15d4/radio"
)

// Airtime of an immediate ack expressed in symbols: 18 symbols of 16
// microseconds each, i.e. 288 microseconds.
const ackAirtimeSymbols = 18

// AckWaitDuration is AIFS + SIFS + the immediate ack's airtime: the total
// time a transmitter waits for an ack to start arriving before giving up.
const AckWaitDuration = (aifsSymbols + sifsSymbols + ackAirtimeSymbols) * symbolPeriod

// WaitForAck races reception of an immediate ack bearing seqNr against
// AckWaitDuration and reports whether it arrived. ackCfg sizes the
// single-ack buffer handed to the radio for the race; Receive's
// cancellation contract (radio left idle, buffer unconsumed) makes it safe
// to abandon the race once the timer wins.
func WaitForAck(ctx context.Context, pool *buffer.Pool, radioTask radio.Transceiver, timer radio.Timer, ackCfg frame.Config, cfg radio.RxConfig, seqNr uint8) (bool, error) {
	deadline := timer.Now().Add(AckWaitDuration)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	tok, err := pool.Allocate(waitCtx, ackCfg.BufferLength())
	if err != nil {
		if waitCtx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	uf := frame.New(tok, ackCfg)
	sf, err := radioTask.Receive(waitCtx, cfg, uf)
	if err != nil {
		pool.Deallocate(tok)
		if waitCtx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	mf := frame.FromDriverFrame(sf)
	defer pool.Deallocate(mf.IntoBuffer())

	parsed, err := mpdu.ParseFrameControl(mf)
	if err != nil {
		return false, nil
	}
	fc := parsed.FrameControl()
	if fc.FrameType != mpdu.FrameTypeAck {
		return false, nil
	}
	seq, present := parsed.SequenceNumber()
	if !present || seq != seqNr {
		return false, nil
	}
	return true, nil
}

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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usbarmory/dot15d4/buffer"
	"github.com/usbarmory/dot15d4/frame"
	"github.com/usbarmory/dot15d4/mpdu"
	"github.com/usbarmory/dot15d4/radio"
)

func testAckConfig() frame.Config {
	return frame.Config{Headroom: 1, Tailroom: 0, FCSWidth: 2, MaxSDULength: 8}
}

func TestWaitForAckReportsAckWithMatchingSequenceNumber(t *testing.T) {
	cfg := testAckConfig()
	pool := buffer.NewPool(2, cfg.BufferLength(), 2)
	timer := newRealFakeTimer()

	radioTask := &fakeTransceiver{
		receiveFn: func(ctx context.Context, rxCfg radio.RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error) {
			sf, err := uf.WithSize(int(mpdu.ImmAckLengthWoFCS))
			require.NoError(t, err)
			mf := frame.FromDriverFrame(sf)
			mpdu.WriteImmAck(mf, 0x2A)
			return mf.IntoDriverFrame(cfg)
		},
	}

	acked, err := WaitForAck(context.Background(), pool, radioTask, timer, cfg, radio.RxConfig{}, 0x2A)
	require.NoError(t, err)
	require.True(t, acked)
}

func TestWaitForAckRejectsMismatchedSequenceNumber(t *testing.T) {
	cfg := testAckConfig()
	pool := buffer.NewPool(2, cfg.BufferLength(), 2)
	timer := newRealFakeTimer()

	radioTask := &fakeTransceiver{
		receiveFn: func(ctx context.Context, rxCfg radio.RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error) {
			sf, err := uf.WithSize(int(mpdu.ImmAckLengthWoFCS))
			require.NoError(t, err)
			mf := frame.FromDriverFrame(sf)
			mpdu.WriteImmAck(mf, 0x2A)
			return mf.IntoDriverFrame(cfg)
		},
	}

	acked, err := WaitForAck(context.Background(), pool, radioTask, timer, cfg, radio.RxConfig{}, 0x2B)
	require.NoError(t, err)
	require.False(t, acked)
}

func TestWaitForAckTimesOutWhenNothingArrives(t *testing.T) {
	cfg := testAckConfig()
	pool := buffer.NewPool(2, cfg.BufferLength(), 2)
	timer := newRealFakeTimer()

	radioTask := &fakeTransceiver{
		receiveFn: func(ctx context.Context, rxCfg radio.RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error) {
			<-ctx.Done()
			return frame.SizedFrame{}, ctx.Err()
		},
	}

	acked, err := WaitForAck(context.Background(), pool, radioTask, timer, cfg, radio.RxConfig{}, 0x2A)
	require.NoError(t, err)
	require.False(t, acked)
}

func TestAckWaitDurationMatchesAifsPlusSifsPlusAckAirtime(t *testing.T) {
	require.Equal(t, 672000, int(AckWaitDuration))
}

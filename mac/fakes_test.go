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

	"github.com/usbarmory/dot15d4/frame"
	"github.com/usbarmory/dot15d4/radio"
)

// fakeTransceiver is a radio.Transceiver double driven entirely by the
// functions under test: each method forwards to the matching field, so a
// test configures exactly the behavior it needs.
type fakeTransceiver struct {
	receiveFn  func(ctx context.Context, cfg radio.RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error)
	transmitFn func(ctx context.Context, cfg radio.TxConfig, sf frame.SizedFrame) (bool, error)
}

func (f *fakeTransceiver) Receive(ctx context.Context, cfg radio.RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error) {
	return f.receiveFn(ctx, cfg, uf)
}

func (f *fakeTransceiver) Transmit(ctx context.Context, cfg radio.TxConfig, sf frame.SizedFrame) (bool, error) {
	return f.transmitFn(ctx, cfg, sf)
}

// Driver frame (radio-facing buffer view) for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package frame implements a zero-copy buffer/frame layering: a single
// buffer.Token travels from driver frame to MPDU frame to payload view and
// back without ever being copied, only re-interpreted via offset/length
// arithmetic parameterized by a driver Config.
//
// The "unsized/sized" driver frame typestate is kept as two distinct Go
// types (UnsizedFrame, SizedFrame), each only exposing the operations valid
// for that state.
package frame

import (
	"fmt"

	"github.com/usbarmory/dot15d4/buffer"
)

// UnsizedFrame wraps a freshly allocated buffer large enough to hold
// Config.BufferLength() bytes, before any SDU length has been committed.
type UnsizedFrame struct {
	buf *buffer.Token
	cfg Config
}

// New wraps buf as an unsized driver frame under the given configuration.
// buf must have been allocated with at least cfg.BufferLength() bytes.
func New(buf *buffer.Token, cfg Config) UnsizedFrame {
	cfg.validate()
	if buf.Len() < cfg.BufferLength() {
		panic(fmt.Sprintf("dot15d4/frame: buffer too small: have %d bytes, need %d", buf.Len(), cfg.BufferLength()))
	}
	return UnsizedFrame{buf: buf, cfg: cfg}
}

// WithSize commits the SDU length (excluding FCS), producing a SizedFrame.
// sduWoFCS must be at least 1 and at most Config.MaxSDULength - FCSWidth.
func (f UnsizedFrame) WithSize(sduWoFCS int) (SizedFrame, error) {
	maxPayload := f.cfg.MaxSDULength - f.cfg.FCSWidth
	if sduWoFCS < 1 || sduWoFCS > maxPayload {
		return SizedFrame{}, fmt.Errorf("dot15d4/frame: sdu length %d out of range [1, %d]", sduWoFCS, maxPayload)
	}
	return SizedFrame{buf: f.buf, cfg: f.cfg, sduWoFCS: sduWoFCS}, nil
}

// IntoBuffer consumes the frame and returns the underlying buffer.
func (f UnsizedFrame) IntoBuffer() *buffer.Token {
	return f.buf
}

// SizedFrame is a driver frame whose SDU length has been committed. All
// accessors below are pure offset arithmetic over the same underlying
// buffer; none of them copy bytes.
type SizedFrame struct {
	buf      *buffer.Token
	cfg      Config
	sduWoFCS int
}

// HeadroomRange returns the [start, end) byte range reserved for the PHY
// header / driver scratch.
func (f SizedFrame) HeadroomRange() (int, int) {
	return 0, f.cfg.Headroom
}

// SDURangeWoFCS returns the [start, end) byte range of the SDU excluding
// FCS.
func (f SizedFrame) SDURangeWoFCS() (int, int) {
	start := f.cfg.Headroom
	return start, start + f.sduWoFCS
}

// SDURangeWithFCS returns the [start, end) byte range of the SDU including
// FCS (identical to SDURangeWoFCS if FCSWidth is 0).
func (f SizedFrame) SDURangeWithFCS() (int, int) {
	start := f.cfg.Headroom
	return start, start + f.sduWoFCS + f.cfg.FCSWidth
}

// FCSRange returns the [start, end) byte range of the FCS and whether an
// FCS is present in this buffer at all (false if FCSWidth is 0, i.e. the
// driver/hardware offloads FCS entirely).
func (f SizedFrame) FCSRange() (start, end int, present bool) {
	if f.cfg.FCSWidth == 0 {
		return 0, 0, false
	}
	_, sduEnd := f.SDURangeWoFCS()
	return sduEnd, sduEnd + f.cfg.FCSWidth, true
}

// TailroomRange returns the [start, end) byte range reserved for
// driver-appended metadata after the FCS.
func (f SizedFrame) TailroomRange() (int, int) {
	_, withFCSEnd := f.SDURangeWithFCS()
	return withFCSEnd, withFCSEnd + f.cfg.Tailroom
}

// PDURange returns the [start, end) byte range of the whole committed
// region: headroom + SDU + FCS + tailroom. The four sub-ranges above
// exactly partition it.
func (f SizedFrame) PDURange() (int, int) {
	start, _ := f.HeadroomRange()
	_, tailEnd := f.TailroomRange()
	return start, tailEnd
}

// SDUWoFCSLength returns the committed SDU length, excluding FCS.
func (f SizedFrame) SDUWoFCSLength() int {
	return f.sduWoFCS
}

// HeadroomLength returns the configured headroom length.
func (f SizedFrame) HeadroomLength() int {
	return f.cfg.Headroom
}

// Config returns the driver configuration this frame was built with.
func (f SizedFrame) Config() Config {
	return f.cfg
}

// Bytes exposes the whole backing buffer for reading and writing. Callers
// are expected to restrict themselves to the ranges returned by the
// accessors above.
func (f SizedFrame) Bytes() []byte {
	return f.buf.Bytes()
}

// IntoBuffer consumes the frame and returns the underlying buffer.
func (f SizedFrame) IntoBuffer() *buffer.Token {
	return f.buf
}

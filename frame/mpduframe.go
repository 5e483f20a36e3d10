// MPDU frame (MAC-facing buffer view) for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package frame

import (
	"fmt"

	"github.com/usbarmory/dot15d4/buffer"
)

// MpduFrame is a buffer view starting at the driver's headroom offset,
// exposing exactly the MPDU (excluding FCS). Conversions to/from a
// SizedFrame are pure metadata arithmetic; no bytes move.
type MpduFrame struct {
	buf         *buffer.Token
	offset      int
	lengthWoFCS uint16
}

// NewMpduFrame constructs an MPDU frame directly. offset is always expected
// to equal the owning driver Config's Headroom.
func NewMpduFrame(buf *buffer.Token, offset int, lengthWoFCS uint16) MpduFrame {
	if lengthWoFCS == 0 {
		panic("dot15d4/frame: mpdu length excluding fcs must be non-zero")
	}
	return MpduFrame{buf: buf, offset: offset, lengthWoFCS: lengthWoFCS}
}

// FromDriverFrame produces an MPDU frame from a sized driver frame. Pure
// metadata arithmetic: the MPDU's offset becomes the driver frame's
// headroom, and its length is the driver frame's committed SDU length
// (excluding FCS).
func FromDriverFrame(rf SizedFrame) MpduFrame {
	return MpduFrame{
		buf:         rf.buf,
		offset:      rf.HeadroomLength(),
		lengthWoFCS: uint16(rf.SDUWoFCSLength()),
	}
}

// IntoDriverFrame converts the MPDU frame back into a sized driver frame
// under the given configuration. Pure metadata arithmetic: no bytes move,
// and the round trip through FromDriverFrame/IntoDriverFrame preserves
// buffer identity, headroom, SDU length and FCS range.
func (m MpduFrame) IntoDriverFrame(cfg Config) (SizedFrame, error) {
	if m.offset != cfg.Headroom {
		return SizedFrame{}, fmt.Errorf("dot15d4/frame: mpdu offset %d does not match configured headroom %d", m.offset, cfg.Headroom)
	}
	return UnsizedFrame{buf: m.buf, cfg: cfg}.WithSize(int(m.lengthWoFCS))
}

// PDULengthWoFCS returns the MPDU length excluding FCS. Independent of
// driver configuration.
func (m MpduFrame) PDULengthWoFCS() uint16 {
	return m.lengthWoFCS
}

// PDULength returns the MPDU length including FCS, given a driver's FCS
// width.
func (m MpduFrame) PDULength(fcsWidth int) uint16 {
	return m.lengthWoFCS + uint16(fcsWidth)
}

// Offset returns the buffer offset at which the MPDU starts.
func (m MpduFrame) Offset() int {
	return m.offset
}

// SDU exposes the whole MPDU range (header + payload, excluding FCS) for
// reading and writing - this is the range the MPDU parser and structural
// representation operate on.
func (m MpduFrame) SDU() []byte {
	b := m.buf.Bytes()
	return b[m.offset : m.offset+int(m.lengthWoFCS)]
}

// SetLengthWoFCS updates the committed MPDU length. Used when building a
// frame incrementally (frame control is written first, then the length is
// finalized once addressing/security/payload are known).
func (m *MpduFrame) SetLengthWoFCS(lengthWoFCS uint16) {
	if lengthWoFCS == 0 {
		panic("dot15d4/frame: mpdu length excluding fcs must be non-zero")
	}
	m.lengthWoFCS = lengthWoFCS
}

// IntoBuffer consumes the frame and returns the underlying buffer.
func (m MpduFrame) IntoBuffer() *buffer.Token {
	return m.buf
}

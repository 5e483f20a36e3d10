// Frame payload view for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package frame

import (
	"github.com/usbarmory/dot15d4/buffer"
)

// Payload is a buffer view restricted to the frame payload: the portion of
// the MPDU after the MAC header (frame control, addressing, auxiliary
// security header, information elements) and before the MIC (if present).
// Like MpduFrame, it is pure offset/length metadata over a shared buffer.
type Payload struct {
	buf    *buffer.Token
	offset int
	length int
}

// NewPayload constructs a payload view directly from an absolute offset and
// length within buf.
func NewPayload(buf *buffer.Token, offset, length int) Payload {
	if offset < 0 || length < 0 || offset+length > buf.Len() {
		panic("dot15d4/frame: payload range out of bounds")
	}
	return Payload{buf: buf, offset: offset, length: length}
}

// FromMpduFrame derives the payload view from an MPDU frame given the
// header length (everything before the payload: frame control, addressing,
// auxiliary security header and any information elements) and the MIC
// length in bytes (0 if the frame is unsecured or uses security level 0).
func FromMpduFrame(m MpduFrame, headerLength, micLength int) Payload {
	total := int(m.lengthWoFCS)
	if headerLength < 0 || micLength < 0 || headerLength+micLength > total {
		panic("dot15d4/frame: header and mic lengths exceed mpdu length")
	}
	return Payload{
		buf:    m.buf,
		offset: m.offset + headerLength,
		length: total - headerLength - micLength,
	}
}

// Bytes exposes the payload range for reading and writing.
func (p Payload) Bytes() []byte {
	b := p.buf.Bytes()
	return b[p.offset : p.offset+p.length]
}

// Len returns the payload length.
func (p Payload) Len() int {
	return p.length
}

// Offset returns the absolute buffer offset the payload starts at.
func (p Payload) Offset() int {
	return p.offset
}

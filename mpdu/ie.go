// Minimal information element list modeling for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mpdu

// IEs describes a header/nested information element list attached to an
// MPDU, reduced to just the information the sizing calculations in Repr
// need: its encoded length, and whether that length can be determined
// without also knowing the frame payload length.
//
// Most IE lists carry an explicit termination (a Payload Termination IE,
// or simply ending before the MAC payload begins) and so have a
// determinate length fixed at construction time. A list that instead
// relies on "whatever bytes are left after the known header fields and
// before the payload ends" to delimit itself is indeterminate: its length
// can only be read off an incoming frame once the payload boundary is
// independently known (e.g. from an upper-layer length field), so
// IEsAndFramePayloadLength refuses to guess and returns an error for it.
type IEs struct {
	Length        uint16
	Indeterminate bool
}

// NoIEs returns the empty IE list (zero length, determinate).
func NoIEs() IEs {
	return IEs{}
}

// Immediate acknowledgment frames for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mpdu

import "github.com/usbarmory/dot15d4/frame"

// ImmAckRepr is the structural representation shared by every immediate
// acknowledgment frame this core sends: 2006 frame version, a sequence
// number, no addressing, no security, no IEs. Computed once at package
// initialization rather than per-frame, since an ACK's shape never
// changes - only its sequence number does.
var ImmAckRepr = NewRepr().
	WithFrameControl(FrameTypeAck, FrameVersion2006, SeqNrPresent).
	WithoutAddressing().
	WithoutSecurity().
	WithoutIEs()

// ImmAckLengthWoFCS is the fixed three-byte length of an immediate
// acknowledgment MPDU (frame control + sequence number), excluding FCS.
var ImmAckLengthWoFCS = ImmAckRepr.MpduLengthWoFCS(0)

// WriteImmAck writes an immediate acknowledgment for seqNr into mf, which
// must have been sized to at least ImmAckLengthWoFCS bytes: the wire form
// [frame-control-lo, frame-control-hi, seq-nr].
func WriteImmAck(mf frame.MpduFrame, seqNr uint8) {
	fc := FrameControl{
		FrameType:    FrameTypeAck,
		FrameVersion: FrameVersion2006,
	}
	encoded := fc.Encode()

	sdu := mf.SDU()
	if len(sdu) < int(ImmAckLengthWoFCS) {
		panic("dot15d4/mpdu: mpdu frame too short for an immediate ack")
	}
	sdu[0] = encoded[0]
	sdu[1] = encoded[1]
	sdu[2] = seqNr
}

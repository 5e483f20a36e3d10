// Frame-for-us filter for the dot15d4 MAC core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mac

import "github.com/usbarmory/dot15d4/mpdu"

// AcceptFrame decides whether a received frame is addressed to this MAC,
// given its decoded frame control and addressing fields and the current
// PIB contents.
//
// Unknown frame type/version is always rejected upstream of this check -
// see the parser, which represents reserved encodings as Unknown so the
// filter never has to special-case them here.
func AcceptFrame(fc mpdu.FrameControl, addressing mpdu.AddressingFields, pib *PIB) bool {
	destPanID := addressing.DestPanID
	destPanPresent := fc.DestAddressingMode != mpdu.AddressingModeAbsent
	if !destPanPresent {
		destPanID = mpdu.BroadcastPanID
	}

	if destPanID != pib.PanID() && destPanID != mpdu.BroadcastPanID {
		return false
	}

	switch fc.DestAddressingMode {
	case mpdu.AddressingModeAbsent:
		return pib.ImplicitBroadcast()
	case mpdu.AddressingModeShort:
		if addressing.DestAddress.IsBroadcast() {
			return true
		}
		short, ok := pib.ShortAddress()
		return ok && addressing.DestAddress.Short == short
	case mpdu.AddressingModeExtended:
		return addressing.DestAddress.Extended == mpdu.ExtendedAddress(pib.ExtendedAddress())
	default:
		return false
	}
}

// ShouldAck reports whether the frame-for-us filter's acceptance of a
// frame should additionally trigger an immediate acknowledgment: the
// ack-request bit is set, the frame carries a sequence number, and the
// frame passed address filtering (ShouldAck assumes AcceptFrame has
// already returned true for this frame).
func ShouldAck(fc mpdu.FrameControl, hasSeqNr bool) bool {
	return fc.AckRequest && hasSeqNr
}

// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usbarmory/dot15d4/mpdu"
)

func newTestPIB() *PIB {
	pib := NewPIB(mpdu.ExtendedAddress(0x0011223344556677))
	pib.SetPanID(0xabcd)
	pib.SetShortAddress(0x1234)
	return pib
}

func TestAcceptFrameMatchesShortAddress(t *testing.T) {
	pib := newTestPIB()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeData, DestAddressingMode: mpdu.AddressingModeShort}
	addressing := mpdu.AddressingFields{
		DestPanID:   0xabcd,
		DestAddress: mpdu.NewShortAddress(0x1234),
	}
	require.True(t, AcceptFrame(fc, addressing, pib))
}

func TestAcceptFrameRejectsWrongPanID(t *testing.T) {
	pib := newTestPIB()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeData, DestAddressingMode: mpdu.AddressingModeShort}
	addressing := mpdu.AddressingFields{
		DestPanID:   0x9999,
		DestAddress: mpdu.NewShortAddress(0x1234),
	}
	require.False(t, AcceptFrame(fc, addressing, pib))
}

func TestAcceptFrameAcceptsBroadcastPanID(t *testing.T) {
	pib := newTestPIB()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeData, DestAddressingMode: mpdu.AddressingModeShort}
	addressing := mpdu.AddressingFields{
		DestPanID:   mpdu.BroadcastPanID,
		DestAddress: mpdu.NewShortAddress(0x1234),
	}
	require.True(t, AcceptFrame(fc, addressing, pib))
}

func TestAcceptFrameAcceptsBroadcastShortAddress(t *testing.T) {
	pib := newTestPIB()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeData, DestAddressingMode: mpdu.AddressingModeShort}
	addressing := mpdu.AddressingFields{
		DestPanID:   0xabcd,
		DestAddress: mpdu.NewShortAddress(mpdu.BroadcastShortAddress),
	}
	require.True(t, AcceptFrame(fc, addressing, pib))
}

func TestAcceptFrameRejectsOtherShortAddress(t *testing.T) {
	pib := newTestPIB()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeData, DestAddressingMode: mpdu.AddressingModeShort}
	addressing := mpdu.AddressingFields{
		DestPanID:   0xabcd,
		DestAddress: mpdu.NewShortAddress(0x9999),
	}
	require.False(t, AcceptFrame(fc, addressing, pib))
}

func TestAcceptFrameMatchesExtendedAddress(t *testing.T) {
	pib := newTestPIB()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeData, DestAddressingMode: mpdu.AddressingModeExtended}
	addressing := mpdu.AddressingFields{
		DestPanID:   0xabcd,
		DestAddress: mpdu.NewExtendedAddress(0x0011223344556677),
	}
	require.True(t, AcceptFrame(fc, addressing, pib))
}

func TestAcceptFrameAbsentAddressingHonorsImplicitBroadcast(t *testing.T) {
	pib := newTestPIB()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeData, DestAddressingMode: mpdu.AddressingModeAbsent}
	addressing := mpdu.AddressingFields{}

	require.False(t, AcceptFrame(fc, addressing, pib))

	pib.implicitBroadcast = true
	require.True(t, AcceptFrame(fc, addressing, pib))
}

func TestShouldAckRequiresAckRequestAndSequenceNumber(t *testing.T) {
	require.True(t, ShouldAck(mpdu.FrameControl{AckRequest: true}, true))
	require.False(t, ShouldAck(mpdu.FrameControl{AckRequest: true}, false))
	require.False(t, ShouldAck(mpdu.FrameControl{AckRequest: false}, true))
}

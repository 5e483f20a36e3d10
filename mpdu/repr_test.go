// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mpdu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMpduLengthWoFCSRoundTripsWithIEsAndFramePayloadLength(t *testing.T) {
	addressing, err := FrameControlRepr{}.WithAddressing(AddressingFields{
		DestPanID:        0x1234,
		DestAddress:      NewShortAddress(0xbeef),
		SrcAddress:       NewShortAddress(0xcafe),
		PanIDCompression: PanIDCompressed,
	})
	require.NoError(t, err)

	repr := addressing.WithoutSecurity().WithoutIEs()

	const framePayloadLength = 42
	mpduLen := repr.MpduLengthWoFCS(framePayloadLength)

	ieLen, payloadLen, err := repr.IEsAndFramePayloadLength(mpduLen)
	require.NoError(t, err)
	require.Equal(t, uint16(0), ieLen)
	require.Equal(t, uint16(framePayloadLength), payloadLen)
}

func TestMpduLengthWoFCSAccountsForSecurity(t *testing.T) {
	repr := FrameControlRepr{}.
		WithoutAddressing().
		WithSecurity(Security{SecurityLevel: SecurityLevelEncMic64, KeyIDMode: KeyIDModeImplicit}).
		WithoutIEs()

	withSecurity := repr.MpduLengthWoFCS(0)

	plain := FrameControlRepr{}.WithoutAddressing().WithoutSecurity().WithoutIEs().MpduLengthWoFCS(0)

	// security control (1) + frame counter (4) + mic (8) = 13 extra bytes.
	require.Equal(t, plain+13, withSecurity)
}

func TestIEsAndFramePayloadLengthRejectsTooShortMpdu(t *testing.T) {
	repr := FrameControlRepr{}.WithoutAddressing().WithoutSecurity().WithoutIEs()

	_, _, err := repr.IEsAndFramePayloadLength(1)
	require.Error(t, err)
}

func TestIEsAndFramePayloadLengthRejectsIndeterminateIEs(t *testing.T) {
	repr := FrameControlRepr{}.WithoutAddressing().WithoutSecurity().WithIEs(IEs{Indeterminate: true})

	_, _, err := repr.IEsAndFramePayloadLength(10)
	require.Error(t, err)
}

func TestAddressingFieldsLengthHonorsPanIDCompression(t *testing.T) {
	compressed := AddressingFields{
		DestAddress:      NewShortAddress(1),
		SrcAddress:       NewShortAddress(2),
		PanIDCompression: PanIDCompressed,
	}
	uncompressed := compressed
	uncompressed.PanIDCompression = PanIDUncompressed

	cLen, err := compressed.FieldsLength()
	require.NoError(t, err)
	uLen, err := uncompressed.FieldsLength()
	require.NoError(t, err)

	require.Equal(t, uLen-2, cLen)
}

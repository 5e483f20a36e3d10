// IEEE 802.15.4 frame control for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mpdu implements the structural representation and parser for
// IEEE 802.15.4 MAC protocol data units: frame control, addressing,
// security and information elements, plus the typestate builder used to
// size and populate outgoing frames and the tagged-variant parser used to
// read incoming ones.
package mpdu

import "fmt"

// FrameType is the three-bit frame type field of the frame control.
type FrameType uint8

const (
	FrameTypeBeacon         FrameType = 0b000
	FrameTypeData           FrameType = 0b001
	FrameTypeAck            FrameType = 0b010
	FrameTypeMacCommand     FrameType = 0b011
	FrameTypeMultipurpose   FrameType = 0b101
	FrameTypeFragmentOrFrak FrameType = 0b110
	FrameTypeExtended       FrameType = 0b111
	FrameTypeUnknown        FrameType = 0xff
)

// ParseFrameType maps a raw three-bit field to a FrameType, returning
// FrameTypeUnknown for reserved encodings (0b100).
func ParseFrameType(v uint8) FrameType {
	switch v & 0b111 {
	case 0b000:
		return FrameTypeBeacon
	case 0b001:
		return FrameTypeData
	case 0b010:
		return FrameTypeAck
	case 0b011:
		return FrameTypeMacCommand
	case 0b101:
		return FrameTypeMultipurpose
	case 0b110:
		return FrameTypeFragmentOrFrak
	case 0b111:
		return FrameTypeExtended
	default:
		return FrameTypeUnknown
	}
}

func (t FrameType) String() string {
	switch t {
	case FrameTypeBeacon:
		return "beacon"
	case FrameTypeData:
		return "data"
	case FrameTypeAck:
		return "ack"
	case FrameTypeMacCommand:
		return "mac-command"
	case FrameTypeMultipurpose:
		return "multipurpose"
	case FrameTypeFragmentOrFrak:
		return "fragment-or-frak"
	case FrameTypeExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// FrameVersion is the two-bit frame version field of the frame control.
type FrameVersion uint8

const (
	FrameVersion2003     FrameVersion = 0b00
	FrameVersion2006     FrameVersion = 0b01
	FrameVersion2015Plus FrameVersion = 0b10
	FrameVersionUnknown  FrameVersion = 0xff
)

// ParseFrameVersion maps a raw two-bit field to a FrameVersion, returning
// FrameVersionUnknown for the reserved encoding 0b11.
func ParseFrameVersion(v uint8) FrameVersion {
	switch v & 0b11 {
	case 0b00:
		return FrameVersion2003
	case 0b01:
		return FrameVersion2006
	case 0b10:
		return FrameVersion2015Plus
	default:
		return FrameVersionUnknown
	}
}

// SeqNrPresence indicates whether a frame carries a sequence number byte.
// In the 2015+ frame version, it is explicitly suppressible via the
// "sequence number suppression" frame control bit.
type SeqNrPresence bool

const (
	SeqNrPresent SeqNrPresence = true
	SeqNrAbsent  SeqNrPresence = false
)

// Length returns the byte length contributed by the sequence number field.
func (s SeqNrPresence) Length() uint16 {
	if s {
		return 1
	}
	return 0
}

// frame control bit layout, low byte then high byte (little-endian on the
// wire, as required by IEEE 802.15.4).
const (
	fcFrameTypeMask     = 0b0000_0000_0000_0111
	fcSecurityEnabled   = 1 << 3
	fcFramePending      = 1 << 4
	fcAckRequest        = 1 << 5
	fcPanIDCompression  = 1 << 6
	fcReserved          = 1 << 7
	fcSeqNrSuppression  = 1 << 8
	fcIEPresent         = 1 << 9
	fcDestAddrModeShift = 10
	fcDestAddrModeMask  = 0b11 << fcDestAddrModeShift
	fcFrameVersionShift = 12
	fcFrameVersionMask  = 0b11 << fcFrameVersionShift
	fcSrcAddrModeShift  = 14
	fcSrcAddrModeMask   = 0b11 << fcSrcAddrModeShift
)

// FrameControl is the fully decoded two-byte frame control field.
type FrameControl struct {
	FrameType          FrameType
	SecurityEnabled    bool
	FramePending       bool
	AckRequest         bool
	PanIDCompression   bool
	SeqNrSuppression   bool
	IEPresent          bool
	DestAddressingMode AddressingMode
	FrameVersion       FrameVersion
	SrcAddressingMode  AddressingMode
}

// Encode packs the frame control into its two-byte wire form (little
// endian).
func (fc FrameControl) Encode() [2]byte {
	var v uint16
	v |= uint16(fc.FrameType) & fcFrameTypeMask
	if fc.SecurityEnabled {
		v |= fcSecurityEnabled
	}
	if fc.FramePending {
		v |= fcFramePending
	}
	if fc.AckRequest {
		v |= fcAckRequest
	}
	if fc.PanIDCompression {
		v |= fcPanIDCompression
	}
	if fc.SeqNrSuppression {
		v |= fcSeqNrSuppression
	}
	if fc.IEPresent {
		v |= fcIEPresent
	}
	v |= (uint16(fc.DestAddressingMode) << fcDestAddrModeShift) & fcDestAddrModeMask
	v |= (uint16(fc.FrameVersion) << fcFrameVersionShift) & fcFrameVersionMask
	v |= (uint16(fc.SrcAddressingMode) << fcSrcAddrModeShift) & fcSrcAddrModeMask

	return [2]byte{byte(v), byte(v >> 8)}
}

// DecodeFrameControl unpacks a two-byte little-endian frame control field.
func DecodeFrameControl(b [2]byte) FrameControl {
	v := uint16(b[0]) | uint16(b[1])<<8
	return FrameControl{
		FrameType:          ParseFrameType(uint8(v & fcFrameTypeMask)),
		SecurityEnabled:    v&fcSecurityEnabled != 0,
		FramePending:       v&fcFramePending != 0,
		AckRequest:         v&fcAckRequest != 0,
		PanIDCompression:   v&fcPanIDCompression != 0,
		SeqNrSuppression:   v&fcSeqNrSuppression != 0,
		IEPresent:          v&fcIEPresent != 0,
		DestAddressingMode: ParseAddressingMode(uint8((v & fcDestAddrModeMask) >> fcDestAddrModeShift)),
		FrameVersion:       ParseFrameVersion(uint8((v & fcFrameVersionMask) >> fcFrameVersionShift)),
		SrcAddressingMode:  ParseAddressingMode(uint8((v & fcSrcAddrModeMask) >> fcSrcAddrModeShift)),
	}
}

func (fc FrameControl) String() string {
	return fmt.Sprintf("FrameControl{type=%s version=%v dest=%v src=%v ack=%v security=%v}",
		fc.FrameType, fc.FrameVersion, fc.DestAddressingMode, fc.SrcAddressingMode, fc.AckRequest, fc.SecurityEnabled)
}

// IEEE 802.15.4 addressing for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mpdu

import "fmt"

// AddressingMode is the two-bit addressing mode field used for both source
// and destination addressing.
type AddressingMode uint8

const (
	AddressingModeAbsent   AddressingMode = 0b00
	AddressingModeShort    AddressingMode = 0b10
	AddressingModeExtended AddressingMode = 0b11
	AddressingModeUnknown  AddressingMode = 0xff
)

// ParseAddressingMode maps a raw two-bit field to an AddressingMode,
// returning AddressingModeUnknown for the reserved encoding 0b01.
func ParseAddressingMode(v uint8) AddressingMode {
	switch v & 0b11 {
	case 0b00:
		return AddressingModeAbsent
	case 0b10:
		return AddressingModeShort
	case 0b11:
		return AddressingModeExtended
	default:
		return AddressingModeUnknown
	}
}

// Length returns the byte length of an address encoded in this mode.
// Panics for AddressingModeUnknown: a reserved addressing mode can never
// be validly sized.
func (m AddressingMode) Length() uint16 {
	switch m {
	case AddressingModeAbsent:
		return 0
	case AddressingModeShort:
		return 2
	case AddressingModeExtended:
		return 8
	default:
		panic("dot15d4/mpdu: unknown addressing mode has no defined length")
	}
}

func (m AddressingMode) String() string {
	switch m {
	case AddressingModeAbsent:
		return "absent"
	case AddressingModeShort:
		return "short"
	case AddressingModeExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// ShortAddress is a 16-bit short address, stored host-endian.
type ShortAddress uint16

// BroadcastShortAddress is the reserved short-address broadcast value.
const BroadcastShortAddress ShortAddress = 0xffff

// ExtendedAddress is a 64-bit (EUI-64) extended address, stored
// host-endian.
type ExtendedAddress uint64

// Address is a tagged union over an absent, short or extended address.
type Address struct {
	Mode     AddressingMode
	Short    ShortAddress
	Extended ExtendedAddress
}

// AbsentAddress constructs an Address with AddressingModeAbsent.
func AbsentAddress() Address {
	return Address{Mode: AddressingModeAbsent}
}

// NewShortAddress constructs an Address carrying a short address.
func NewShortAddress(a ShortAddress) Address {
	return Address{Mode: AddressingModeShort, Short: a}
}

// NewExtendedAddress constructs an Address carrying an extended address.
func NewExtendedAddress(a ExtendedAddress) Address {
	return Address{Mode: AddressingModeExtended, Extended: a}
}

// IsBroadcast reports whether this address is the reserved short-address
// broadcast value.
func (a Address) IsBroadcast() bool {
	return a.Mode == AddressingModeShort && a.Short == BroadcastShortAddress
}

func (a Address) String() string {
	switch a.Mode {
	case AddressingModeAbsent:
		return "<absent>"
	case AddressingModeShort:
		return fmt.Sprintf("short(0x%04x)", uint16(a.Short))
	case AddressingModeExtended:
		return fmt.Sprintf("extended(0x%016x)", uint64(a.Extended))
	default:
		return "<unknown>"
	}
}

// PanID is a 16-bit PAN identifier.
type PanID uint16

// BroadcastPanID is the reserved PAN ID broadcast value.
const BroadcastPanID PanID = 0xffff

// PanIDCompression indicates whether the destination PAN ID is elided from
// the wire form because it equals the source PAN ID (or, in later frame
// versions, under the extended compression rules).
type PanIDCompression bool

const (
	PanIDCompressed   PanIDCompression = true
	PanIDUncompressed PanIDCompression = false
)

// AddressingFields is the fully decoded addressing portion of an MPDU: the
// destination and source PAN IDs/addresses plus the PAN ID compression
// flag that governs how they are serialized.
type AddressingFields struct {
	DestPanID        PanID
	DestAddress      Address
	SrcPanID         PanID
	SrcAddress       Address
	PanIDCompression PanIDCompression
}

// FieldsLength returns the total byte length of the addressing fields as
// they would actually appear on the wire, honoring PAN ID compression:
// when compression is requested and both addressing modes are present,
// the destination PAN ID is written and the source PAN ID is elided (the
// 2006 compression rule used throughout this core; the 2015+ extended
// compression table governing every combination of present/absent
// addressing is not implemented).
func (a AddressingFields) FieldsLength() (uint16, error) {
	var length uint16

	if a.DestAddress.Mode == AddressingModeUnknown || a.SrcAddress.Mode == AddressingModeUnknown {
		return 0, fmt.Errorf("dot15d4/mpdu: unknown addressing mode")
	}

	if a.DestAddress.Mode != AddressingModeAbsent {
		length += 2 // dest PAN ID
		length += a.DestAddress.Mode.Length()
	}

	if a.SrcAddress.Mode != AddressingModeAbsent {
		if !(a.PanIDCompression && a.DestAddress.Mode != AddressingModeAbsent) {
			length += 2 // src PAN ID, unless compressed away
		}
		length += a.SrcAddress.Mode.Length()
	}

	return length, nil
}

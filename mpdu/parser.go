// MPDU parser for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mpdu

import (
	"fmt"

	"github.com/usbarmory/dot15d4/dot15derr"
	"github.com/usbarmory/dot15d4/frame"
)

// ParseLevel tags how much of an incoming MPDU a ParsedMpdu has decoded so
// far. Rather than a chain of distinct Go types (one per level, as used by
// the builder side in repr.go), the parser uses a single struct with a
// level tag and guarded accessors: the set of valid "parsed up to" states
// forms a linear chain here (unlike the builder, which branches on
// optional addressing/security/IEs), so a tag check on each accessor gives
// the same compile-time intent with an allocation-free, branch-only
// runtime cost instead of a four-step generic type chain.
type ParseLevel int

const (
	ParsedFrameControl ParseLevel = iota
	ParsedAddressing
	ParsedSecurity
	ParsedAllFields
)

// ParsedMpdu is an incoming MPDU decoded incrementally up to Level.
// Accessors for fields beyond the current level panic: callers are
// expected to drive parsing forward (ParseAddressing, ParseSecurity,
// ParseIEs) before reading fields that depend on it, mirroring the
// compile-time guarantee the builder chain provides for construction.
type ParsedMpdu struct {
	level ParseLevel
	mf    frame.MpduFrame

	frameControl FrameControl
	seqNrOffset  int // -1 if absent
	seqNr        uint8

	addressing AddressingFields
	headerEnd  int // offset just past the fields parsed so far

	security Security

	ieLength      uint16
	payloadOffset int
	payloadLength int
}

// Level returns how far this ParsedMpdu has been decoded.
func (p *ParsedMpdu) Level() ParseLevel {
	return p.level
}

// FrameControl returns the decoded frame control. Valid at every level.
func (p *ParsedMpdu) FrameControl() FrameControl {
	return p.frameControl
}

// SequenceNumber returns the sequence number and whether one is present.
// Valid at every level.
func (p *ParsedMpdu) SequenceNumber() (uint8, bool) {
	if p.seqNrOffset < 0 {
		return 0, false
	}
	return p.seqNr, true
}

// ParseFrameControl decodes the frame control and, if present, the
// sequence number from mf, producing a ParsedMpdu at ParsedFrameControl
// level.
func ParseFrameControl(mf frame.MpduFrame) (*ParsedMpdu, error) {
	sdu := mf.SDU()
	if len(sdu) < 2 {
		return nil, fmt.Errorf("%w: mpdu too short for frame control", dot15derr.ErrMalformedFrame)
	}

	if sdu[0]&fcReserved != 0 {
		return nil, fmt.Errorf("%w: reserved frame control bit set", dot15derr.ErrMalformedFrame)
	}

	fc := DecodeFrameControl([2]byte{sdu[0], sdu[1]})
	p := &ParsedMpdu{level: ParsedFrameControl, mf: mf, frameControl: fc, seqNrOffset: -1, headerEnd: 2}

	if !fc.SeqNrSuppression {
		if len(sdu) < 3 {
			return nil, fmt.Errorf("%w: mpdu too short for sequence number", dot15derr.ErrMalformedFrame)
		}
		p.seqNrOffset = 2
		p.seqNr = sdu[2]
		p.headerEnd = 3
	}

	return p, nil
}

func (p *ParsedMpdu) requireLevel(min ParseLevel, what string) {
	if p.level < min {
		panic(fmt.Sprintf("dot15d4/mpdu: %s accessed before parsing reached that level", what))
	}
}

// Addressing returns the decoded addressing fields. Requires Level() >=
// ParsedAddressing.
func (p *ParsedMpdu) Addressing() AddressingFields {
	p.requireLevel(ParsedAddressing, "addressing")
	return p.addressing
}

// ParseAddressing decodes the addressing fields, advancing the ParsedMpdu
// to ParsedAddressing level. destMode/srcMode/panIDCompression describe
// the wire layout to expect; a full implementation would derive these
// from upper-layer context (the MAC knows which peer it is talking to and
// in what addressing mode), so they are supplied by the caller rather than
// guessed from the frame control alone.
func (p *ParsedMpdu) ParseAddressing(destMode, srcMode AddressingMode, panIDCompression PanIDCompression) error {
	if p.level != ParsedFrameControl {
		panic("dot15d4/mpdu: ParseAddressing called out of order")
	}

	sdu := p.mf.SDU()
	off := p.headerEnd

	a := AddressingFields{PanIDCompression: panIDCompression}
	a.DestAddress.Mode = destMode
	a.SrcAddress.Mode = srcMode

	if destMode != AddressingModeAbsent {
		if off+2 > len(sdu) {
			return fmt.Errorf("%w: mpdu too short for destination pan id", dot15derr.ErrMalformedFrame)
		}
		a.DestPanID = PanID(uint16(sdu[off]) | uint16(sdu[off+1])<<8)
		off += 2

		switch destMode {
		case AddressingModeShort:
			if off+2 > len(sdu) {
				return fmt.Errorf("%w: mpdu too short for destination address", dot15derr.ErrMalformedFrame)
			}
			a.DestAddress.Short = ShortAddress(uint16(sdu[off]) | uint16(sdu[off+1])<<8)
			off += 2
		case AddressingModeExtended:
			if off+8 > len(sdu) {
				return fmt.Errorf("%w: mpdu too short for destination address", dot15derr.ErrMalformedFrame)
			}
			var ext uint64
			for i := 0; i < 8; i++ {
				ext |= uint64(sdu[off+i]) << (8 * i)
			}
			a.DestAddress.Extended = ExtendedAddress(ext)
			off += 8
		default:
			return fmt.Errorf("%w: unsupported destination addressing mode %v", dot15derr.ErrMalformedFrame, destMode)
		}
	}

	if srcMode != AddressingModeAbsent {
		compressed := panIDCompression && destMode != AddressingModeAbsent
		if !compressed {
			if off+2 > len(sdu) {
				return fmt.Errorf("%w: mpdu too short for source pan id", dot15derr.ErrMalformedFrame)
			}
			a.SrcPanID = PanID(uint16(sdu[off]) | uint16(sdu[off+1])<<8)
			off += 2
		} else {
			a.SrcPanID = a.DestPanID
		}

		switch srcMode {
		case AddressingModeShort:
			if off+2 > len(sdu) {
				return fmt.Errorf("%w: mpdu too short for source address", dot15derr.ErrMalformedFrame)
			}
			a.SrcAddress.Short = ShortAddress(uint16(sdu[off]) | uint16(sdu[off+1])<<8)
			off += 2
		case AddressingModeExtended:
			if off+8 > len(sdu) {
				return fmt.Errorf("%w: mpdu too short for source address", dot15derr.ErrMalformedFrame)
			}
			var ext uint64
			for i := 0; i < 8; i++ {
				ext |= uint64(sdu[off+i]) << (8 * i)
			}
			a.SrcAddress.Extended = ExtendedAddress(ext)
			off += 8
		default:
			return fmt.Errorf("%w: unsupported source addressing mode %v", dot15derr.ErrMalformedFrame, srcMode)
		}
	}

	p.addressing = a
	p.headerEnd = off
	p.level = ParsedAddressing
	return nil
}

// Security returns the decoded auxiliary security header. Requires
// Level() >= ParsedSecurity.
func (p *ParsedMpdu) Security() (Security, bool) {
	p.requireLevel(ParsedSecurity, "security")
	return p.security, p.frameControl.SecurityEnabled
}

// ParseSecurity decodes the auxiliary security header if
// FrameControl().SecurityEnabled is set, advancing the ParsedMpdu to
// ParsedSecurity level.
func (p *ParsedMpdu) ParseSecurity(level SecurityLevel, keyIDMode KeyIDMode, tschMode bool) error {
	if p.level != ParsedAddressing {
		panic("dot15d4/mpdu: ParseSecurity called out of order")
	}

	if !p.frameControl.SecurityEnabled {
		p.level = ParsedSecurity
		return nil
	}

	sdu := p.mf.SDU()
	off := p.headerEnd

	sec := Security{TSCHMode: tschMode, SecurityLevel: level, KeyIDMode: keyIDMode}
	headerLen := sec.AuxSecHeaderLength()
	if off+headerLen > len(sdu) {
		return fmt.Errorf("%w: mpdu too short for auxiliary security header", dot15derr.ErrMalformedFrame)
	}

	cursor := off + 1 // skip security control byte, already implied by arguments
	if !tschMode {
		sec.FrameCounter = uint32(sdu[cursor]) | uint32(sdu[cursor+1])<<8 | uint32(sdu[cursor+2])<<16 | uint32(sdu[cursor+3])<<24
		cursor += 4
	}

	switch keyIDMode {
	case KeyIDModeImplicit:
	case KeyIDModeIndex:
		sec.KeyIndex = sdu[cursor]
	case KeyIDMode4Byte:
		copy(sec.KeySource4[:], sdu[cursor:cursor+4])
		sec.KeyIndex = sdu[cursor+4]
	case KeyIDMode8Byte:
		copy(sec.KeySource8[:], sdu[cursor:cursor+8])
		sec.KeyIndex = sdu[cursor+8]
	}

	p.security = sec
	p.headerEnd = off + headerLen
	p.level = ParsedSecurity
	return nil
}

// Payload returns the frame payload view. Requires Level() ==
// ParsedAllFields.
func (p *ParsedMpdu) Payload() frame.Payload {
	p.requireLevel(ParsedAllFields, "payload")
	return frame.NewPayload(p.mf.IntoBuffer(), p.payloadOffset, p.payloadLength)
}

// ParseIEs finalizes the ParsedMpdu, locating the frame payload boundary
// using ieLength (the length of any header/nested information elements
// immediately following the fields parsed so far). Advances to
// ParsedAllFields level.
func (p *ParsedMpdu) ParseIEs(ieLength uint16) error {
	if p.level != ParsedSecurity {
		panic("dot15d4/mpdu: ParseIEs called out of order")
	}

	sdu := p.mf.SDU()
	micLength := 0
	if p.frameControl.SecurityEnabled {
		micLength = p.security.MicLength()
	}

	payloadOffset := p.headerEnd + int(ieLength)
	payloadLength := len(sdu) - payloadOffset - micLength
	if payloadLength < 0 {
		return fmt.Errorf("%w: ie length %d leaves no room for payload and mic", dot15derr.ErrMalformedFrame, ieLength)
	}

	p.ieLength = ieLength
	p.payloadOffset = p.mf.Offset() + payloadOffset
	p.payloadLength = payloadLength
	p.level = ParsedAllFields
	return nil
}

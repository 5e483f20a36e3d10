// MPDU structural representation (typestate builder) for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mpdu

import "fmt"

// Repr carries just enough structural information about an MPDU to
// calculate the buffer size it requires, without reference to any driver
// configuration, so the same Repr can be reused across drivers and
// precomputed as a package-level value for frequently sent frames (see
// ImmAckRepr in ack.go).
//
// Building one is a chain of typestate stages - UnsizedRepr,
// FrameControlRepr, AddressingStageRepr, SecurityStageRepr - each only
// exposing the next field to be filled in, so a Repr cannot be used for
// sizing until every field has been supplied (by a With*/Without* call).
type Repr struct {
	frameType    FrameType
	frameVersion FrameVersion
	seqNr        SeqNrPresence
	addressing   *AddressingFields
	addrLength   uint16
	security     *Security
	ies          IEs
}

// UnsizedRepr is the entry point of the builder chain.
type UnsizedRepr struct{}

// NewRepr starts building a Repr.
func NewRepr() UnsizedRepr {
	return UnsizedRepr{}
}

// WithFrameControl records whether a sequence number is present, completing
// the frame-control-dependent portion of the Repr's size calculation.
func (UnsizedRepr) WithFrameControl(frameType FrameType, frameVersion FrameVersion, seqNr SeqNrPresence) FrameControlRepr {
	return FrameControlRepr{frameType: frameType, frameVersion: frameVersion, seqNr: seqNr}
}

// FrameControlRepr is the builder stage after frame control has been
// fixed.
type FrameControlRepr struct {
	frameType    FrameType
	frameVersion FrameVersion
	seqNr        SeqNrPresence
}

// WithAddressing records the frame's addressing fields. Returns an error
// if the addressing modes are inconsistent (e.g. unknown).
func (r FrameControlRepr) WithAddressing(a AddressingFields) (AddressingStageRepr, error) {
	length, err := a.FieldsLength()
	if err != nil {
		return AddressingStageRepr{}, fmt.Errorf("dot15d4/mpdu: invalid addressing: %w", err)
	}
	return AddressingStageRepr{
		frameType:    r.frameType,
		frameVersion: r.frameVersion,
		seqNr:        r.seqNr,
		addressing:   &a,
		addrLength:   length,
	}, nil
}

// WithoutAddressing records that the frame carries no addressing fields at
// all (as immediate acks and the beacons the MAC service builds do).
func (r FrameControlRepr) WithoutAddressing() AddressingStageRepr {
	return AddressingStageRepr{frameType: r.frameType, frameVersion: r.frameVersion, seqNr: r.seqNr}
}

// AddressingStageRepr is the builder stage after addressing has been
// fixed.
type AddressingStageRepr struct {
	frameType    FrameType
	frameVersion FrameVersion
	seqNr        SeqNrPresence
	addressing   *AddressingFields
	addrLength   uint16
}

// WithSecurity records the frame's auxiliary security header parameters.
func (r AddressingStageRepr) WithSecurity(s Security) SecurityStageRepr {
	return SecurityStageRepr{
		frameType:    r.frameType,
		frameVersion: r.frameVersion,
		seqNr:        r.seqNr,
		addressing:   r.addressing,
		addrLength:   r.addrLength,
		security:     &s,
	}
}

// WithoutSecurity records that the frame is unsecured.
func (r AddressingStageRepr) WithoutSecurity() SecurityStageRepr {
	return SecurityStageRepr{
		frameType:    r.frameType,
		frameVersion: r.frameVersion,
		seqNr:        r.seqNr,
		addressing:   r.addressing,
		addrLength:   r.addrLength,
	}
}

// SecurityStageRepr is the builder stage after security has been fixed.
type SecurityStageRepr struct {
	frameType    FrameType
	frameVersion FrameVersion
	seqNr        SeqNrPresence
	addressing   *AddressingFields
	addrLength   uint16
	security     *Security
}

// WithIEs attaches an information element list, completing the Repr.
func (r SecurityStageRepr) WithIEs(ies IEs) Repr {
	return r.build(ies)
}

// WithoutIEs completes the Repr with an empty IE list.
func (r SecurityStageRepr) WithoutIEs() Repr {
	return r.build(NoIEs())
}

func (r SecurityStageRepr) build(ies IEs) Repr {
	return Repr{
		frameType:    r.frameType,
		frameVersion: r.frameVersion,
		seqNr:        r.seqNr,
		addressing:   r.addressing,
		addrLength:   r.addrLength,
		security:     r.security,
		ies:          ies,
	}
}

// FrameType returns the frame type this Repr was built for.
func (r Repr) FrameType() FrameType {
	return r.frameType
}

// FrameVersion returns the frame version this Repr was built for.
func (r Repr) FrameVersion() FrameVersion {
	return r.frameVersion
}

// SeqNrPresence returns whether this Repr carries a sequence number.
func (r Repr) SeqNrPresence() SeqNrPresence {
	return r.seqNr
}

// mpduLessIEsAndPayloadLength computes the length of frame control,
// sequence number, addressing and the auxiliary security header plus MIC,
// i.e. everything except IEs and the frame payload.
func (r Repr) mpduLessIEsAndPayloadLength() uint16 {
	const frameControlLength = 2

	length := uint16(frameControlLength) + r.seqNr.Length() + r.addrLength
	if r.security != nil {
		length += uint16(r.security.AuxSecHeaderLength() + r.security.MicLength())
	}
	return length
}

// MpduLengthWoFCS computes the total MPDU length (excluding FCS) given the
// frame payload length, for building outgoing frames from scratch.
func (r Repr) MpduLengthWoFCS(framePayloadLength uint16) uint16 {
	return r.mpduLessIEsAndPayloadLength() + r.ies.Length + framePayloadLength
}

// IEsAndFramePayloadLength computes the IE list length and frame payload
// length given the total MPDU length (excluding FCS), for parsing incoming
// frames. Returns an error if mpduLengthWoFCS is too short for the Repr's
// fixed-length fields, or if the Repr's IE list is indeterminate (its
// length cannot be derived without knowing the payload boundary
// separately).
func (r Repr) IEsAndFramePayloadLength(mpduLengthWoFCS uint16) (ieLength, framePayloadLength uint16, err error) {
	base := r.mpduLessIEsAndPayloadLength()
	if base > mpduLengthWoFCS {
		return 0, 0, fmt.Errorf("dot15d4/mpdu: mpdu length %d too short for fixed fields (%d)", mpduLengthWoFCS, base)
	}

	if r.ies.Indeterminate {
		return 0, 0, fmt.Errorf("dot15d4/mpdu: ie list length is indeterminate without an explicit payload boundary")
	}

	remaining := mpduLengthWoFCS - base
	if remaining < r.ies.Length {
		return 0, 0, fmt.Errorf("dot15d4/mpdu: mpdu length %d too short for ie list (%d)", mpduLengthWoFCS, r.ies.Length)
	}

	return r.ies.Length, remaining - r.ies.Length, nil
}

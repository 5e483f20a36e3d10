// IEEE 802.15.4 auxiliary security header for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mpdu

// SecurityLevel is the three-bit security level field of the auxiliary
// security header, selecting whether the frame is encrypted, MIC'd, or
// both, and the resulting MIC length.
type SecurityLevel uint8

const (
	SecurityLevelNone      SecurityLevel = 0b000
	SecurityLevelMic32     SecurityLevel = 0b001
	SecurityLevelMic64     SecurityLevel = 0b010
	SecurityLevelMic128    SecurityLevel = 0b011
	SecurityLevelEnc       SecurityLevel = 0b100
	SecurityLevelEncMic32  SecurityLevel = 0b101
	SecurityLevelEncMic64  SecurityLevel = 0b110
	SecurityLevelEncMic128 SecurityLevel = 0b111
)

// MicLength returns the MIC length in bytes for this security level (0, 4,
// 8 or 16).
//
// The source this core is ported from labels these 32/64/128, which
// describes the MIC length in bits, not bytes, but then uses those same
// constants directly as byte lengths when computing header sizes - an
// off-by-a-factor-of-8 bug that happens not to matter there because the
// mislabeled constants are only ever compared against each other, never
// against an independently bit-counted quantity. This core defines
// MicLength in actual bytes (4/8/16) throughout, since Go call sites
// (buffer sizing, slicing) are byte-indexed and a silent bit/byte mixup
// would corrupt every secured frame's layout.
func (s SecurityLevel) MicLength() int {
	switch s {
	case SecurityLevelNone, SecurityLevelEnc:
		return 0
	case SecurityLevelMic32, SecurityLevelEncMic32:
		return 4
	case SecurityLevelMic64, SecurityLevelEncMic64:
		return 8
	case SecurityLevelMic128, SecurityLevelEncMic128:
		return 16
	default:
		panic("dot15d4/mpdu: invalid security level")
	}
}

// Encrypted reports whether this security level encrypts the payload.
func (s SecurityLevel) Encrypted() bool {
	return s&0b100 != 0
}

// KeyIDMode is the two-bit key identifier mode field.
type KeyIDMode uint8

const (
	KeyIDModeImplicit KeyIDMode = 0b00
	KeyIDModeIndex    KeyIDMode = 0b01
	KeyIDMode4Byte    KeyIDMode = 0b10
	KeyIDMode8Byte    KeyIDMode = 0b11
)

// KeyIDLength returns the byte length of the key identifier field for this
// mode (0, 1, 5 or 9).
func (m KeyIDMode) KeyIDLength() int {
	switch m {
	case KeyIDModeImplicit:
		return 0
	case KeyIDModeIndex:
		return 1
	case KeyIDMode4Byte:
		return 5
	case KeyIDMode8Byte:
		return 9
	default:
		panic("dot15d4/mpdu: invalid key id mode")
	}
}

// Security is the fully decoded auxiliary security header: security
// level, key identifier mode and whether frame counter suppression (TSCH
// mode) applies.
type Security struct {
	TSCHMode      bool
	SecurityLevel SecurityLevel
	KeyIDMode     KeyIDMode
	FrameCounter  uint32
	KeyIndex      uint8
	KeySource4    [4]byte
	KeySource8    [8]byte
}

// AuxSecHeaderLength returns the byte length of the auxiliary security
// header (security control, optional frame counter, optional key
// identifier), excluding the MIC which trails the payload instead.
func (s Security) AuxSecHeaderLength() int {
	const securityControlLength = 1

	frameCounterLength := 4
	if s.TSCHMode {
		frameCounterLength = 0
	}

	return securityControlLength + frameCounterLength + s.KeyIDMode.KeyIDLength()
}

// MicLength returns the MIC length in bytes contributed by this security
// configuration.
func (s Security) MicLength() int {
	return s.SecurityLevel.MicLength()
}

// Driver frame configuration for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package frame

// Config describes how a particular radio driver wants its buffers laid
// out: how much headroom/tailroom it needs around the MPDU and whether it
// handles FCS itself. Generalizes per-SoC driver config constants to a
// plain runtime value, rather than a compile-time one, since a single core
// here must serve more than one driver.
type Config struct {
	// Headroom is the number of bytes reserved before the MPDU for the
	// PHY header and driver scratch space.
	Headroom int

	// Tailroom is the number of bytes reserved after the MPDU for
	// driver-appended metadata.
	Tailroom int

	// FCSWidth is 0, 2 or 4: the number of FCS bytes the MAC must
	// account for (0 if the driver/hardware offloads FCS entirely).
	FCSWidth int

	// MaxSDULength is the largest SDU (including FCS, if the MAC
	// computes it) the driver can carry.
	MaxSDULength int
}

// BufferLength returns the total buffer size required to hold this
// configuration's headroom, max SDU and tailroom - the size a caller must
// request from a buffer.Pool before calling New.
func (c Config) BufferLength() int {
	return c.Headroom + c.MaxSDULength + c.Tailroom
}

func (c Config) validate() {
	if c.Headroom < 0 || c.Tailroom < 0 {
		panic("dot15d4/frame: headroom and tailroom must not be negative")
	}
	switch c.FCSWidth {
	case 0, 2, 4:
	default:
		panic("dot15d4/frame: fcs width must be 0, 2 or 4")
	}
	if c.MaxSDULength <= c.FCSWidth {
		panic("dot15d4/frame: max SDU length must exceed the FCS width")
	}
}

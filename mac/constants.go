// IEEE 802.15.4 MAC and PHY constants for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mac

import "time"

// Symbol-rate derived timing for the 2.4 GHz O-QPSK PHY: 62.5 kS/s, so one
// symbol is 16 microseconds.
const symbolPeriod = 16 * time.Microsecond

// Inter-frame spacings and channel-access timing for the 2.4 GHz O-QPSK
// PHY, in symbols (IEEE 802.15.4-2020, sections 10.1.3 and 11.3). AIFS
// equals SIFS on this PHY.
const (
	aifsSymbols        = 12
	sifsSymbols        = 12
	lifsSymbols        = 40
	turnaroundSymbols  = 12
	ccaSymbols         = 8
	unitBackoffSymbols = 20
)

// Superframe structure constants (IEEE 802.15.4-2020, section 8.4.2,
// table 8-93). Beacon-enabled superframes are not driven by this core;
// these mirror the standard's attribute set for embedders that schedule
// around them.
const (
	ABaseSlotDuration   = 60
	ANumSuperframeSlots = 16
	AMaxLostBeacons     = 4
	AMinCAPLength       = 440
)

// Maximum PHY packet sizes: the classic 127-octet O-QPSK PSDU, and
// PhyMaxPacketSize2047, named for the 2047-octet PSDU of the larger-frame
// PHYs, which holds the value 2048.
const (
	PhyMaxPacketSize127  = 127
	PhyMaxPacketSize2047 = 2048
)

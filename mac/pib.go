// PAN Information Base for the dot15d4 MAC core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mac

import (
	"sync"

	"github.com/usbarmory/dot15d4/mpdu"
)

// Default MAC PIB constants until association support assigns real
// values.
const (
	DefaultPanID          mpdu.PanID = 0xfffe
	DefaultImplicitBroadcast          = false
)

// PIB is the MAC's configuration store: extended address, short address,
// PAN ID, association permit, security enabled, TSCH enabled and the
// outgoing frame counter. Owned exclusively by the MAC service task; all
// reads and writes happen there, so the mutex here only guards the rare
// case of a diagnostic read from another goroutine.
type PIB struct {
	mu sync.RWMutex

	extendedAddress   mpdu.ExtendedAddress
	shortAddress      mpdu.ShortAddress
	hasShortAddress   bool
	panID             mpdu.PanID
	associationPermit bool
	securityEnabled   bool
	tschEnabled       bool
	implicitBroadcast bool
	frameCounter      uint32
}

// NewPIB constructs a PIB for the given extended address, with PAN ID
// defaulted to DefaultPanID pending association support and no short
// address assigned.
func NewPIB(extendedAddress mpdu.ExtendedAddress) *PIB {
	return &PIB{
		extendedAddress:   extendedAddress,
		panID:             DefaultPanID,
		implicitBroadcast: DefaultImplicitBroadcast,
	}
}

func (p *PIB) ExtendedAddress() mpdu.ExtendedAddress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.extendedAddress
}

// ShortAddress returns the assigned short address and whether one has
// been assigned. This core never derives a short address from the
// extended address - see DESIGN.md for why.
func (p *PIB) ShortAddress() (mpdu.ShortAddress, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shortAddress, p.hasShortAddress
}

func (p *PIB) PanID() mpdu.PanID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.panID
}

func (p *PIB) AssociationPermit() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.associationPermit
}

func (p *PIB) SecurityEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.securityEnabled
}

func (p *PIB) TSCHEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tschEnabled
}

func (p *PIB) ImplicitBroadcast() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.implicitBroadcast
}

// NextFrameCounter returns the current frame counter and increments it.
func (p *PIB) NextFrameCounter() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.frameCounter
	p.frameCounter++
	return v
}

func (p *PIB) SetPanID(v mpdu.PanID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panID = v
}

func (p *PIB) SetShortAddress(v mpdu.ShortAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortAddress = v
	p.hasShortAddress = true
}

func (p *PIB) SetExtendedAddress(v mpdu.ExtendedAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extendedAddress = v
}

func (p *PIB) SetAssociationPermit(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.associationPermit = v
}

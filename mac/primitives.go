// MCPS/MLME service primitives for the dot15d4 MAC core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mac

import (
	"time"

	"github.com/usbarmory/dot15d4/frame"
	"github.com/usbarmory/dot15d4/mpdu"
)

// ServiceAddress is the routing address used by the mac.Channel that
// carries MCPS/MLME requests: every request matches exactly one logical
// service endpoint, so the address space is a fixed small enumeration
// rather than a MAC address.
type ServiceAddress int

const (
	AddressDataService ServiceAddress = iota
	AddressManagementService
)

// RequestKind tags which concrete request a Request carries.
type RequestKind int

const (
	RequestMcpsData RequestKind = iota
	RequestMlmeSet
	RequestMlmeBeacon
)

// Request is the envelope carried by the MAC request channel, implementing
// mac.RequestMatcher[ServiceAddress].
type Request struct {
	Kind       RequestKind
	McpsData   McpsDataRequest
	MlmeSet    MlmeSetRequest
	MlmeBeacon MlmeBeaconRequest
}

// MatchesAddress routes data requests to the data service endpoint and
// every MLME request to the management endpoint.
func (r Request) MatchesAddress(addr ServiceAddress) bool {
	switch r.Kind {
	case RequestMcpsData:
		return addr == AddressDataService
	default:
		return addr == AddressManagementService
	}
}

// Response is the envelope carried back over the MAC request channel.
type Response struct {
	Kind       RequestKind
	McpsData   McpsDataConfirm
	MlmeSet    MlmeSetConfirm
	MlmeBeacon MlmeBeaconConfirm
}

// McpsDataRequest submits an MPDU frame for transmission. Frame must
// already carry correctly-sized and encoded addressing (and, if used,
// security/IE) fields - the service only patches the frame control's
// ack-request bit, the sequence number byte, and the destination PAN ID
// field before handing the frame to the driver.
//
// Frame's buffer must come from the service's pool; ownership transfers
// with the request and the service returns the buffer to the pool once
// the transmission (and any ack wait) completes.
type McpsDataRequest struct {
	Frame           frame.MpduFrame
	DestPanID       mpdu.PanID
	HasDestPanID    bool // if false, the service fills in PIB.PanID()
	DestAddress     mpdu.Address
	AckRequested    bool
	HasAckRequested bool // if false, the service decides based on destination addressing mode
}

// McpsDataConfirm reports the outcome of a McpsDataRequest.
type McpsDataConfirm struct {
	Acked     bool
	Timestamp time.Time
	Err       error
}

// McpsDataIndication reports a received data frame.
type McpsDataIndication struct {
	Frame     frame.MpduFrame
	Timestamp time.Time
}

// PIBAttribute enumerates the writable PIB attributes MlmeSetRequest
// supports.
type PIBAttribute int

const (
	AttributePanID PIBAttribute = iota
	AttributeShortAddress
	AttributeExtendedAddress
	AttributeAssociationPermit
)

// MlmeSetRequest writes one PIB attribute. Exactly one of the typed
// fields is meaningful, selected by Attribute; MlmeSetRequest is
// rejected with InvalidParameter for an unknown Attribute or for a
// ShortAddress equal to the broadcast short address.
type MlmeSetRequest struct {
	Attribute         PIBAttribute
	PanID             mpdu.PanID
	ShortAddress      mpdu.ShortAddress
	ExtendedAddress   mpdu.ExtendedAddress
	AssociationPermit bool
}

// MlmeSetConfirm reports the outcome of an MlmeSetRequest.
type MlmeSetConfirm struct {
	Attribute PIBAttribute
	Err       error
}

// MlmeBeaconRequest requests transmission of a beacon frame.
type MlmeBeaconRequest struct {
	Payload []byte
}

// MlmeBeaconConfirm reports the outcome of an MlmeBeaconRequest.
type MlmeBeaconConfirm struct {
	Err error
}

// MlmeBeaconNotifyIndication reports a received beacon frame.
type MlmeBeaconNotifyIndication struct {
	Payload   []byte
	Timestamp time.Time
}

// IndicationKind tags which concrete indication an Indication carries.
type IndicationKind int

const (
	IndicationMcpsData IndicationKind = iota
	IndicationMlmeBeaconNotify
)

// Indication is the envelope the MAC service publishes over its
// indication channel for every upward notification: received data
// frames and received beacons.
type Indication struct {
	Kind             IndicationKind
	McpsData         McpsDataIndication
	MlmeBeaconNotify MlmeBeaconNotifyIndication
}

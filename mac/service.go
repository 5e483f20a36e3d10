// MAC service state machine for the dot15d4 core
// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mac

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/usbarmory/dot15d4/buffer"
	"github.com/usbarmory/dot15d4/dot15derr"
	"github.com/usbarmory/dot15d4/frame"
	"github.com/usbarmory/dot15d4/mpdu"
	"github.com/usbarmory/dot15d4/radio"
)

// Service is the single long-running task that owns the PIB and the
// request-receiver/indication-sender endpoints. It drives one request
// loop per request address plus one receive loop, all on the channel's
// single-owner-goroutine discipline: nothing here is safe to call from
// more than one goroutine, which is exactly the "single executor" model
// this core assumes.
type Service struct {
	pib         *PIB
	channel     *Channel[ServiceAddress, Request, Response]
	indications chan Indication

	radioTask radio.Transceiver
	timer     radio.Timer
	pool      *buffer.Pool

	dataCfg  frame.Config
	ackCfg   frame.Config
	rxConfig radio.RxConfig
	txConfig radio.TxConfig

	backoff *Backoff
	seqNr   uint32 // atomic; truncated to uint8 by nextSeqNr

	logger *slog.Logger
}

// NewService constructs a Service. dataCfg sizes buffers for ordinary
// data/beacon frames; ackCfg sizes the small dedicated buffer used for
// immediate acknowledgments, one ACK MPDU at a time. indications must be
// large enough that a blocked consumer cannot
// stall the receive loop for longer than the caller is willing to tolerate
// (the receive loop will block on a full channel, per Go channel
// semantics, until either a consumer drains it or ctx is cancelled).
func NewService(
	pib *PIB,
	channel *Channel[ServiceAddress, Request, Response],
	indications chan Indication,
	radioTask radio.Transceiver,
	timer radio.Timer,
	pool *buffer.Pool,
	dataCfg, ackCfg frame.Config,
	rxConfig radio.RxConfig,
	txConfig radio.TxConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pib:         pib,
		channel:     channel,
		indications: indications,
		radioTask:   radioTask,
		timer:       timer,
		pool:        pool,
		dataCfg:     dataCfg,
		ackCfg:      ackCfg,
		rxConfig:    rxConfig,
		txConfig:    txConfig,
		backoff:     NewBackoff(MacMinBE, MacMaxBE, MacMaxCSMABackoffs),
		logger:      logger,
	}
}

// Indications returns the channel McpsDataIndication/MlmeBeaconNotifyIndication
// values are published on.
func (s *Service) Indications() <-chan Indication {
	return s.indications
}

func (s *Service) nextSeqNr() uint8 {
	return uint8(atomic.AddUint32(&s.seqNr, 1) - 1)
}

// Run drives the request loop (split into one goroutine per
// ServiceAddress, so each sees its own requests strictly in submission
// order per the channel's per-address ordering guarantee) and the receive
// loop until ctx is cancelled. Cancellation is the expected shutdown path,
// not a failure: Run returns nil whenever ctx has been cancelled by the
// time every loop has exited, and otherwise the first loop error.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runRequestLoop(gctx, AddressDataService) })
	g.Go(func() error { return s.runRequestLoop(gctx, AddressManagementService) })
	g.Go(func() error { return s.runReceiveLoop(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Service) runRequestLoop(ctx context.Context, addr ServiceAddress) error {
	tok, err := s.channel.TryAllocateConsumerToken()
	if err != nil {
		return fmt.Errorf("dot15d4/mac: allocating consumer token for %v: %w", addr, err)
	}
	defer s.channel.ReleaseConsumerToken(tok)

	for {
		rt, req, err := s.channel.WaitForRequest(ctx, &tok, addr)
		if err != nil {
			return err
		}
		resp := s.dispatch(ctx, req)
		s.channel.Received(rt, resp)
	}
}

func (s *Service) dispatch(ctx context.Context, req Request) Response {
	switch req.Kind {
	case RequestMcpsData:
		return Response{Kind: RequestMcpsData, McpsData: s.handleMcpsDataRequest(ctx, req.McpsData)}
	case RequestMlmeSet:
		return Response{Kind: RequestMlmeSet, MlmeSet: s.handleMlmeSetRequest(req.MlmeSet)}
	case RequestMlmeBeacon:
		return Response{Kind: RequestMlmeBeacon, MlmeBeacon: s.handleMlmeBeaconRequest(ctx, req.MlmeBeacon)}
	default:
		return Response{}
	}
}

// handleMlmeSetRequest writes one PIB attribute. MacShortAddress is
// rejected with InvalidParameter when it collides with the reserved
// broadcast short address, since a device cannot address itself that way.
func (s *Service) handleMlmeSetRequest(req MlmeSetRequest) MlmeSetConfirm {
	switch req.Attribute {
	case AttributePanID:
		s.pib.SetPanID(req.PanID)
	case AttributeShortAddress:
		if req.ShortAddress == mpdu.BroadcastShortAddress {
			return MlmeSetConfirm{Attribute: req.Attribute, Err: dot15derr.ErrInvalidParameter}
		}
		s.pib.SetShortAddress(req.ShortAddress)
	case AttributeExtendedAddress:
		s.pib.SetExtendedAddress(req.ExtendedAddress)
	case AttributeAssociationPermit:
		s.pib.SetAssociationPermit(req.AssociationPermit)
	default:
		return MlmeSetConfirm{Attribute: req.Attribute, Err: dot15derr.ErrInvalidParameter}
	}
	return MlmeSetConfirm{Attribute: req.Attribute}
}

// decideAckRequest picks the default ack-request policy when the caller
// does not set one explicitly: unicast destinations request an ack,
// broadcast and absent destinations do not.
func decideAckRequest(req McpsDataRequest) bool {
	if req.HasAckRequested {
		return req.AckRequested
	}
	return req.DestAddress.Mode != mpdu.AddressingModeAbsent && !req.DestAddress.IsBroadcast()
}

// fillOutgoingHeader patches an already-built outgoing MPDU's ack-request
// bit, sequence number and (if addressed) destination PAN ID in place.
// The caller is expected to have already encoded a structurally complete
// frame (correct addressing/security/IE layout and payload) via the
// mpdu.Repr builder; the service only owns these three fields because
// they depend on MAC-level state (the PIB, the assigned sequence number)
// the upper layer doesn't have.
func fillOutgoingHeader(mf frame.MpduFrame, destPanID mpdu.PanID, seqNr uint8, ackRequested bool) error {
	parsed, err := mpdu.ParseFrameControl(mf)
	if err != nil {
		return err
	}

	fc := parsed.FrameControl()
	fc.AckRequest = ackRequested
	encoded := fc.Encode()

	sdu := mf.SDU()
	sdu[0] = encoded[0]
	sdu[1] = encoded[1]

	off := 2
	if _, present := parsed.SequenceNumber(); present {
		sdu[off] = seqNr
		off++
	}

	if fc.DestAddressingMode != mpdu.AddressingModeAbsent {
		if off+2 > len(sdu) {
			return fmt.Errorf("dot15d4/mac: frame too short for destination pan id")
		}
		sdu[off] = byte(destPanID)
		sdu[off+1] = byte(destPanID >> 8)
	}

	return nil
}

// handleMcpsDataRequest fills in the destination PAN ID, decides and sets
// the ack-request bit, assigns a sequence number, submits for
// transmission (retrying channel-access failures through Backoff up to
// MAC_MAX_FRAME_RETRIES), then optionally races an ack wait.
func (s *Service) handleMcpsDataRequest(ctx context.Context, req McpsDataRequest) McpsDataConfirm {
	destPan := req.DestPanID
	if !req.HasDestPanID {
		destPan = s.pib.PanID()
	}
	ackRequested := decideAckRequest(req)
	seqNr := s.nextSeqNr()

	if err := fillOutgoingHeader(req.Frame, destPan, seqNr, ackRequested); err != nil {
		s.pool.Deallocate(req.Frame.IntoBuffer())
		return McpsDataConfirm{Err: err}
	}

	sf, err := req.Frame.IntoDriverFrame(s.dataCfg)
	if err != nil {
		s.pool.Deallocate(req.Frame.IntoBuffer())
		return McpsDataConfirm{Err: err}
	}
	defer s.pool.Deallocate(sf.IntoBuffer())

	ok, txErr := s.transmitWithRetry(ctx, sf)
	if txErr != nil {
		return McpsDataConfirm{Err: txErr, Timestamp: s.timer.Now()}
	}
	if !ok {
		return McpsDataConfirm{Err: dot15derr.ErrChannelAccessFailure, Timestamp: s.timer.Now()}
	}

	acked := false
	if ackRequested {
		acked, err = WaitForAck(ctx, s.pool, s.radioTask, s.timer, s.ackCfg, s.rxConfig, seqNr)
		if err != nil {
			return McpsDataConfirm{Err: err, Timestamp: s.timer.Now()}
		}
	}

	return McpsDataConfirm{Acked: acked, Timestamp: s.timer.Now()}
}

// transmitWithRetry resubmits a channel-access failure up to
// MAC_MAX_FRAME_RETRIES times, spacing attempts with Backoff. A hard
// transport error (txErr != nil) is never retried; only "radio reports
// the channel was busy" (ok == false, txErr == nil) is.
func (s *Service) transmitWithRetry(ctx context.Context, sf frame.SizedFrame) (bool, error) {
	for attempt := 0; attempt <= MacMaxFrameRetries; attempt++ {
		ok, err := s.radioTask.Transmit(ctx, s.txConfig, sf)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if backoffErr := s.backoff.Wait(ctx, s.timer, attempt); backoffErr != nil {
			return false, backoffErr
		}
	}
	return false, nil
}

// handleMlmeBeaconRequest constructs a beacon MPDU (frame control +
// sequence number, no addressing, carrying req.Payload verbatim) and
// submits it for transmission.
func (s *Service) handleMlmeBeaconRequest(ctx context.Context, req MlmeBeaconRequest) MlmeBeaconConfirm {
	beaconRepr := mpdu.NewRepr().
		WithFrameControl(mpdu.FrameTypeBeacon, mpdu.FrameVersion2006, mpdu.SeqNrPresent).
		WithoutAddressing().
		WithoutSecurity().
		WithoutIEs()
	mpduLen := beaconRepr.MpduLengthWoFCS(uint16(len(req.Payload)))

	tok, err := s.pool.Allocate(ctx, s.dataCfg.BufferLength())
	if err != nil {
		return MlmeBeaconConfirm{Err: err}
	}

	sf, err := frame.New(tok, s.dataCfg).WithSize(int(mpduLen))
	if err != nil {
		s.pool.Deallocate(tok)
		return MlmeBeaconConfirm{Err: err}
	}
	mf := frame.FromDriverFrame(sf)

	seqNr := s.nextSeqNr()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeBeacon, FrameVersion: mpdu.FrameVersion2006}
	encoded := fc.Encode()
	sdu := mf.SDU()
	sdu[0], sdu[1] = encoded[0], encoded[1]
	sdu[2] = seqNr
	copy(sdu[3:], req.Payload)

	sf, err = mf.IntoDriverFrame(s.dataCfg)
	if err != nil {
		s.pool.Deallocate(mf.IntoBuffer())
		return MlmeBeaconConfirm{Err: err}
	}
	defer s.pool.Deallocate(sf.IntoBuffer())

	ok, err := s.radioTask.Transmit(ctx, s.txConfig, sf)
	if err != nil {
		return MlmeBeaconConfirm{Err: err}
	}
	if !ok {
		return MlmeBeaconConfirm{Err: dot15derr.ErrChannelAccessFailure}
	}
	return MlmeBeaconConfirm{}
}

// runReceiveLoop allocates a buffer, receives a frame, parses it up to
// addressing, filters it, acks it if required, and dispatches an
// indication.
func (s *Service) runReceiveLoop(ctx context.Context) error {
	for {
		tok, err := s.pool.Allocate(ctx, s.dataCfg.BufferLength())
		if err != nil {
			return err
		}

		uf := frame.New(tok, s.dataCfg)
		sf, err := s.radioTask.Receive(ctx, s.rxConfig, uf)
		if err != nil {
			s.pool.Deallocate(tok)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("dot15d4: radio receive failed", "error", err)
			continue
		}

		s.handleReceivedFrame(ctx, sf)
	}
}

func (s *Service) handleReceivedFrame(ctx context.Context, sf frame.SizedFrame) {
	mf := frame.FromDriverFrame(sf)

	parsed, err := mpdu.ParseFrameControl(mf)
	if err != nil {
		s.logger.Debug("dot15d4: dropping malformed frame", "error", err)
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}

	fc := parsed.FrameControl()
	if fc.FrameType == mpdu.FrameTypeUnknown || fc.FrameVersion == mpdu.FrameVersionUnknown {
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}

	if err := parsed.ParseAddressing(fc.DestAddressingMode, fc.SrcAddressingMode, mpdu.PanIDCompression(fc.PanIDCompression)); err != nil {
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}
	addressing := parsed.Addressing()

	if !AcceptFrame(fc, addressing, s.pib) {
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}

	if seqNr, hasSeqNr := parsed.SequenceNumber(); ShouldAck(fc, hasSeqNr) {
		s.sendImmediateAck(seqNr)
	}

	switch fc.FrameType {
	case mpdu.FrameTypeData:
		if !s.publish(ctx, Indication{Kind: IndicationMcpsData, McpsData: McpsDataIndication{Frame: mf, Timestamp: s.timer.Now()}}) {
			s.pool.Deallocate(mf.IntoBuffer())
		}
	case mpdu.FrameTypeBeacon:
		s.publishBeacon(ctx, parsed, mf)
	default:
		// Acks received outside of an ack wait, and every other frame
		// type this core doesn't act on, are dropped here. WaitForAck
		// races its own Receive directly against the radio and never
		// reaches this path for the acks it's actually waiting on.
		s.pool.Deallocate(mf.IntoBuffer())
	}
}

// publishBeacon copies the beacon payload out (unlike data indications,
// which hand the zero-copy frame straight to the consumer) and releases
// the buffer immediately, since MlmeBeaconNotifyIndication carries a
// plain []byte rather than an MpduFrame.
func (s *Service) publishBeacon(ctx context.Context, parsed *mpdu.ParsedMpdu, mf frame.MpduFrame) {
	fc := parsed.FrameControl()
	if fc.SecurityEnabled || fc.IEPresent {
		// Full security/IE support is out of this core's scope; a
		// beacon using either can't be safely unpacked here, so it's
		// dropped rather than misparsed.
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}

	if err := parsed.ParseSecurity(mpdu.SecurityLevelNone, mpdu.KeyIDModeImplicit, false); err != nil {
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}
	if err := parsed.ParseIEs(0); err != nil {
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}

	view := parsed.Payload()
	payload := make([]byte, view.Len())
	copy(payload, view.Bytes())
	s.pool.Deallocate(mf.IntoBuffer())

	s.publish(ctx, Indication{
		Kind:             IndicationMlmeBeaconNotify,
		MlmeBeaconNotify: MlmeBeaconNotifyIndication{Payload: payload, Timestamp: s.timer.Now()},
	})
}

// publish delivers ind on the indication channel, or reports false if ctx
// is cancelled first (the caller is then responsible for any buffer it
// still owns).
func (s *Service) publish(ctx context.Context, ind Indication) bool {
	select {
	case s.indications <- ind:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendImmediateAck builds and submits an immediate ack for seqNr without
// awaiting its transmit confirmation. Submission still goes through
// radioTask, which serializes it with every other radio operation; only
// the confirmation wait is skipped.
func (s *Service) sendImmediateAck(seqNr uint8) {
	tok, err := s.pool.TryAllocate(s.ackCfg.BufferLength())
	if err != nil {
		s.logger.Debug("dot15d4: dropping ack, no buffer available", "error", err)
		return
	}

	sf, err := frame.New(tok, s.ackCfg).WithSize(int(mpdu.ImmAckLengthWoFCS))
	if err != nil {
		s.pool.Deallocate(tok)
		s.logger.Debug("dot15d4: ack buffer sizing failed", "error", err)
		return
	}
	mf := frame.FromDriverFrame(sf)
	mpdu.WriteImmAck(mf, seqNr)

	sf, err = mf.IntoDriverFrame(s.ackCfg)
	if err != nil {
		s.pool.Deallocate(mf.IntoBuffer())
		return
	}

	go func() {
		_, err := s.radioTask.Transmit(context.Background(), s.txConfig, sf)
		s.pool.Deallocate(sf.IntoBuffer())
		if err != nil {
			s.logger.Debug("dot15d4: ack transmit failed", "error", err)
		}
	}()
}

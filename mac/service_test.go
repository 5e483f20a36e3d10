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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usbarmory/dot15d4/buffer"
	"github.com/usbarmory/dot15d4/dot15derr"
	"github.com/usbarmory/dot15d4/frame"
	"github.com/usbarmory/dot15d4/mpdu"
	"github.com/usbarmory/dot15d4/radio"
)

func testDataConfig() frame.Config {
	return frame.Config{Headroom: 1, Tailroom: 0, FCSWidth: 2, MaxSDULength: 127}
}

func buildSizedFrame(t *testing.T, pool *buffer.Pool, cfg frame.Config, sdu []byte) frame.SizedFrame {
	t.Helper()
	tok, err := pool.Allocate(context.Background(), cfg.BufferLength())
	require.NoError(t, err)

	sf, err := frame.New(tok, cfg).WithSize(len(sdu))
	require.NoError(t, err)

	mf := frame.FromDriverFrame(sf)
	copy(mf.SDU(), sdu)

	sf, err = mf.IntoDriverFrame(cfg)
	require.NoError(t, err)
	return sf
}

func newTestService(t *testing.T, radioTask radio.Transceiver, indications chan Indication) *Service {
	t.Helper()
	cfg := testDataConfig()
	pool := buffer.NewPool(4, cfg.BufferLength(), 4)
	pib := newTestPIB()
	channel := NewChannel[ServiceAddress, Request, Response](4, 2, 4)
	return NewService(pib, channel, indications, radioTask, newRealFakeTimer(), pool, cfg, testAckConfig(), radio.RxConfig{}, radio.TxConfig{}, nil)
}

func TestDecideAckRequestDefaultsToUnicastOnly(t *testing.T) {
	require.True(t, decideAckRequest(McpsDataRequest{DestAddress: mpdu.NewShortAddress(0x1234)}))
	require.False(t, decideAckRequest(McpsDataRequest{DestAddress: mpdu.NewShortAddress(mpdu.BroadcastShortAddress)}))
	require.False(t, decideAckRequest(McpsDataRequest{DestAddress: mpdu.AbsentAddress()}))
}

func TestDecideAckRequestHonorsExplicitOverride(t *testing.T) {
	req := McpsDataRequest{
		DestAddress:     mpdu.NewShortAddress(0x1234),
		HasAckRequested: true,
		AckRequested:    false,
	}
	require.False(t, decideAckRequest(req))
}

func TestFillOutgoingHeaderPatchesAckBitSeqNrAndPanID(t *testing.T) {
	cfg := testDataConfig()
	pool := buffer.NewPool(1, cfg.BufferLength(), 1)

	fc := mpdu.FrameControl{
		FrameType:          mpdu.FrameTypeData,
		FrameVersion:       mpdu.FrameVersion2006,
		DestAddressingMode: mpdu.AddressingModeShort,
		SrcAddressingMode:  mpdu.AddressingModeAbsent,
	}
	encoded := fc.Encode()
	sdu := []byte{encoded[0], encoded[1], 0x00, 0x00, 0x00, 0x34, 0x12, 0xAA}
	sf := buildSizedFrame(t, pool, cfg, sdu)
	mf := frame.FromDriverFrame(sf)

	err := fillOutgoingHeader(mf, 0xABCD, 0x42, true)
	require.NoError(t, err)

	got := mf.SDU()
	require.True(t, mpdu.DecodeFrameControl([2]byte{got[0], got[1]}).AckRequest)
	require.Equal(t, byte(0x42), got[2])
	require.Equal(t, byte(0xCD), got[3])
	require.Equal(t, byte(0xAB), got[4])
	require.Equal(t, byte(0x34), got[5])
	require.Equal(t, byte(0x12), got[6])
}

func TestHandleMlmeSetRequestWritesPIBAttributes(t *testing.T) {
	s := newTestService(t, nil, nil)

	confirm := s.handleMlmeSetRequest(MlmeSetRequest{Attribute: AttributePanID, PanID: 0x1122})
	require.NoError(t, confirm.Err)
	require.Equal(t, mpdu.PanID(0x1122), s.pib.PanID())

	confirm = s.handleMlmeSetRequest(MlmeSetRequest{Attribute: AttributeShortAddress, ShortAddress: 0x5566})
	require.NoError(t, confirm.Err)
	short, ok := s.pib.ShortAddress()
	require.True(t, ok)
	require.Equal(t, mpdu.ShortAddress(0x5566), short)
}

func TestHandleMlmeSetRequestRejectsBroadcastShortAddress(t *testing.T) {
	s := newTestService(t, nil, nil)

	confirm := s.handleMlmeSetRequest(MlmeSetRequest{Attribute: AttributeShortAddress, ShortAddress: mpdu.BroadcastShortAddress})
	require.ErrorIs(t, confirm.Err, dot15derr.ErrInvalidParameter)
}

func TestHandleMcpsDataRequestTransmitsAndSkipsAckForBroadcast(t *testing.T) {
	transmitted := make(chan struct{}, 1)
	radioTask := &fakeTransceiver{
		transmitFn: func(ctx context.Context, cfg radio.TxConfig, sf frame.SizedFrame) (bool, error) {
			transmitted <- struct{}{}
			return true, nil
		},
	}
	s := newTestService(t, radioTask, nil)

	cfg := testDataConfig()
	fc := mpdu.FrameControl{
		FrameType:          mpdu.FrameTypeData,
		FrameVersion:       mpdu.FrameVersion2006,
		SeqNrSuppression:   false,
		DestAddressingMode: mpdu.AddressingModeShort,
	}
	encoded := fc.Encode()
	sdu := []byte{encoded[0], encoded[1], 0x00, 0x00, 0x00, 0xFF, 0xFF}
	sf := buildSizedFrame(t, s.pool, cfg, sdu)
	mf := frame.FromDriverFrame(sf)

	confirm := s.handleMcpsDataRequest(context.Background(), McpsDataRequest{
		Frame:       mf,
		DestAddress: mpdu.NewShortAddress(mpdu.BroadcastShortAddress),
	})
	require.NoError(t, confirm.Err)
	require.False(t, confirm.Acked)

	select {
	case <-transmitted:
	default:
		t.Fatal("expected Transmit to have been called")
	}
}

func TestHandleMcpsDataRequestWaitsForAckWhenRequested(t *testing.T) {
	var seqNr byte
	radioTask := &fakeTransceiver{
		transmitFn: func(ctx context.Context, cfg radio.TxConfig, sf frame.SizedFrame) (bool, error) {
			mf := frame.FromDriverFrame(sf)
			seqNr = mf.SDU()[2]
			return true, nil
		},
		receiveFn: func(ctx context.Context, cfg radio.RxConfig, uf frame.UnsizedFrame) (frame.SizedFrame, error) {
			sf, err := uf.WithSize(int(mpdu.ImmAckLengthWoFCS))
			require.NoError(t, err)
			mf := frame.FromDriverFrame(sf)
			mpdu.WriteImmAck(mf, seqNr)
			return mf.IntoDriverFrame(testAckConfig())
		},
	}
	s := newTestService(t, radioTask, nil)

	cfg := testDataConfig()
	fc := mpdu.FrameControl{
		FrameType:          mpdu.FrameTypeData,
		FrameVersion:       mpdu.FrameVersion2006,
		DestAddressingMode: mpdu.AddressingModeShort,
	}
	encoded := fc.Encode()
	sdu := []byte{encoded[0], encoded[1], 0x00, 0x00, 0x00, 0x34, 0x12}
	sf := buildSizedFrame(t, s.pool, cfg, sdu)
	mf := frame.FromDriverFrame(sf)

	confirm := s.handleMcpsDataRequest(context.Background(), McpsDataRequest{
		Frame:       mf,
		DestAddress: mpdu.NewShortAddress(0x1234),
	})
	require.NoError(t, confirm.Err)
	require.True(t, confirm.Acked)
}

func TestHandleReceivedFrameAcceptsAndPublishesDataFrame(t *testing.T) {
	transmitted := make(chan frame.SizedFrame, 1)
	radioTask := &fakeTransceiver{
		transmitFn: func(ctx context.Context, cfg radio.TxConfig, sf frame.SizedFrame) (bool, error) {
			transmitted <- sf
			return true, nil
		},
	}
	indications := make(chan Indication, 1)
	s := newTestService(t, radioTask, indications)

	cfg := testDataConfig()
	fc := mpdu.FrameControl{
		FrameType:          mpdu.FrameTypeData,
		FrameVersion:       mpdu.FrameVersion2006,
		AckRequest:         true,
		DestAddressingMode: mpdu.AddressingModeShort,
		SrcAddressingMode:  mpdu.AddressingModeShort,
	}
	encoded := fc.Encode()
	seqNr := byte(0x11)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	sdu := []byte{
		encoded[0], encoded[1], seqNr,
		0xCD, 0xAB, // dest pan 0xabcd
		0x34, 0x12, // dest addr 0x1234 (matches PIB short address)
		0xCD, 0xAB, // src pan 0xabcd
		0x78, 0x56, // src addr 0x5678
	}
	sdu = append(sdu, payload...)
	sf := buildSizedFrame(t, s.pool, cfg, sdu)

	s.handleReceivedFrame(context.Background(), sf)

	select {
	case ind := <-indications:
		require.Equal(t, IndicationMcpsData, ind.Kind)
		require.Equal(t, payload, ind.McpsData.Frame.SDU()[len(sdu)-len(payload):])
		s.pool.Deallocate(ind.McpsData.Frame.IntoBuffer())
	default:
		t.Fatal("expected a McpsData indication")
	}

	// sendImmediateAck submits the ack from its own goroutine without
	// awaiting confirmation, so the transmit may not have landed yet.
	select {
	case ack := <-transmitted:
		ackMf := frame.FromDriverFrame(ack)
		require.Equal(t, []byte{0x02, 0x10, seqNr}, ackMf.SDU())
	case <-time.After(time.Second):
		t.Fatal("expected an immediate ack to have been transmitted")
	}
}

// TestHandleReceivedFrameEmitsAckWithExactWireBytes drives the receive
// path with a raw data frame (seq 0x2A, dst PAN 0xABCD, dst short 0x1234,
// src short 0x5678, PAN ID compressed, ack requested) on an FCS-offloading
// driver config and checks the emitted ack byte for byte at its buffer
// offset.
func TestHandleReceivedFrameEmitsAckWithExactWireBytes(t *testing.T) {
	dataCfg := frame.Config{Headroom: 1, Tailroom: 2, FCSWidth: 0, MaxSDULength: 127}
	ackCfg := frame.Config{Headroom: 1, Tailroom: 2, FCSWidth: 0, MaxSDULength: 8}

	transmitted := make(chan frame.SizedFrame, 1)
	radioTask := &fakeTransceiver{
		transmitFn: func(ctx context.Context, cfg radio.TxConfig, sf frame.SizedFrame) (bool, error) {
			transmitted <- sf
			return true, nil
		},
	}

	pool := buffer.NewPool(4, dataCfg.BufferLength(), 4)
	pib := newTestPIB()
	channel := NewChannel[ServiceAddress, Request, Response](4, 2, 4)
	indications := make(chan Indication, 1)
	s := NewService(pib, channel, indications, radioTask, newRealFakeTimer(), pool, dataCfg, ackCfg, radio.RxConfig{}, radio.TxConfig{}, nil)

	sdu := []byte{
		0x61, 0x88, // frame control: data, ack request, pan id compression, short/short
		0x2A,       // sequence number
		0xCD, 0xAB, // dst pan 0xabcd
		0x34, 0x12, // dst short 0x1234
		0x78, 0x56, // src short 0x5678
		0xDE, 0xAD, 0xBE, 0xEF,
	}
	sf := buildSizedFrame(t, pool, dataCfg, sdu)

	s.handleReceivedFrame(context.Background(), sf)

	select {
	case ind := <-indications:
		pool.Deallocate(ind.McpsData.Frame.IntoBuffer())
	case <-time.After(time.Second):
		t.Fatal("expected a McpsData indication")
	}

	select {
	case ack := <-transmitted:
		start, end := ack.SDURangeWoFCS()
		require.Equal(t, 1, start)
		require.Equal(t, 4, end)
		require.Equal(t, []byte{0x02, 0x10, 0x2A}, ack.Bytes()[start:end])
	case <-time.After(time.Second):
		t.Fatal("expected an immediate ack to have been transmitted")
	}
}

func TestHandleReceivedFrameDropsFrameForOtherShortAddress(t *testing.T) {
	radioTask := &fakeTransceiver{
		transmitFn: func(ctx context.Context, cfg radio.TxConfig, sf frame.SizedFrame) (bool, error) {
			t.Fatal("transmit should not be called for a frame not addressed to us")
			return false, nil
		},
	}
	indications := make(chan Indication, 1)
	s := newTestService(t, radioTask, indications)

	cfg := testDataConfig()
	fc := mpdu.FrameControl{
		FrameType:          mpdu.FrameTypeData,
		FrameVersion:       mpdu.FrameVersion2006,
		DestAddressingMode: mpdu.AddressingModeShort,
	}
	encoded := fc.Encode()
	sdu := []byte{encoded[0], encoded[1], 0x01, 0xCD, 0xAB, 0x99, 0x99}
	sf := buildSizedFrame(t, s.pool, cfg, sdu)

	s.handleReceivedFrame(context.Background(), sf)

	select {
	case <-indications:
		t.Fatal("did not expect an indication for a frame not addressed to us")
	default:
	}
}

func TestHandleReceivedFramePublishesBeaconPayload(t *testing.T) {
	s := newTestService(t, nil, make(chan Indication, 1))
	s.pib.implicitBroadcast = true

	cfg := testDataConfig()
	fc := mpdu.FrameControl{FrameType: mpdu.FrameTypeBeacon, FrameVersion: mpdu.FrameVersion2006}
	encoded := fc.Encode()
	payload := []byte{0x01, 0x02, 0x03}
	sdu := append([]byte{encoded[0], encoded[1], 0x07}, payload...)
	sf := buildSizedFrame(t, s.pool, cfg, sdu)

	s.handleReceivedFrame(context.Background(), sf)

	select {
	case ind := <-s.indications:
		require.Equal(t, IndicationMlmeBeaconNotify, ind.Kind)
		require.Equal(t, payload, ind.MlmeBeaconNotify.Payload)
	default:
		t.Fatal("expected a beacon-notify indication")
	}
}

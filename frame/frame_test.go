// https://github.com/usbarmory/dot15d4
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usbarmory/dot15d4/buffer"
)

func testConfig() Config {
	return Config{Headroom: 4, Tailroom: 2, FCSWidth: 2, MaxSDULength: 127}
}

func allocFrame(t *testing.T, cfg Config) *buffer.Token {
	t.Helper()
	pool := buffer.NewPool(1, cfg.BufferLength(), 1)
	tok, err := pool.TryAllocate(cfg.BufferLength())
	require.NoError(t, err)
	return tok
}

func TestSizedFrameRangesExactlyPartitionPDURange(t *testing.T) {
	cfg := testConfig()
	tok := allocFrame(t, cfg)

	uf := New(tok, cfg)
	sf, err := uf.WithSize(10)
	require.NoError(t, err)

	hStart, hEnd := sf.HeadroomRange()
	_, sduEndWoFCS := sf.SDURangeWoFCS()
	fcsStart, fcsEnd, present := sf.FCSRange()
	trStart, trEnd := sf.TailroomRange()
	pStart, pEnd := sf.PDURange()

	require.True(t, present)
	require.Equal(t, hStart, pStart)
	require.Equal(t, hEnd, 4)
	require.Equal(t, hEnd, sduEndWoFCS-10)
	require.Equal(t, sduEndWoFCS, fcsStart)
	require.Equal(t, fcsEnd, trStart)
	require.Equal(t, trEnd, pEnd)
	require.Equal(t, cfg.Headroom+10+cfg.FCSWidth+cfg.Tailroom, pEnd-pStart)
}

func TestSizedFrameRangesPartitionWithoutFCS(t *testing.T) {
	cfg := Config{Headroom: 0, Tailroom: 0, FCSWidth: 0, MaxSDULength: 127}
	tok := allocFrame(t, cfg)

	sf, err := New(tok, cfg).WithSize(20)
	require.NoError(t, err)

	_, _, present := sf.FCSRange()
	require.False(t, present)

	_, sduEnd := sf.SDURangeWoFCS()
	_, pduEnd := sf.PDURange()
	require.Equal(t, sduEnd, pduEnd)
}

func TestWithSizeRejectsOutOfRangeLengths(t *testing.T) {
	cfg := testConfig()
	tok := allocFrame(t, cfg)
	uf := New(tok, cfg)

	_, err := uf.WithSize(0)
	require.Error(t, err)

	_, err = uf.WithSize(cfg.MaxSDULength - cfg.FCSWidth + 1)
	require.Error(t, err)

	_, err = uf.WithSize(cfg.MaxSDULength - cfg.FCSWidth)
	require.NoError(t, err)
}

func TestMpduRoundTripPreservesBufferIdentityAndLength(t *testing.T) {
	cfg := testConfig()
	tok := allocFrame(t, cfg)

	sf, err := New(tok, cfg).WithSize(15)
	require.NoError(t, err)

	mf := FromDriverFrame(sf)
	require.Equal(t, cfg.Headroom, mf.Offset())
	require.Equal(t, uint16(15), mf.PDULengthWoFCS())
	require.Equal(t, uint16(15+cfg.FCSWidth), mf.PDULength(cfg.FCSWidth))

	back, err := mf.IntoDriverFrame(cfg)
	require.NoError(t, err)

	_, wantSduEnd := sf.SDURangeWoFCS()
	_, gotSduEnd := back.SDURangeWoFCS()
	require.Equal(t, wantSduEnd, gotSduEnd)
	require.Equal(t, sf.HeadroomLength(), back.HeadroomLength())

	wantStart, wantEnd, wantPresent := sf.FCSRange()
	gotStart, gotEnd, gotPresent := back.FCSRange()
	require.Equal(t, wantPresent, gotPresent)
	require.Equal(t, wantStart, gotStart)
	require.Equal(t, wantEnd, gotEnd)

	require.Same(t, sf.IntoBuffer(), back.IntoBuffer())
}

func TestIntoDriverFrameRejectsMismatchedHeadroom(t *testing.T) {
	cfg := testConfig()
	tok := allocFrame(t, cfg)

	sf, err := New(tok, cfg).WithSize(10)
	require.NoError(t, err)
	mf := FromDriverFrame(sf)

	otherCfg := cfg
	otherCfg.Headroom = cfg.Headroom + 1
	_, err = mf.IntoDriverFrame(otherCfg)
	require.Error(t, err)
}

func TestPayloadFromMpduFrameExcludesHeaderAndMIC(t *testing.T) {
	cfg := testConfig()
	tok := allocFrame(t, cfg)

	sf, err := New(tok, cfg).WithSize(30)
	require.NoError(t, err)
	mf := FromDriverFrame(sf)

	const headerLength = 9
	const micLength = 4
	payload := FromMpduFrame(mf, headerLength, micLength)

	require.Equal(t, 30-headerLength-micLength, payload.Len())
	require.Equal(t, mf.Offset()+headerLength, payload.Offset())
}

func TestPayloadFromMpduFramePanicsWhenHeaderAndMICExceedLength(t *testing.T) {
	cfg := testConfig()
	tok := allocFrame(t, cfg)

	sf, err := New(tok, cfg).WithSize(5)
	require.NoError(t, err)
	mf := FromDriverFrame(sf)

	require.Panics(t, func() { FromMpduFrame(mf, 4, 4) })
}

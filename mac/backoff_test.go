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

	"github.com/usbarmory/dot15d4/dot15derr"
)

// fakeTimer is a radio.Timer backed by a manually advanced clock: WaitForAlarmAt
// returns as soon as the requested instant is not after the current time,
// with no real sleeping involved.
type fakeTimer struct {
	now time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{now: time.Unix(0, 0)}
}

// newRealFakeTimer seeds the clock from the real wall clock, for tests that
// feed its Now() into a real context.WithDeadline (WaitForAck does this, so
// the two clocks must agree for the deadline to mean anything).
func newRealFakeTimer() *fakeTimer {
	return &fakeTimer{now: time.Now()}
}

func (t *fakeTimer) Now() time.Time { return t.now }

func (t *fakeTimer) ScheduleAlarm(at time.Time) {}

func (t *fakeTimer) WaitForAlarm(ctx context.Context) (time.Time, error) {
	return t.now, ctx.Err()
}

func (t *fakeTimer) WaitForAlarmAt(ctx context.Context, at time.Time) (time.Time, error) {
	if at.After(t.now) {
		t.now = at
	}
	select {
	case <-ctx.Done():
		return t.now, ctx.Err()
	default:
		return t.now, nil
	}
}

func TestBackoffWaitAdvancesMonotonically(t *testing.T) {
	b := NewBackoff(MacMinBE, MacMaxBE, MacMaxCSMABackoffs)
	timer := newFakeTimer()
	start := timer.Now()

	err := b.Wait(context.Background(), timer, 0)
	require.NoError(t, err)
	require.False(t, timer.Now().Before(start))
}

func TestBackoffWaitOverflowsAfterMaxBackoffs(t *testing.T) {
	b := NewBackoff(MacMinBE, MacMaxBE, MacMaxCSMABackoffs)
	timer := newFakeTimer()

	err := b.Wait(context.Background(), timer, MacMaxCSMABackoffs)
	require.ErrorIs(t, err, dot15derr.ErrTransactionOverflow)
}

func TestBackoffWaitHonorsCancellation(t *testing.T) {
	b := NewBackoff(MacMinBE, 8, MacMaxCSMABackoffs)
	timer := newFakeTimer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context only surfaces as an error if the backoff window
	// is non-zero; retry a handful of attempts to avoid the flake of
	// every attempt rolling a zero-length window.
	var err error
	for attempt := 0; attempt < 8; attempt++ {
		if err = b.Wait(ctx, timer, attempt); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewBackoffRejectsInvalidConfiguration(t *testing.T) {
	require.Panics(t, func() { NewBackoff(-1, 8, 16) })
	require.Panics(t, func() { NewBackoff(4, 2, 16) })
	require.Panics(t, func() { NewBackoff(0, 8, 0) })
}

// CSMA-style channel-access backoff for the dot15d4 MAC core
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
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/usbarmory/dot15d4/dot15derr"
	"github.com/usbarmory/dot15d4/radio"
)

// MAC constants from IEEE 802.15.4-2020, section 8.4.2, table 8-94;
// NewService builds its channel-access Backoff from these values.
const (
	MacMinBE           = 0
	MacMaxBE           = 8
	MacMaxCSMABackoffs = 16
	MacMaxFrameRetries = 3
)

var unitBackoffDuration = unitBackoffSymbols * symbolPeriod

// Backoff paces successive CSMA-style channel-access attempts: each
// attempt's delay is a random number of unit backoff periods in
// [0, 2^BE-1], with BE (the backoff exponent) clamped between MinBE and
// MaxBE and growing by one per failed attempt.
//
// golang.org/x/time/rate's Reservation gives us the "how long until N
// token-equivalent unit-backoff-periods have elapsed" arithmetic that a
// hand-rolled timer-plus-counter pair would otherwise have to
// reimplement; a plain time.Sleep(n*unit) would work too but would not
// generalize if this core ever wanted to rate-limit channel-access
// attempts across multiple concurrent transmitters sharing one radio,
// which is exactly the token-bucket shape rate.Limiter already provides.
type Backoff struct {
	limiter     *rate.Limiter
	minBE       int
	maxBE       int
	maxBackoffs int
}

// NewBackoff constructs a Backoff with the given exponent range and
// maximum retry count before MAC_MAX_CSMA_BACKOFFS is considered
// exceeded.
func NewBackoff(minBE, maxBE, maxBackoffs int) *Backoff {
	if minBE < 0 || maxBE < minBE || maxBackoffs <= 0 {
		panic("dot15d4/mac: invalid backoff configuration")
	}

	// The bucket starts drained: a reservation of n unit-backoff periods
	// must wait n refill intervals, which is exactly the delay the random
	// backoff window calls for. Idle time between attempts earns credit
	// back, capped at the largest possible window.
	burst := 1 << uint(maxBE)
	limiter := rate.NewLimiter(rate.Every(unitBackoffDuration), burst)
	limiter.AllowN(time.Now(), burst)

	return &Backoff{
		limiter:     limiter,
		minBE:       minBE,
		maxBE:       maxBE,
		maxBackoffs: maxBackoffs,
	}
}

// Wait delays the caller by a random backoff window sized for the given
// zero-based attempt number, or returns early if ctx is cancelled.
// Returns dot15derr.ErrTransactionOverflow once attempt reaches
// MAC_MAX_CSMA_BACKOFFS without a successful channel access.
func (b *Backoff) Wait(ctx context.Context, timer radio.Timer, attempt int) error {
	if attempt >= b.maxBackoffs {
		return dot15derr.ErrTransactionOverflow
	}

	be := b.minBE + attempt
	if be > b.maxBE {
		be = b.maxBE
	}

	units := rand.Intn(1 << uint(be))
	if units == 0 {
		return nil
	}

	now := timer.Now()
	reservation := b.limiter.ReserveN(now, units)

	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	if _, err := timer.WaitForAlarmAt(ctx, now.Add(delay)); err != nil {
		reservation.CancelAt(timer.Now())
		return err
	}
	return nil
}

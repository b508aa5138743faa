// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import "time"

// Latch is a logical guard — a timestamp plus an outstanding-request
// counter — that prevents a block builder from reissuing a fetch while one
// is in flight. It is not a mutex: it lives inside the builder's state and
// is consulted only from the control bus dispatch goroutine (spec.md §9).
type Latch struct {
	latchedAt time.Time
	count     int
}

// Latched reports whether the latch currently suppresses new need-next
// dispatches: count > 0 and less than resetInterval has elapsed since the
// latch was (re)armed.
func (l *Latch) Latched(now time.Time, resetInterval time.Duration) bool {
	return l.count > 0 && now.Sub(l.latchedAt) < resetInterval
}

// Arm records a dispatched request, incrementing the in-flight counter and
// resetting the latch timer on the first outstanding request.
func (l *Latch) Arm(now time.Time) {
	if l.count == 0 {
		l.latchedAt = now
	}
	l.count++
}

// Release decrements the in-flight counter on a response, success or
// failure. It never goes negative.
func (l *Latch) Release() {
	if l.count > 0 {
		l.count--
	}
}

// Reset clears the latch unconditionally, as happens when a timeout fires
// or the synchronizer's latch-reset tick sweeps a stuck builder.
func (l *Latch) Reset() {
	l.count = 0
	l.latchedAt = time.Time{}
}

// InFlight reports the current outstanding-request count.
func (l *Latch) InFlight() int {
	return l.count
}

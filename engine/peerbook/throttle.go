// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package peerbook

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/chainkit/reactor/types"
)

// ThrottleConfig holds the non-validator resource caps named in spec.md §5.
type ThrottleConfig struct {
	MaxOutgoingByteRateNonValidators   rate.Limit
	MaxIncomingMessageRateNonValidators rate.Limit
	MaxInFlightDemands                 int
}

// Throttle maintains per-peer sliding-window rate limiters and in-flight
// demand counters. It is grounded on the teacher's networking/tracker
// package (per-peer usage accounting) combined with golang.org/x/time/rate,
// the rate-limiting dependency the example pack's go-ethereum repository
// carries for the same purpose.
//
// Throttle never closes a connection; exceeding a budget only pauses
// reads/writes for that peer (spec.md §5), which callers implement by
// checking Allow before delivering or sending a message.
type Throttle struct {
	cfg ThrottleConfig

	outgoing map[types.NodeID]*rate.Limiter
	incoming map[types.NodeID]*rate.Limiter
	inFlight map[types.NodeID]int
}

// NewThrottle creates a Throttle with the given config.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	return &Throttle{
		cfg:      cfg,
		outgoing: make(map[types.NodeID]*rate.Limiter),
		incoming: make(map[types.NodeID]*rate.Limiter),
		inFlight: make(map[types.NodeID]int),
	}
}

func (t *Throttle) limiterFor(m map[types.NodeID]*rate.Limiter, nodeID types.NodeID, limit rate.Limit) *rate.Limiter {
	l, ok := m[nodeID]
	if !ok {
		l = rate.NewLimiter(limit, int(limit)+1)
		m[nodeID] = l
	}
	return l
}

// AllowOutgoing reports whether nodeID may send n more bytes right now,
// against MaxOutgoingByteRateNonValidators. Validator candidates are exempt,
// and a rate of zero or less disables the limiter.
func (t *Throttle) AllowOutgoing(nodeID types.NodeID, role Role, n int) bool {
	if role != RoleNonValidator || t.cfg.MaxOutgoingByteRateNonValidators <= 0 {
		return true
	}
	return t.limiterFor(t.outgoing, nodeID, t.cfg.MaxOutgoingByteRateNonValidators).AllowN(time.Now(), n)
}

// AllowIncoming reports whether a message from nodeID may be processed now,
// against MaxIncomingMessageRateNonValidators.
func (t *Throttle) AllowIncoming(nodeID types.NodeID, role Role) bool {
	if role != RoleNonValidator || t.cfg.MaxIncomingMessageRateNonValidators <= 0 {
		return true
	}
	return t.limiterFor(t.incoming, nodeID, t.cfg.MaxIncomingMessageRateNonValidators).Allow()
}

// ReserveDemand attempts to reserve one outstanding fetch-request slot
// against nodeID's MaxInFlightDemands budget. It reports false when the
// budget is exhausted.
func (t *Throttle) ReserveDemand(nodeID types.NodeID) bool {
	if t.cfg.MaxInFlightDemands > 0 && t.inFlight[nodeID] >= t.cfg.MaxInFlightDemands {
		return false
	}
	t.inFlight[nodeID]++
	return true
}

// ReleaseDemand returns a previously reserved slot, on response or timeout.
func (t *Throttle) ReleaseDemand(nodeID types.NodeID) {
	if t.inFlight[nodeID] > 0 {
		t.inFlight[nodeID]--
	}
}

// InFlight reports the current outstanding demand count for nodeID.
func (t *Throttle) InFlight(nodeID types.NodeID) int {
	return t.inFlight[nodeID]
}

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reactor

import (
	"time"

	"github.com/chainkit/reactor/engine/accumulator"
	"github.com/chainkit/reactor/engine/peerbook"
	"github.com/chainkit/reactor/engine/sync"
	"github.com/chainkit/reactor/types"
)

// Config holds the reactor's own tunables from spec.md §4.1.
type Config struct {
	MinPeersForInitialization int
	ControlLogicDefaultDelay  time.Duration
	IdleTolerance             time.Duration
	MaxAttempts               int
	UpgradeTimeout            time.Duration
	ShutdownForUpgradeTimeout time.Duration
	SyncHandling              types.SyncHandling
	ForceResync               bool
	PreventValidatorShutdown  bool
}

// Hooks are the collaborator seams spec.md §6 names only abstractly:
// storage tip lookup, upgrade activation, and validator/era membership.
// Keeping them as function fields (rather than a bundle of interfaces)
// matches the teacher's preference for small, focused function types over
// wide interfaces (see networking/timeout.Manager's callback-based API).
type Hooks struct {
	ConnectedPeerCount       func() int
	LocalTip                 func() types.Height
	UpgradeActivationCrossed func() bool
	PerformUpgrade           func(now time.Time) error
	IsValidator              func() bool
	CurrentEraJoinable       func() bool
	ShutdownHeuristicFired   func() bool
	SyncLeap                 func() (trustedTip types.TipCandidate, ok bool)
}

// Reactor drives the node state machine. It owns the synchronizer and
// accumulator (spec.md §3 "Ownership"); the peer book is shared read-mostly
// with them.
type Reactor struct {
	cfg   Config
	hooks Hooks

	state *State
	sync  *sync.Synchronizer
	acc   *accumulator.Accumulator
	peers *peerbook.PeerBook
}

// New creates a Reactor at Initialize.
func New(cfg Config, hooks Hooks, synchronizer *sync.Synchronizer, acc *accumulator.Accumulator, peers *peerbook.PeerBook, now time.Time) *Reactor {
	return &Reactor{
		cfg:   cfg,
		hooks: hooks,
		state: NewState(now),
		sync:  synchronizer,
		acc:   acc,
		peers: peers,
	}
}

// State returns the current reactor state (read-only snapshot).
func (r *Reactor) State() State {
	return *r.state
}

// ControlTick evaluates the periodic control logic from spec.md §4.1: it
// checks synchronizer progress against IdleTolerance/MaxAttempts, then
// evaluates whether the reactor can advance, in that order. Call on
// ControlLogicDefaultDelay from the control bus dispatch goroutine.
func (r *Reactor) ControlTick(now time.Time) {
	r.checkStalled(now)

	switch r.state.Kind {
	case Initialize:
		r.tickInitialize(now)
	case CatchUp:
		r.tickCatchUp(now)
	case Upgrading:
		r.tickUpgrading(now)
	case KeepUp:
		r.tickKeepUp(now)
	case Validate:
		r.tickValidate(now)
	}
}

// checkStalled implements control-tick step (a): if the synchronizer's
// last progress is stale by more than IdleTolerance, increment the stall
// counter; past MaxAttempts, declare stalled and reset the synchronizer's
// in-flight work by failing both builders so fresh ones can be registered.
func (r *Reactor) checkStalled(now time.Time) {
	if r.state.Kind.Terminal() || r.state.Kind == Initialize {
		return
	}
	if now.Sub(r.sync.LastProgress()) <= r.cfg.IdleTolerance {
		return
	}
	r.state.StallAttempts++
	if r.state.StallAttempts > r.cfg.MaxAttempts {
		if fwd := r.sync.Forward(); fwd != nil {
			fwd.Fail()
		}
		if hist := r.sync.Historical(); hist != nil {
			hist.Fail()
		}
		r.state.StallAttempts = 0
	}
}

func (r *Reactor) tickInitialize(now time.Time) {
	if r.cfg.SyncHandling == types.SyncHandlingIsolated {
		// Isolated nodes never leave the Initialize-like steady state and
		// never acquire peers (spec.md §4.1 CatchUp exit conditions).
		return
	}
	if r.hooks.ConnectedPeerCount() < r.cfg.MinPeersForInitialization {
		return
	}
	r.state.transitionTo(now, CatchUp)
}

func (r *Reactor) tickCatchUp(now time.Time) {
	if r.hooks.UpgradeActivationCrossed != nil && r.hooks.UpgradeActivationCrossed() {
		r.state.transitionTo(now, Upgrading)
		return
	}
	if r.cfg.ForceResync {
		r.cfg.ForceResync = false
		r.state.transitionTo(now, Initialize)
		return
	}
	if r.cfg.SyncHandling == types.SyncHandlingNoSync {
		r.state.transitionTo(now, KeepUp)
		return
	}

	tip, ok := r.hooks.SyncLeap()
	if !ok {
		return
	}
	r.state.TipCandidate = tip
	localTip := r.hooks.LocalTip()
	if localTip >= tip.Height {
		r.state.transitionTo(now, KeepUp)
	}
}

func (r *Reactor) tickUpgrading(now time.Time) {
	if now.Sub(r.state.UpgradingSince) > r.cfg.UpgradeTimeout {
		// UpgradeTimeout is fatal per spec.md §7; callers observe this via
		// State().Kind remaining Upgrading past the bound and treat it as
		// a fatal condition at the process boundary.
		return
	}
	if err := r.hooks.PerformUpgrade(now); err != nil {
		return
	}
	r.state.transitionTo(now, KeepUp)
}

func (r *Reactor) tickKeepUp(now time.Time) {
	if r.hooks.UpgradeActivationCrossed != nil && r.hooks.UpgradeActivationCrossed() {
		r.state.transitionTo(now, Upgrading)
		return
	}
	if r.shouldShutdownForUpgrade(now) {
		if !r.shutdownSuppressed() {
			r.state.transitionTo(now, ShutdownForUpgrade)
		}
		return
	}
	// Invariant 3: Validate is reachable only from KeepUp and only for
	// ttl/genesis sync handling.
	if !r.cfg.SyncHandling.ValidatorEligible() {
		return
	}
	if r.hooks.IsValidator() && r.hooks.CurrentEraJoinable() {
		r.state.transitionTo(now, Validate)
	}
}

func (r *Reactor) tickValidate(now time.Time) {
	if r.hooks.UpgradeActivationCrossed != nil && r.hooks.UpgradeActivationCrossed() {
		r.state.transitionTo(now, Upgrading)
		return
	}
	if r.shouldShutdownForUpgrade(now) {
		if !r.shutdownSuppressed() {
			r.state.transitionTo(now, ShutdownForUpgrade)
		}
	}
}

func (r *Reactor) shouldShutdownForUpgrade(now time.Time) bool {
	if r.hooks.ShutdownHeuristicFired == nil || !r.hooks.ShutdownHeuristicFired() {
		r.state.ShutdownRequestedAt = time.Time{}
		return false
	}
	if r.state.ShutdownRequestedAt.IsZero() {
		r.state.ShutdownRequestedAt = now
	}
	// Reports true from the first tick the heuristic fires; the
	// ShutdownForUpgradeTimeout bound is applied in shutdownSuppressed.
	return now.Sub(r.state.ShutdownRequestedAt) >= 0
}

// shutdownSuppressed implements spec.md §4.1/§7: a validator-shutdown
// heuristic is ignored (not an OS signal) while PreventValidatorShutdown is
// set and this node is validating the current era — unless the configured
// ShutdownForUpgradeTimeout has already elapsed, which forces the
// transition regardless.
func (r *Reactor) shutdownSuppressed() bool {
	if !r.cfg.PreventValidatorShutdown || !r.hooks.IsValidator() {
		return false
	}
	if r.state.Kind != Validate {
		return false
	}
	return time.Since(r.state.ShutdownRequestedAt) < r.cfg.ShutdownForUpgradeTimeout
}

// RequestShutdownAfterCatchingUp transitions directly to the
// ShutdownAfterCatchingUp terminal; used by the CLI/operator surface once
// CatchUp completes and the node was started in a catch-up-only mode. Not
// gated by PreventValidatorShutdown since it is operator-issued, not a
// controlled-shutdown heuristic.
func (r *Reactor) RequestShutdownAfterCatchingUp(now time.Time) {
	r.state.transitionTo(now, ShutdownAfterCatchingUp)
}

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reactor implements the top-level node state machine: Initialize
// -> CatchUp -> (Upgrading) -> KeepUp -> Validate, with
// ShutdownForUpgrade / ShutdownAfterCatchingUp as terminals. It is grounded
// on the teacher's consensus.go SDK-surface style (a finite sum of named
// states with per-state data, no inheritance) and on engine/chain/bootstrap
// for the catch-up lifecycle shape.
package reactor

import (
	"time"

	"github.com/chainkit/reactor/types"
)

// Kind names one of the seven reactor states from spec.md §3/§4.1.
type Kind int

const (
	Initialize Kind = iota
	CatchUp
	Upgrading
	KeepUp
	Validate
	ShutdownForUpgrade
	ShutdownAfterCatchingUp
)

func (k Kind) String() string {
	switch k {
	case Initialize:
		return "Initialize"
	case CatchUp:
		return "CatchUp"
	case Upgrading:
		return "Upgrading"
	case KeepUp:
		return "KeepUp"
	case Validate:
		return "Validate"
	case ShutdownForUpgrade:
		return "ShutdownForUpgrade"
	case ShutdownAfterCatchingUp:
		return "ShutdownAfterCatchingUp"
	default:
		return "Unknown"
	}
}

// Terminal reports whether k is a shutdown terminal.
func (k Kind) Terminal() bool {
	return k == ShutdownForUpgrade || k == ShutdownAfterCatchingUp
}

// State is the reactor's tagged-variant state: one Kind plus the data that
// kind carries (spec.md §3 "Reactor state").
type State struct {
	Kind Kind

	LastProgress time.Time
	TipCandidate types.TipCandidate

	// UpgradingSince is meaningful only while Kind == Upgrading;
	// StallAttempts counts stalled control ticks in every state except
	// Initialize and the terminals, and is cleared on each transition. Both
	// are kept inline rather than behind a payload interface, per spec.md §9.
	UpgradingSince time.Time
	StallAttempts  int

	// ShutdownRequestedAt records when a shutdown-for-upgrade condition was
	// first observed, to bound it by ShutdownForUpgradeTimeout.
	ShutdownRequestedAt time.Time
}

// NewState starts a reactor at Initialize.
func NewState(now time.Time) *State {
	return &State{Kind: Initialize, LastProgress: now}
}

// transitionTo moves to kind, stamping LastProgress and resetting
// state-local counters that don't carry across a transition.
func (s *State) transitionTo(now time.Time, kind Kind) {
	s.Kind = kind
	s.LastProgress = now
	s.StallAttempts = 0
	if kind == Upgrading {
		s.UpgradingSince = now
	}
}

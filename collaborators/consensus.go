// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package collaborators

import (
	"context"
	"time"

	"github.com/chainkit/reactor/types"
)

// ConsensusEngine is the consensus-protocol collaborator named in spec.md
// §6. Its internals (Zug/Highway) are explicitly out of scope; the core
// only needs to deliver finalized-block notifications while in Validate and
// to receive proposed blocks for validation.
type ConsensusEngine interface {
	NotifyFinalized(ctx context.Context, header types.BlockHeader) error
	ValidateProposal(ctx context.Context, header types.BlockHeader) error
}

// ProposalTimeoutAdapter adapts a round proposal timeout based on recent
// round outcomes. Two chainspec-selectable strategies exist per spec.md §6;
// both satisfy this interface so the reactor's Validate state can hand
// either to the consensus engine without caring which was configured.
type ProposalTimeoutAdapter interface {
	// RecordRound folds one round's outcome in and returns the timeout to
	// use for the next round.
	RecordRound(slow bool) time.Duration
	Current() time.Duration
}

// ZugTimeoutAdapter implements the fixed-minimal-proposal-timeout strategy
// with grace-period-percentage adaptation (spec.md §6). The exact
// adaptation rule is resolved here per the Open Question in spec.md §9: the
// timeout doubles after ProposalTimeoutInertia consecutive slow rounds and
// halves after strictly more than ProposalTimeoutInertia consecutive fast
// rounds — i.e. it responds to sustained slowness faster than it relaxes
// after sustained speed, by exactly one round's margin. See DESIGN.md for
// the decision record.
type ZugTimeoutAdapter struct {
	minimal        time.Duration
	gracePeriodPct float64
	inertia        int

	current       time.Duration
	slowStreak    int
	fastStreak    int
}

// NewZugTimeoutAdapter creates an adapter with the chainspec-configured
// minimal timeout, grace period percentage and inertia.
func NewZugTimeoutAdapter(minimal time.Duration, gracePeriodPct float64, inertia int) *ZugTimeoutAdapter {
	return &ZugTimeoutAdapter{
		minimal:        minimal,
		gracePeriodPct: gracePeriodPct,
		inertia:        inertia,
		current:        minimal,
	}
}

// RecordRound implements ProposalTimeoutAdapter.
func (z *ZugTimeoutAdapter) RecordRound(slow bool) time.Duration {
	if slow {
		z.slowStreak++
		z.fastStreak = 0
		if z.slowStreak >= z.inertia {
			z.current = z.bounded(z.current * 2)
			z.slowStreak = 0
		}
	} else {
		z.fastStreak++
		z.slowStreak = 0
		if z.fastStreak > z.inertia {
			z.current = z.bounded(z.current / 2)
			z.fastStreak = 0
		}
	}
	return z.current
}

func (z *ZugTimeoutAdapter) bounded(d time.Duration) time.Duration {
	floor := z.minimal
	grace := time.Duration(float64(z.minimal) * z.gracePeriodPct)
	if d < floor {
		return floor
	}
	ceiling := floor + grace
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// Current returns the adapter's present timeout.
func (z *ZugTimeoutAdapter) Current() time.Duration { return z.current }

// RoundSuccessMeterAdapter implements the round-success-meter strategy:
// it tracks the success rate over the last NumRoundsToConsider rounds and
// adapts between slowdown and speedup thresholds (spec.md §6).
type RoundSuccessMeterAdapter struct {
	window             int
	slowdownThreshold  float64
	speedupThreshold   float64
	base               time.Duration

	outcomes []bool // true = round succeeded within timeout
	current  time.Duration
}

// NewRoundSuccessMeterAdapter creates an adapter over the last
// numRoundsToConsider rounds.
func NewRoundSuccessMeterAdapter(base time.Duration, numRoundsToConsider int, slowdownThreshold, speedupThreshold float64) *RoundSuccessMeterAdapter {
	return &RoundSuccessMeterAdapter{
		window:            numRoundsToConsider,
		slowdownThreshold: slowdownThreshold,
		speedupThreshold:  speedupThreshold,
		base:              base,
		current:           base,
	}
}

// RecordRound implements ProposalTimeoutAdapter. slow=true is treated as a
// round that did not succeed within the current timeout.
func (m *RoundSuccessMeterAdapter) RecordRound(slow bool) time.Duration {
	m.outcomes = append(m.outcomes, !slow)
	if len(m.outcomes) > m.window {
		m.outcomes = m.outcomes[len(m.outcomes)-m.window:]
	}
	if len(m.outcomes) < m.window {
		return m.current
	}
	successes := 0
	for _, ok := range m.outcomes {
		if ok {
			successes++
		}
	}
	rate := float64(successes) / float64(len(m.outcomes))
	switch {
	case rate < m.slowdownThreshold:
		m.current *= 2
	case rate > m.speedupThreshold:
		m.current /= 2
		if m.current < m.base {
			m.current = m.base
		}
	}
	return m.current
}

// Current returns the adapter's present timeout.
func (m *RoundSuccessMeterAdapter) Current() time.Duration { return m.current }

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package accumulator

import (
	"errors"
	"time"

	"github.com/chainkit/reactor/types"
)

// ErrPeerDishonest is returned from RegisterFinalitySignature when the
// attached signature fails verification; the accumulator does not touch the
// peer book itself, so blocklisting the offending peer is left to the caller.
var ErrPeerDishonest = errors.New("accumulator: peer delivered an unverifiable finality signature")

// EraWeights resolves the stake-weighted validator set of an era, the way
// the teacher's validators.State resolves a validator set for a subnet at a
// height. The accumulator needs the switch block of a block's parent era to
// be locally available before it can compute a weight fraction; ErrEraUnknown
// signals that it is not yet available.
type EraWeights interface {
	// TotalWeight returns the era's total stake.
	TotalWeight(era types.EraID) (uint64, error)
	// Weight returns signer's stake within era, or zero if signer is not a
	// member of that era's validator set.
	Weight(era types.EraID, signer types.PublicKey) (uint64, error)
}

// ErrEraUnknown signals that the switch block of the requested era's parent
// era has not yet been locally acquired. EraWeights implementations may
// return it; RegisterFinalitySignature also returns it when TotalWeight
// reports zero for the era.
var ErrEraUnknown = errors.New("accumulator: era validator set not yet locally available")

// VerifySignature verifies that sig is a valid finality signature by signer
// over blockHash. Verification failure marks the contributing peer
// dishonest (spec.md §4.2 invariants) but never the accumulator's own
// state.
type VerifySignature func(blockHash Hash, signer types.PublicKey, sig types.Signature) bool

// Config holds the tunables named in spec.md §3/§4.2.
type Config struct {
	AttemptExecutionThreshold types.Height
	PurgeInterval             time.Duration
	DeadAirInterval           time.Duration
}

// Accumulator maintains block_hash -> acceptor for blocks observed via
// gossip but not yet pursued by the synchronizer. It is owned exclusively
// by the control bus dispatch goroutine (package bus) and never locks
// internally, per spec.md §5.
type Accumulator struct {
	cfg      Config
	weights  EraWeights
	verify   VerifySignature
	acceptors map[Hash]*Acceptor
	now      func() time.Time
}

// New creates an Accumulator.
func New(cfg Config, weights EraWeights, verify VerifySignature) *Accumulator {
	return &Accumulator{
		cfg:       cfg,
		weights:   weights,
		verify:    verify,
		acceptors: make(map[Hash]*Acceptor),
		now:       time.Now,
	}
}

func (a *Accumulator) acceptorFor(blockHash Hash) *Acceptor {
	acc, ok := a.acceptors[blockHash]
	if !ok {
		acc = newAcceptor(blockHash, a.now())
		a.acceptors[blockHash] = acc
	}
	return acc
}

// RegisterAnnouncement creates or updates the acceptor for a gossiped block
// announcement. height and header may each be nil/zero when not yet known.
func (a *Accumulator) RegisterAnnouncement(blockHash Hash, height *types.Height, header *types.BlockHeader) {
	acc := a.acceptorFor(blockHash)
	acc.touch(a.now())
	if header != nil {
		acc.registerHeader(*header)
	} else if height != nil {
		acc.registerHeight(*height)
	}
}

// RegisterFinalitySignature appends signer's signature to blockHash's
// acceptor. It returns (executable, error): executable is true the moment
// this call causes the acceptor to cross the weak-finality threshold while
// the block remains within AttemptExecutionThreshold of localTip;
// ErrPeerDishonest signals the caller should blocklist the sending peer;
// ErrEraUnknown signals the parent era's switch block is not yet resident,
// so weight cannot be computed. In that case the signature is not recorded
// and weight is not advanced; only the acceptor's existence and last-touched
// time are updated, so the same signature must be registered again to count.
func (a *Accumulator) RegisterFinalitySignature(
	blockHash Hash,
	era types.EraID,
	signer types.PublicKey,
	sig types.Signature,
	localTip types.Height,
) (executable bool, err error) {
	acc := a.acceptorFor(blockHash)
	acc.touch(a.now())

	if a.verify != nil && !a.verify(blockHash, signer, sig) {
		return false, ErrPeerDishonest
	}

	total, err := a.weights.TotalWeight(era)
	if err != nil {
		return false, err
	}
	if total == 0 {
		return false, ErrEraUnknown
	}
	stake, err := a.weights.Weight(era, signer)
	if err != nil {
		return false, err
	}
	if stake == 0 {
		// signer not a member of this era's validator set: contributes
		// nothing, not an error (could be a late signature from a rotated-
		// out validator).
		return false, nil
	}

	fraction := types.WeightFraction(float64(stake) / float64(total))
	added := acc.registerSignature(signer, sig, fraction)
	if !added {
		return acc.Executable, nil // idempotent re-application, spec.md §8
	}

	if !acc.Executable && types.FinalityWeak.Meets(acc.Weight()) {
		if acc.Height == nil || withinReach(*acc.Height, localTip, a.cfg.AttemptExecutionThreshold) {
			acc.Executable = true
		}
	}
	return acc.Executable, nil
}

func withinReach(target, localTip, threshold types.Height) bool {
	if target <= localTip {
		return true
	}
	return target-localTip <= threshold
}

// Executable reports whether blockHash's acceptor has crossed weak
// finality and is within reach of local tip.
func (a *Accumulator) Executable(blockHash Hash) bool {
	acc, ok := a.acceptors[blockHash]
	return ok && acc.Executable
}

// Get returns the acceptor for blockHash, if any.
func (a *Accumulator) Get(blockHash Hash) (*Acceptor, bool) {
	acc, ok := a.acceptors[blockHash]
	return acc, ok
}

// BestCandidate returns the highest-weight tip candidate among all known
// acceptors that have a known height, applying the tie-break rule from
// spec.md §4.1 (highest finality weight, then lexicographically smallest
// hash). ok is false when no acceptor has a known height.
func (a *Accumulator) BestCandidate() (candidate types.TipCandidate, ok bool) {
	var bestHash Hash
	var bestWeight types.WeightFraction
	found := false
	for hash, acc := range a.acceptors {
		if acc.Height == nil {
			continue
		}
		if !found || types.LessCandidate(hash, acc.Weight(), bestHash, bestWeight) {
			bestHash, bestWeight, found = hash, acc.Weight(), true
			candidate = types.TipCandidate{BlockHash: hash, Height: *acc.Height}
		}
	}
	return candidate, found
}

// Purge drops acceptors that have been idle for at least DeadAirInterval,
// or whose known height falls strictly below finalizedLocalTip minus a
// small safety margin. Call on PurgeInterval per spec.md §4.2.
func (a *Accumulator) Purge(finalizedLocalTip types.Height, safetyMargin types.Height) (purged int) {
	now := a.now()
	cutoff := types.Height(0)
	if finalizedLocalTip > safetyMargin {
		cutoff = finalizedLocalTip - safetyMargin
	}
	for hash, acc := range a.acceptors {
		if acc.idle(now, a.cfg.DeadAirInterval) {
			delete(a.acceptors, hash)
			purged++
			continue
		}
		if acc.Height != nil && *acc.Height < cutoff {
			delete(a.acceptors, hash)
			purged++
		}
	}
	return purged
}

// Len reports the number of tracked acceptors.
func (a *Accumulator) Len() int {
	return len(a.acceptors)
}

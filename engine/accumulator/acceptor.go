// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package accumulator triages gossiped block announcements and finality
// signatures, promoting blocks that cross the finality-weight threshold
// into synchronizer targets. It is grounded on the teacher's acceptor.go /
// acceptor_group.go (per-item acceptor scratch space prior to full decision)
// generalized from a single decidable container to a per-block, per-era
// weighted-signature scratchpad.
package accumulator

import (
	"time"

	"github.com/chainkit/reactor/types"
)

// signerRecord records one signer's contribution so duplicates are a no-op
// (round-trip/idempotence property in spec.md §8).
type signerRecord struct {
	signature types.Signature
}

// Acceptor is the accumulator's per-block scratch space: what's known about
// a gossiped block before it has been fully acquired.
type Acceptor struct {
	BlockHash Hash
	Height    *types.Height // nil until a header or announced height arrives
	Header    *types.BlockHeader

	signers map[types.PublicKey]signerRecord
	weight  types.WeightFraction

	// Executable is set once accumulated weight crosses the weak-finality
	// threshold and the block is within reach of local tip.
	Executable bool

	lastTouched time.Time
}

// Hash is a local alias kept terse to match the teacher's short, sparsely
// commented identifier style.
type Hash = types.Hash

func newAcceptor(blockHash Hash, now time.Time) *Acceptor {
	return &Acceptor{
		BlockHash:   blockHash,
		signers:     make(map[types.PublicKey]signerRecord),
		lastTouched: now,
	}
}

func (a *Acceptor) touch(now time.Time) {
	a.lastTouched = now
}

// registerHeight attributes an announced height, taking the first value
// seen (subsequent distinct announcements are suspect and ignored here;
// the synchronizer will discover the real height once the header arrives).
func (a *Acceptor) registerHeight(h types.Height) {
	if a.Height == nil {
		v := h
		a.Height = &v
	}
}

func (a *Acceptor) registerHeader(h types.BlockHeader) {
	if a.Header == nil {
		a.Header = &h
		a.registerHeight(h.Height)
	}
}

// registerSignature appends a signer's contribution; returns false if this
// signer already has a recorded signature, whatever its bytes (idempotent
// no-op).
func (a *Acceptor) registerSignature(signer types.PublicKey, sig types.Signature, signerWeight types.WeightFraction) bool {
	if _, ok := a.signers[signer]; ok {
		return false
	}
	a.signers[signer] = signerRecord{signature: sig}
	a.weight += signerWeight
	if a.weight > 1 {
		a.weight = 1 // invariant 6: never exceed 100% of era stake
	}
	return true
}

// Weight returns the accumulated, era-total-stake-weighted finality
// fraction attributed to this block so far.
func (a *Acceptor) Weight() types.WeightFraction {
	return a.weight
}

func (a *Acceptor) idle(now time.Time, deadAir time.Duration) bool {
	return now.Sub(a.lastTouched) >= deadAir
}

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the identifiers and value types shared across the
// reactor core: block identity, finality levels and the available block
// range.
package types

import (
	"time"

	"github.com/luxfi/ids"
)

// Hash identifies a block, trie node or any other content-addressed artifact.
type Hash = ids.ID

// NodeID identifies a peer.
type NodeID = ids.NodeID

// PublicKey is a validator's consensus public key, in the form BLS signature
// verification expects it.
type PublicKey = ids.ID

// EraID is a monotone, non-negative era counter.
type EraID uint64

// Height is a monotone, non-negative block height.
type Height uint64

// Signature is an opaque finality-signature byte string.
type Signature []byte

// ProtocolVersion is a monotone, semver-like protocol version used to decide
// which finality level a block requires and whether legacy tarpit rules
// apply to a peer advertising it.
type ProtocolVersion struct {
	Major, Minor, Patch uint32
}

// Less reports whether v precedes other.
func (v ProtocolVersion) Less(other ProtocolVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

// BlockHeader is the subset of block metadata available before the body is
// fetched.
type BlockHeader struct {
	BlockHash      Hash
	ParentHash     Hash
	Height         Height
	EraID          EraID
	StateRootHash  Hash
	Proposer       PublicKey
	Timestamp      time.Time
	ProtocolVer    ProtocolVersion
	// IsSwitchBlock is true when this block is the last block of EraID; it
	// carries the validator set for EraID+1.
	IsSwitchBlock bool
}

// FinalityLevel names the signature-weight threshold required for a block to
// be treated as final.
type FinalityLevel int

const (
	// FinalityAny accepts a block regardless of attached weight.
	FinalityAny FinalityLevel = iota
	// FinalityWeak requires signature weight strictly greater than 1/3 of
	// era total stake.
	FinalityWeak
	// FinalityStrict requires signature weight strictly greater than 2/3 of
	// era total stake.
	FinalityStrict
)

// WeightFraction is a stake-weighted fraction in [0, 1].
type WeightFraction float64

const (
	weakThreshold   WeightFraction = 1.0 / 3.0
	strictThreshold WeightFraction = 2.0 / 3.0
)

// Meets reports whether weight crosses the threshold associated with level.
func (level FinalityLevel) Meets(weight WeightFraction) bool {
	switch level {
	case FinalityWeak:
		return weight > weakThreshold
	case FinalityStrict:
		return weight > strictThreshold
	default:
		return true
	}
}

// AvailableBlockRange is the inclusive height window [Low, High] for which
// the node guarantees full local block data. The zero value denotes an empty
// range.
type AvailableBlockRange struct {
	Low, High Height
}

// Empty reports whether the range holds no heights.
func (r AvailableBlockRange) Empty() bool {
	return r.Low == 0 && r.High == 0
}

// Contains reports whether h falls within [Low, High].
func (r AvailableBlockRange) Contains(h Height) bool {
	return !r.Empty() && h >= r.Low && h <= r.High
}

// TipCandidate is the highest block the accumulator currently believes is
// the best next forward target.
type TipCandidate struct {
	BlockHash Hash
	Height    Height
}

// LessCandidate implements the tie-break order from spec §4.1: higher finality
// weight wins; ties broken by the lexicographically smaller hash.
func LessCandidate(aHash Hash, aWeight WeightFraction, bHash Hash, bWeight WeightFraction) bool {
	if aWeight != bWeight {
		return aWeight > bWeight
	}
	return aHash.Compare(bHash) < 0
}

// SyncHandling selects the historical-backfill discipline for a node.
type SyncHandling int

const (
	// SyncHandlingTTL backfills history up to a time-to-live window.
	SyncHandlingTTL SyncHandling = iota
	// SyncHandlingGenesis backfills all the way to genesis.
	SyncHandlingGenesis
	// SyncHandlingNoSync skips historical backfill entirely.
	SyncHandlingNoSync
	// SyncHandlingIsolated never connects to peers at all.
	SyncHandlingIsolated
)

// ValidatorEligible reports whether sh permits the node to ever enter Validate.
func (sh SyncHandling) ValidatorEligible() bool {
	return sh == SyncHandlingTTL || sh == SyncHandlingGenesis
}

// Direction distinguishes the two sync lanes a builder can serve.
type Direction int

const (
	// DirectionForward chases blocks above local tip.
	DirectionForward Direction = iota
	// DirectionHistorical backfills blocks below local low.
	DirectionHistorical
)

func (d Direction) String() string {
	if d == DirectionForward {
		return "forward"
	}
	return "historical"
}

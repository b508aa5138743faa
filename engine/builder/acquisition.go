// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package builder implements the per-block acquisition state machine (a
// block builder) and its latch, grounded on the teacher's flat,
// exhaustive-switch style for tagged state (see engine/chain/block and
// chain/block.go) rather than an interface hierarchy, per spec.md §9.
package builder

import (
	"fmt"

	"github.com/chainkit/reactor/types"
)

// Tag identifies which artifact a block builder is currently missing. The
// acquisition order is fixed (spec.md §4.3):
//
//	NeedHeader -> NeedApprovalsHashes -> NeedBody -> (NeedExecutionResults
//	-> NeedGlobalState, if historical) -> NeedFinalitySignatures -> Complete
type Tag int

const (
	NeedHeader Tag = iota
	NeedApprovalsHashes
	NeedBody
	NeedExecutionResults
	NeedGlobalState
	NeedFinalitySignatures
	Complete
	Failed
)

func (t Tag) String() string {
	switch t {
	case NeedHeader:
		return "NeedHeader"
	case NeedApprovalsHashes:
		return "NeedApprovalsHashes"
	case NeedBody:
		return "NeedBody"
	case NeedExecutionResults:
		return "NeedExecutionResults"
	case NeedGlobalState:
		return "NeedGlobalState"
	case NeedFinalitySignatures:
		return "NeedFinalitySignatures"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Tag(%d)", int(t))
	}
}

// AcquisitionState is the flat tagged variant tracking what a block builder
// still needs. Only the fields relevant to the current Tag are meaningful;
// this mirrors a Rust enum's per-variant payload without a class hierarchy.
type AcquisitionState struct {
	Tag Tag

	BlockHash types.Hash
	Historical bool
	Level      types.FinalityLevel

	// Header is populated once NeedHeader completes; Complete's storage
	// handoff and NeedFinalitySignatures' era lookup both read it.
	Header types.BlockHeader

	// NeedFinalitySignatures payload.
	WeightSoFar types.WeightFraction

	// NeedGlobalState payload: trie node hashes still outstanding,
	// deduplicated against already-resident nodes.
	TrieFetchSet map[types.Hash]struct{}

	// PerPeer attributes which peer most recently supplied (or failed to
	// supply) the artifact for the current tag, so a bad response can be
	// traced back to a peer and reported dishonest.
	PerPeer map[types.NodeID]Tag
}

// NewAcquisitionState starts a fresh acquisition at NeedHeader.
func NewAcquisitionState(blockHash types.Hash, historical bool, level types.FinalityLevel) *AcquisitionState {
	return &AcquisitionState{
		Tag:        NeedHeader,
		BlockHash:  blockHash,
		Historical: historical,
		Level:      level,
		PerPeer:    make(map[types.NodeID]Tag),
	}
}

// NeedNext describes the next fetch the synchronizer should dispatch, or
// reports that nothing is needed (a builder at Complete/Failed, or whose
// current need is latched).
type NeedNext struct {
	Tag       Tag
	BlockHash types.Hash
	// TrieHashes is populated only for NeedGlobalState.
	TrieHashes []types.Hash
}

// NeedNext computes the descriptor for the current tag. It never mutates
// state; transitions happen in Advance/Fail.
func (s *AcquisitionState) NeedNext() (NeedNext, bool) {
	switch s.Tag {
	case Complete, Failed:
		return NeedNext{}, false
	case NeedGlobalState:
		if len(s.TrieFetchSet) == 0 {
			return NeedNext{}, false
		}
		hashes := make([]types.Hash, 0, len(s.TrieFetchSet))
		for h := range s.TrieFetchSet {
			hashes = append(hashes, h)
		}
		return NeedNext{Tag: s.Tag, BlockHash: s.BlockHash, TrieHashes: hashes}, true
	default:
		return NeedNext{Tag: s.Tag, BlockHash: s.BlockHash}, true
	}
}

// AdvanceHeader transitions NeedHeader -> NeedApprovalsHashes once a header
// has been fetched and verified, recording it for later stages.
func (s *AcquisitionState) AdvanceHeader(header types.BlockHeader) {
	s.requireTag(NeedHeader)
	s.Header = header
	s.Tag = NeedApprovalsHashes
}

// AdvanceApprovalsHashes transitions NeedApprovalsHashes -> NeedBody.
func (s *AcquisitionState) AdvanceApprovalsHashes() {
	s.requireTag(NeedApprovalsHashes)
	s.Tag = NeedBody
}

// AdvanceBody transitions NeedBody -> NeedExecutionResults (historical) or
// NeedFinalitySignatures (forward skips straight to finality signatures once the
// body is present, per spec.md §4.3: a forward builder stops at
// NeedFinalitySignatures and never fetches global state).
func (s *AcquisitionState) AdvanceBody() {
	s.requireTag(NeedBody)
	switch {
	case s.Historical:
		s.Tag = NeedExecutionResults
	default:
		s.Tag = NeedFinalitySignatures
	}
}

// AdvanceExecutionResults transitions NeedExecutionResults -> NeedGlobalState.
// Only valid for historical builders.
func (s *AcquisitionState) AdvanceExecutionResults(trieRoot types.Hash, residentTrieNodes map[types.Hash]struct{}) {
	s.requireTag(NeedExecutionResults)
	s.Tag = NeedGlobalState
	s.TrieFetchSet = map[types.Hash]struct{}{trieRoot: {}}
	for node := range residentTrieNodes {
		delete(s.TrieFetchSet, node)
	}
}

// ResolveTrieNode removes node from the outstanding trie fetch set and adds
// any of its children that are not already resident. When the set empties,
// the builder advances to NeedFinalitySignatures.
func (s *AcquisitionState) ResolveTrieNode(node types.Hash, children []types.Hash, residentTrieNodes map[types.Hash]struct{}) {
	s.requireTag(NeedGlobalState)
	delete(s.TrieFetchSet, node)
	for _, child := range children {
		if _, resident := residentTrieNodes[child]; !resident {
			s.TrieFetchSet[child] = struct{}{}
		}
	}
	if len(s.TrieFetchSet) == 0 {
		s.Tag = NeedFinalitySignatures
	}
}

// ResolveFinalitySignature folds additional signature weight in; once the
// configured level is met the builder completes.
func (s *AcquisitionState) ResolveFinalitySignature(weight types.WeightFraction) {
	s.requireTag(NeedFinalitySignatures)
	s.WeightSoFar += weight
	if s.WeightSoFar > 1 {
		s.WeightSoFar = 1
	}
	if s.Level.Meets(s.WeightSoFar) {
		s.Tag = Complete
	}
}

// Fail transitions the builder to Failed from any non-terminal tag.
func (s *AcquisitionState) Fail() {
	if s.Tag != Complete {
		s.Tag = Failed
	}
}

// AttributePeer records that nodeID most recently served (or failed to
// serve) the artifact for the current tag.
func (s *AcquisitionState) AttributePeer(nodeID types.NodeID) {
	s.PerPeer[nodeID] = s.Tag
}

func (s *AcquisitionState) requireTag(want Tag) {
	if s.Tag != want {
		panic(fmt.Sprintf("acquisition state: advance called in tag %s, expected %s", s.Tag, want))
	}
}

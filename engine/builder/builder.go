// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import (
	"errors"
	"time"

	"github.com/chainkit/reactor/types"
)

// ErrLatched is returned by Dispatch when the builder's current need is
// latched and nothing should be issued yet.
var ErrLatched = errors.New("builder: need-next is latched")

// ErrWrongTag is returned when a Handle* call doesn't match the builder's
// current acquisition tag (a stale response, per spec.md §5 ordering
// guarantees: "a fetch response referring to a builder that has since been
// retired" must be tolerated and discarded by the caller before it ever
// reaches here, but a response for an already-advanced tag is handled the
// same way).
var ErrWrongTag = errors.New("builder: response does not match current acquisition tag")

// Config holds the per-builder tunables from spec.md §4.3/§4.4.
type Config struct {
	LatchResetInterval     time.Duration
	GetFromPeerTimeout     time.Duration
	MaxParallelTrieFetches int
}

// Builder is the per-block acquisition state machine plus its latch and
// per-peer attribution map (spec.md §3 "block acquisition state", §4.3).
type Builder struct {
	cfg       Config
	Direction types.Direction
	State     *AcquisitionState

	latch Latch
	// trieOutstanding maps a trie node hash to the peer currently fetching
	// it, enforcing invariant 2 (never two outstanding requests for the
	// same block-part to the same peer) while allowing distinct nodes to
	// be fetched from distinct peers in parallel.
	trieOutstanding map[types.Hash]types.NodeID

	dishonestPeers map[types.NodeID]struct{}
	lastProgress   time.Time
}

// New creates a Builder targeting blockHash in the given direction.
func New(direction types.Direction, blockHash types.Hash, level types.FinalityLevel, cfg Config, now time.Time) *Builder {
	return &Builder{
		cfg:             cfg,
		Direction:       direction,
		State:           NewAcquisitionState(blockHash, direction == types.DirectionHistorical, level),
		trieOutstanding: make(map[types.Hash]types.NodeID),
		dishonestPeers:  make(map[types.NodeID]struct{}),
		lastProgress:    now,
	}
}

// PollNeedNext reports the builder's current need, or ok=false when there
// is nothing to do right now (complete, failed, or latched).
func (b *Builder) PollNeedNext(now time.Time) (NeedNext, bool) {
	if b.State.Tag != NeedGlobalState && b.latch.Latched(now, b.cfg.LatchResetInterval) {
		return NeedNext{}, false
	}
	return b.State.NeedNext()
}

// Dispatch arms the latch for a non-trie fetch and attributes it to peer.
// Callers must have already confirmed PollNeedNext returned ok.
func (b *Builder) Dispatch(now time.Time, peer types.NodeID) (NeedNext, error) {
	need, ok := b.State.NeedNext()
	if !ok || need.Tag == NeedGlobalState {
		return NeedNext{}, ErrLatched
	}
	if b.latch.Latched(now, b.cfg.LatchResetInterval) {
		return NeedNext{}, ErrLatched
	}
	b.latch.Arm(now)
	b.State.AttributePeer(peer)
	return need, nil
}

// DispatchTrieFetches selects up to MaxParallelTrieFetches outstanding trie
// nodes not already being fetched and assigns each to one of the available
// peers (round-robin), returning the (node, peer) pairs to dispatch.
func (b *Builder) DispatchTrieFetches(peers []types.NodeID) []TrieDispatch {
	if b.State.Tag != NeedGlobalState || len(peers) == 0 {
		return nil
	}
	var out []TrieDispatch
	peerIdx := 0
	for node := range b.State.TrieFetchSet {
		if len(b.trieOutstanding)+len(out) >= b.cfg.MaxParallelTrieFetches {
			break
		}
		if _, busy := b.trieOutstanding[node]; busy {
			continue
		}
		peer := peers[peerIdx%len(peers)]
		peerIdx++
		out = append(out, TrieDispatch{Node: node, Peer: peer})
	}
	for _, d := range out {
		b.trieOutstanding[d.Node] = d.Peer
	}
	return out
}

// TrieDispatch pairs an outstanding trie node with the peer it was
// requested from.
type TrieDispatch struct {
	Node types.Hash
	Peer types.NodeID
}

// HandleHeader completes NeedHeader.
func (b *Builder) HandleHeader(now time.Time, header types.BlockHeader) error {
	if b.State.Tag != NeedHeader {
		return ErrWrongTag
	}
	b.latch.Release()
	b.State.AdvanceHeader(header)
	b.lastProgress = now
	return nil
}

// HandleApprovalsHashes completes NeedApprovalsHashes.
func (b *Builder) HandleApprovalsHashes(now time.Time) error {
	if b.State.Tag != NeedApprovalsHashes {
		return ErrWrongTag
	}
	b.latch.Release()
	b.State.AdvanceApprovalsHashes()
	b.lastProgress = now
	return nil
}

// HandleBody completes NeedBody.
func (b *Builder) HandleBody(now time.Time) error {
	if b.State.Tag != NeedBody {
		return ErrWrongTag
	}
	b.latch.Release()
	b.State.AdvanceBody()
	b.lastProgress = now
	return nil
}

// HandleExecutionResults completes NeedExecutionResults (historical only).
func (b *Builder) HandleExecutionResults(now time.Time, stateRoot types.Hash, resident map[types.Hash]struct{}) error {
	if b.State.Tag != NeedExecutionResults {
		return ErrWrongTag
	}
	b.latch.Release()
	b.State.AdvanceExecutionResults(stateRoot, resident)
	b.lastProgress = now
	return nil
}

// HandleTrieNode folds one trie node response in and clears its dispatch
// slot, whether or not it was the final outstanding node.
func (b *Builder) HandleTrieNode(now time.Time, node types.Hash, children []types.Hash, resident map[types.Hash]struct{}) error {
	if b.State.Tag != NeedGlobalState {
		return ErrWrongTag
	}
	delete(b.trieOutstanding, node)
	b.State.ResolveTrieNode(node, children, resident)
	b.lastProgress = now
	return nil
}

// HandleFinalitySignature folds one signature's weight in.
func (b *Builder) HandleFinalitySignature(now time.Time, weight types.WeightFraction) error {
	if b.State.Tag != NeedFinalitySignatures {
		return ErrWrongTag
	}
	b.State.ResolveFinalitySignature(weight)
	b.lastProgress = now
	if b.State.Tag != Complete {
		// still waiting on more signatures; non-trie latch does not apply
		// here since finality fetches are dispatched in parallel like trie
		// fetches, but we still release the sequential latch if it was
		// used to gate the initial batch dispatch.
		b.latch.Release()
	}
	return nil
}

// HandleTimeout resets the latch, per spec.md §4.3/§4.4: "if a timeout
// fires first, the latch is reset."
func (b *Builder) HandleTimeout() {
	b.latch.Reset()
}

// MarkDishonest records that peer delivered a verifiably inconsistent
// artifact; its pending contribution for the current tag is discarded and
// the latch is reset so a retry can be dispatched to another peer.
func (b *Builder) MarkDishonest(peer types.NodeID) {
	b.dishonestPeers[peer] = struct{}{}
	for node, p := range b.trieOutstanding {
		if p == peer {
			delete(b.trieOutstanding, node)
		}
	}
	b.latch.Reset()
}

// DishonestPeers returns the peers this builder has flagged, for the
// synchronizer's disconnect-dishonest sweep.
func (b *Builder) DishonestPeers() []types.NodeID {
	out := make([]types.NodeID, 0, len(b.dishonestPeers))
	for p := range b.dishonestPeers {
		out = append(out, p)
	}
	return out
}

// Fail transitions the builder to Failed (exhausted peer set, orphaned
// target, or reactor cancellation — spec.md §4.4).
func (b *Builder) Fail() {
	b.State.Fail()
}

// Done reports whether the builder has reached a terminal tag.
func (b *Builder) Done() bool {
	return b.State.Tag == Complete || b.State.Tag == Failed
}

// LastProgress reports the last time this builder made forward progress.
func (b *Builder) LastProgress() time.Time {
	return b.lastProgress
}

// Header returns the block header acquired at NeedHeader, valid from
// NeedApprovalsHashes onward.
func (b *Builder) Header() types.BlockHeader {
	return b.State.Header
}

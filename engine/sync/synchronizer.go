// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sync implements the block synchronizer: it owns zero, one
// (forward) or two (forward + historical) block builders, selects the next
// piece of work, and dispatches fetch requests against the peer book. It is
// grounded on the teacher's engine/chain/syncer (state-sync lifecycle) and
// networking/timeout.Manager (request/response/timeout bookkeeping)
// packages, generalized to the two-lane forward/historical discipline
// spec.md §4.4 describes.
package sync

import (
	"time"

	"github.com/chainkit/reactor/engine/accumulator"
	"github.com/chainkit/reactor/engine/builder"
	"github.com/chainkit/reactor/engine/peerbook"
	"github.com/chainkit/reactor/types"
)

// Fetcher dispatches a single-part fetch request to peer and invokes
// onResult with the outcome once it arrives or times out. It is the
// collaborator seam to the transport (spec.md §6); the synchronizer never
// touches the network directly.
type Fetcher interface {
	FetchHeader(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(types.BlockHeader, error))
	FetchApprovalsHashes(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(error))
	FetchBody(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(error))
	FetchExecutionResults(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(stateRoot types.Hash, err error))
	FetchTrieNode(peer types.NodeID, node types.Hash, timeout time.Duration, onResult func(children []types.Hash, err error))
	FetchFinalitySignatures(peers []types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(signer types.PublicKey, sig types.Signature, err error))
}

// Storage is the minimal collaborator seam needed to complete a builder
// and to decide historical-backfill direction (spec.md §6).
type Storage interface {
	PutBlock(header types.BlockHeader) error
	AvailableBlockRange() types.AvailableBlockRange
}

// Weights and Verify reuse the accumulator's own era-stake and
// signature-verification collaborator shapes: a finality signature fetched
// directly by a builder (as opposed to one observed via gossip before the
// builder existed) is weighed and verified the same way.
type Weights = accumulator.EraWeights
type Verify = accumulator.VerifySignature

// Config holds the tunables named in spec.md §4.3/§4.4.
type Config struct {
	Builder                          builder.Config
	NeedNextInterval                 time.Duration
	PeerRefreshInterval              time.Duration
	DisconnectDishonestPeersInterval time.Duration
	LatchResetInterval               time.Duration
}

// Synchronizer owns at most one forward and one historical builder.
type Synchronizer struct {
	cfg      Config
	fetcher  Fetcher
	storage  Storage
	peers    *peerbook.PeerBook
	weights  Weights
	verify   Verify
	residentTrieNodes map[types.Hash]struct{}

	forward    *builder.Builder
	historical *builder.Builder
	// registeredHeights records the height each live builder was
	// registered with, since AcquisitionState only learns a block's real
	// height once its header is fetched.
	registeredHeights map[*builder.Builder]types.Height

	lastProgress time.Time
	onComplete   func(direction types.Direction, blockHash types.Hash)
	onFailed     func(direction types.Direction, blockHash types.Hash)
}

// New creates a Synchronizer. weights may be nil, in which case finality
// signatures fetched directly by a builder are never folded in. verify may
// be nil, in which case such signatures are folded in without verification.
func New(cfg Config, fetcher Fetcher, storage Storage, peers *peerbook.PeerBook, weights Weights, verify Verify) *Synchronizer {
	return &Synchronizer{
		cfg:               cfg,
		fetcher:           fetcher,
		storage:           storage,
		peers:             peers,
		weights:           weights,
		verify:            verify,
		residentTrieNodes: make(map[types.Hash]struct{}),
		registeredHeights: make(map[*builder.Builder]types.Height),
		lastProgress:      time.Now(),
	}
}

// OnComplete registers the callback fired when a builder finishes.
func (s *Synchronizer) OnComplete(f func(direction types.Direction, blockHash types.Hash)) { s.onComplete = f }

// OnFailed registers the callback fired when a builder gives up.
func (s *Synchronizer) OnFailed(f func(direction types.Direction, blockHash types.Hash)) { s.onFailed = f }

// RegisterBlock spawns a builder for direction if none exists (a builder
// that has reached Complete or Failed counts as none), or replaces the
// existing one only if the candidate strictly dominates it: higher height
// for forward, lower height for historical (spec.md §4.4).
func (s *Synchronizer) RegisterBlock(now time.Time, blockHash types.Hash, height types.Height, direction types.Direction, level types.FinalityLevel) {
	slot := s.slotFor(direction)
	cur := *slot
	if cur != nil && !cur.Done() && !s.dominates(cur, height, direction) {
		return
	}
	*slot = builder.New(direction, blockHash, level, s.cfg.Builder, now)
	s.registeredHeights[*slot] = height
}

func (s *Synchronizer) slotFor(direction types.Direction) **builder.Builder {
	if direction == types.DirectionForward {
		return &s.forward
	}
	return &s.historical
}

func (s *Synchronizer) dominates(cur *builder.Builder, height types.Height, direction types.Direction) bool {
	curHeight, ok := s.heightOf(cur)
	if !ok {
		return true
	}
	if direction == types.DirectionForward {
		return height > curHeight
	}
	return height < curHeight
}

func (s *Synchronizer) heightOf(b *builder.Builder) (types.Height, bool) {
	h, ok := s.registeredHeights[b]
	return h, ok
}

// NeedNextTick polls every live builder and dispatches its next fetch if
// unlatched, per the need_next_interval tick in spec.md §4.4.
func (s *Synchronizer) NeedNextTick(now time.Time) {
	for _, dir := range []types.Direction{types.DirectionForward, types.DirectionHistorical} {
		b := *s.slotFor(dir)
		if b == nil || b.Done() {
			continue
		}
		s.dispatchNext(now, b)
	}
}

func (s *Synchronizer) dispatchNext(now time.Time, b *builder.Builder) {
	need, ok := b.PollNeedNext(now)
	if !ok {
		return
	}
	if need.Tag == builder.NeedGlobalState {
		peers := s.peers.Query(false, 0)
		for _, d := range b.DispatchTrieFetches(peers) {
			node := d.Node
			s.fetcher.FetchTrieNode(d.Peer, node, s.cfg.Builder.GetFromPeerTimeout, func(children []types.Hash, err error) {
				s.handleTrieResult(b, d.Peer, node, children, err)
			})
		}
		return
	}
	if need.Tag == builder.NeedFinalitySignatures {
		peers := s.peers.Query(false, 0)
		s.fetcher.FetchFinalitySignatures(peers, need.BlockHash, s.cfg.Builder.GetFromPeerTimeout, func(signer types.PublicKey, sig types.Signature, err error) {
			s.handleFinalitySignature(b, signer, sig, err)
		})
		return
	}

	peers := s.peers.Query(false, 0)
	if len(peers) == 0 {
		b.Fail()
		s.notifyFailed(b)
		return
	}
	peer := peers[0]
	if _, err := b.Dispatch(now, peer); err != nil {
		return
	}
	s.dispatchSingle(b, peer, need)
}

func (s *Synchronizer) dispatchSingle(b *builder.Builder, peer types.NodeID, need builder.NeedNext) {
	timeout := s.cfg.Builder.GetFromPeerTimeout
	switch need.Tag {
	case builder.NeedHeader:
		s.fetcher.FetchHeader(peer, need.BlockHash, timeout, func(header types.BlockHeader, err error) {
			s.handleSimpleResult(b, peer, err, func(now time.Time) error { return b.HandleHeader(now, header) })
		})
	case builder.NeedApprovalsHashes:
		s.fetcher.FetchApprovalsHashes(peer, need.BlockHash, timeout, func(err error) {
			s.handleSimpleResult(b, peer, err, func(now time.Time) error { return b.HandleApprovalsHashes(now) })
		})
	case builder.NeedBody:
		s.fetcher.FetchBody(peer, need.BlockHash, timeout, func(err error) {
			s.handleSimpleResult(b, peer, err, func(now time.Time) error { return b.HandleBody(now) })
		})
	case builder.NeedExecutionResults:
		s.fetcher.FetchExecutionResults(peer, need.BlockHash, timeout, func(stateRoot types.Hash, err error) {
			s.handleSimpleResult(b, peer, err, func(now time.Time) error {
				return b.HandleExecutionResults(now, stateRoot, s.residentTrieNodes)
			})
		})
	}
}

func (s *Synchronizer) handleSimpleResult(b *builder.Builder, peer types.NodeID, err error, apply func(now time.Time) error) {
	now := time.Now()
	if err != nil {
		// Transient FetchFailed: leave the latch for the timeout tick to
		// reset, unless the reason was already a timeout (handled by
		// LatchResetTick). Callers that detect a bad-artifact/signature
		// failure should call MarkDishonest via the bus instead.
		return
	}
	if applyErr := apply(now); applyErr != nil {
		return
	}
	s.lastProgress = now
	if b.Done() {
		s.finish(b)
	}
}

func (s *Synchronizer) handleTrieResult(b *builder.Builder, peer types.NodeID, node types.Hash, children []types.Hash, err error) {
	if err != nil {
		return
	}
	now := time.Now()
	if applyErr := b.HandleTrieNode(now, node, children, s.residentTrieNodes); applyErr != nil {
		return
	}
	s.residentTrieNodes[node] = struct{}{}
	s.lastProgress = now
	if b.Done() {
		s.finish(b)
	}
}

// handleFinalitySignature verifies and weighs one finality signature
// fetched directly for b, folding its weight in on success. A failed
// verification or an unknown/zero-weight signer contributes nothing and is
// silently dropped rather than failing the builder, matching the
// accumulator's own tolerance for late or foreign signatures.
func (s *Synchronizer) handleFinalitySignature(b *builder.Builder, signer types.PublicKey, sig types.Signature, err error) {
	if err != nil || s.weights == nil {
		return
	}
	header := b.Header()
	if s.verify != nil && !s.verify(header.BlockHash, signer, sig) {
		return
	}
	total, werr := s.weights.TotalWeight(header.EraID)
	if werr != nil || total == 0 {
		return
	}
	stake, werr := s.weights.Weight(header.EraID, signer)
	if werr != nil || stake == 0 {
		return
	}

	now := time.Now()
	fraction := types.WeightFraction(float64(stake) / float64(total))
	if err := b.HandleFinalitySignature(now, fraction); err != nil {
		return
	}
	s.lastProgress = now
	if b.Done() {
		s.finish(b)
	}
}

func (s *Synchronizer) finish(b *builder.Builder) {
	if b.State.Tag != builder.Complete {
		s.notifyFailed(b)
		return
	}
	if s.storage != nil {
		if err := s.storage.PutBlock(b.Header()); err != nil {
			s.notifyFailed(b)
			return
		}
	}
	if s.onComplete != nil {
		s.onComplete(b.Direction, b.State.BlockHash)
	}
	s.retire(b)
}

func (s *Synchronizer) notifyFailed(b *builder.Builder) {
	if s.onFailed != nil {
		s.onFailed(b.Direction, b.State.BlockHash)
	}
	s.retire(b)
}

func (s *Synchronizer) retire(b *builder.Builder) {
	if s.forward == b {
		s.forward = nil
	}
	if s.historical == b {
		s.historical = nil
	}
	delete(s.registeredHeights, b)
}

// PeerRefreshTick is a no-op seam: peer sets are read fresh from the peer
// book on every dispatch (s.peers.Query), so there is no cached set to
// refresh. The tick exists to match spec.md §4.4's tick inventory and to
// give callers (the reactor's control loop) a uniform four-tick interface.
func (s *Synchronizer) PeerRefreshTick(now time.Time) {}

// DisconnectDishonestTick sweeps both builders for peers flagged dishonest
// and blocklists+disconnects them via disconnect.
func (s *Synchronizer) DisconnectDishonestTick(disconnect func(types.NodeID)) {
	for _, b := range []*builder.Builder{s.forward, s.historical} {
		if b == nil {
			continue
		}
		for _, peer := range b.DishonestPeers() {
			s.peers.Blocklist(peer, true)
			disconnect(peer)
		}
	}
}

// LatchResetTick clears stuck latches in all live builders.
func (s *Synchronizer) LatchResetTick(now time.Time) {
	for _, b := range []*builder.Builder{s.forward, s.historical} {
		if b == nil {
			continue
		}
		if now.Sub(b.LastProgress()) >= s.cfg.LatchResetInterval {
			b.HandleTimeout()
		}
	}
}

// LastProgress reports the last time any builder made forward progress.
func (s *Synchronizer) LastProgress() time.Time { return s.lastProgress }

// Forward returns the current forward builder, if any.
func (s *Synchronizer) Forward() *builder.Builder { return s.forward }

// Historical returns the current historical builder, if any.
func (s *Synchronizer) Historical() *builder.Builder { return s.historical }

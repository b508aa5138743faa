// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/reactor/engine/builder"
	"github.com/chainkit/reactor/engine/peerbook"
	"github.com/chainkit/reactor/types"
)

type fakeFetcher struct {
	headerResult func(types.NodeID, types.Hash) (types.BlockHeader, error)
}

func (f *fakeFetcher) FetchHeader(peer types.NodeID, blockHash types.Hash, _ time.Duration, onResult func(types.BlockHeader, error)) {
	if f.headerResult != nil {
		h, err := f.headerResult(peer, blockHash)
		onResult(h, err)
		return
	}
	onResult(types.BlockHeader{BlockHash: blockHash}, nil)
}
func (f *fakeFetcher) FetchApprovalsHashes(types.NodeID, types.Hash, time.Duration, func(error))     {}
func (f *fakeFetcher) FetchBody(types.NodeID, types.Hash, time.Duration, func(error))                {}
func (f *fakeFetcher) FetchExecutionResults(types.NodeID, types.Hash, time.Duration, func(types.Hash, error)) {
}
func (f *fakeFetcher) FetchTrieNode(types.NodeID, types.Hash, time.Duration, func([]types.Hash, error)) {}
func (f *fakeFetcher) FetchFinalitySignatures(
	[]types.NodeID, types.Hash, time.Duration, func(types.PublicKey, types.Signature, error),
) {
}

type fakeStorage struct {
	put []types.BlockHeader
}

func (s *fakeStorage) PutBlock(header types.BlockHeader) error {
	s.put = append(s.put, header)
	return nil
}
func (*fakeStorage) AvailableBlockRange() types.AvailableBlockRange { return types.AvailableBlockRange{} }

func newTestSynchronizer(fetcher Fetcher) (*Synchronizer, *peerbook.PeerBook) {
	s, pb, _ := newTestSynchronizerWithStorage(fetcher)
	return s, pb
}

func newTestSynchronizerWithStorage(fetcher Fetcher) (*Synchronizer, *peerbook.PeerBook, *fakeStorage) {
	pb := peerbook.New(peerbook.Config{
		BlocklistRetainMinDuration: time.Minute,
		BlocklistRetainMaxDuration: 2 * time.Minute,
	})
	storage := &fakeStorage{}
	s := New(Config{
		Builder: builder.Config{
			LatchResetInterval:     time.Second,
			GetFromPeerTimeout:     time.Second,
			MaxParallelTrieFetches: 4,
		},
		LatchResetInterval: time.Second,
	}, fetcher, storage, pb, fakeWeights{}, nil)
	return s, pb, storage
}

type fakeWeights struct{}

func (fakeWeights) TotalWeight(types.EraID) (uint64, error)             { return 3, nil }
func (fakeWeights) Weight(types.EraID, types.PublicKey) (uint64, error) { return 3, nil }

func TestRegisterBlockForwardDominance(t *testing.T) {
	require := require.New(t)
	s, _ := newTestSynchronizer(&fakeFetcher{})
	now := time.Now()

	low := ids.GenerateTestID()
	s.RegisterBlock(now, low, 10, types.DirectionForward, types.FinalityStrict)
	first := s.Forward()
	require.NotNil(first)

	// A lower-height candidate does not replace the existing forward
	// builder.
	lower := ids.GenerateTestID()
	s.RegisterBlock(now, lower, 5, types.DirectionForward, types.FinalityStrict)
	require.Same(first, s.Forward())

	higher := ids.GenerateTestID()
	s.RegisterBlock(now, higher, 20, types.DirectionForward, types.FinalityStrict)
	require.NotSame(first, s.Forward())
}

func TestRegisterBlockHistoricalDominance(t *testing.T) {
	require := require.New(t)
	s, _ := newTestSynchronizer(&fakeFetcher{})
	now := time.Now()

	start := ids.GenerateTestID()
	s.RegisterBlock(now, start, 100, types.DirectionHistorical, types.FinalityStrict)
	first := s.Historical()

	higher := ids.GenerateTestID()
	s.RegisterBlock(now, higher, 150, types.DirectionHistorical, types.FinalityStrict)
	require.Same(first, s.Historical())

	lower := ids.GenerateTestID()
	s.RegisterBlock(now, lower, 50, types.DirectionHistorical, types.FinalityStrict)
	require.NotSame(first, s.Historical())
}

func TestNeedNextTickDispatchesToAvailablePeer(t *testing.T) {
	require := require.New(t)
	s, pb := newTestSynchronizer(&fakeFetcher{})
	now := time.Now()

	peer := ids.GenerateTestNodeID()
	pb.Add(peer, "", peerbook.RoleNonValidator, types.ProtocolVersion{})

	block := ids.GenerateTestID()
	s.RegisterBlock(now, block, 1, types.DirectionForward, types.FinalityStrict)
	s.NeedNextTick(now)

	// The fake fetcher answers synchronously, so the header step should
	// already have advanced the builder.
	require.Equal(builder.NeedApprovalsHashes, s.Forward().State.Tag)
}

// autoFetcher answers every fetch step synchronously and successfully,
// exercising the full NeedHeader -> ... -> NeedFinalitySignatures ->
// Complete path through the synchronizer in one test.
type autoFetcher struct {
	signers []types.PublicKey
}

func (f *autoFetcher) FetchHeader(_ types.NodeID, blockHash types.Hash, _ time.Duration, onResult func(types.BlockHeader, error)) {
	onResult(types.BlockHeader{BlockHash: blockHash}, nil)
}
func (f *autoFetcher) FetchApprovalsHashes(_ types.NodeID, _ types.Hash, _ time.Duration, onResult func(error)) {
	onResult(nil)
}
func (f *autoFetcher) FetchBody(_ types.NodeID, _ types.Hash, _ time.Duration, onResult func(error)) {
	onResult(nil)
}
func (f *autoFetcher) FetchExecutionResults(_ types.NodeID, _ types.Hash, _ time.Duration, onResult func(types.Hash, error)) {
	onResult(types.Hash{}, nil)
}
func (f *autoFetcher) FetchTrieNode(_ types.NodeID, _ types.Hash, _ time.Duration, onResult func([]types.Hash, error)) {
	onResult(nil, nil)
}
func (f *autoFetcher) FetchFinalitySignatures(
	_ []types.NodeID, _ types.Hash, _ time.Duration, onResult func(types.PublicKey, types.Signature, error),
) {
	for _, signer := range f.signers {
		onResult(signer, nil, nil)
	}
}

func TestFinalitySignatureCompletionPutsBlockAndNotifiesComplete(t *testing.T) {
	require := require.New(t)
	signer := ids.GenerateTestID()
	s, pb, storage := newTestSynchronizerWithStorage(&autoFetcher{signers: []types.PublicKey{signer}})

	peer := ids.GenerateTestNodeID()
	pb.Add(peer, "", peerbook.RoleNonValidator, types.ProtocolVersion{})

	var completed types.Hash
	s.OnComplete(func(_ types.Direction, blockHash types.Hash) { completed = blockHash })

	block := ids.GenerateTestID()
	now := time.Now()
	s.RegisterBlock(now, block, 1, types.DirectionForward, types.FinalityStrict)

	// NeedHeader -> NeedApprovalsHashes -> NeedBody -> NeedFinalitySignatures
	// -> Complete, one transition per tick.
	for i := 0; i < 4; i++ {
		s.NeedNextTick(now)
	}

	require.Equal(block, completed)
	require.Len(storage.put, 1)
	require.Equal(block, storage.put[0].BlockHash)
	require.Nil(s.Forward())
}

func TestNeedNextTickFailsWithNoPeers(t *testing.T) {
	require := require.New(t)
	s, _ := newTestSynchronizer(&fakeFetcher{})
	now := time.Now()

	block := ids.GenerateTestID()
	s.RegisterBlock(now, block, 1, types.DirectionForward, types.FinalityStrict)
	s.NeedNextTick(now)

	require.Nil(s.Forward())
}

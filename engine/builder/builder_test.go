// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/reactor/types"
)

func testCfg() Config {
	return Config{
		LatchResetInterval:     time.Second,
		GetFromPeerTimeout:     500 * time.Millisecond,
		MaxParallelTrieFetches: 4,
	}
}

func TestAcquisitionOrderForward(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	b := New(types.DirectionForward, ids.GenerateTestID(), types.FinalityStrict, testCfg(), now)

	require.Equal(NeedHeader, b.State.Tag)
	require.NoError(b.HandleHeader(now, types.BlockHeader{}))
	require.Equal(NeedApprovalsHashes, b.State.Tag)
	require.NoError(b.HandleApprovalsHashes(now))
	require.Equal(NeedBody, b.State.Tag)
	require.NoError(b.HandleBody(now))
	// Forward builders skip execution results and global state entirely.
	require.Equal(NeedFinalitySignatures, b.State.Tag)
}

func TestAcquisitionOrderHistorical(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	b := New(types.DirectionHistorical, ids.GenerateTestID(), types.FinalityStrict, testCfg(), now)

	require.NoError(b.HandleHeader(now, types.BlockHeader{}))
	require.NoError(b.HandleApprovalsHashes(now))
	require.NoError(b.HandleBody(now))
	require.Equal(NeedExecutionResults, b.State.Tag)

	root := ids.GenerateTestID()
	require.NoError(b.HandleExecutionResults(now, root, nil))
	require.Equal(NeedGlobalState, b.State.Tag)

	require.NoError(b.HandleTrieNode(now, root, nil, nil))
	require.Equal(NeedFinalitySignatures, b.State.Tag)
}

func TestLatchPreventsDuplicateDispatch(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	b := New(types.DirectionForward, ids.GenerateTestID(), types.FinalityStrict, testCfg(), now)

	peer := ids.GenerateTestNodeID()
	_, err := b.Dispatch(now, peer)
	require.NoError(err)

	// Invariant 2: a second dispatch attempt while latched returns nothing.
	_, ok := b.PollNeedNext(now.Add(10 * time.Millisecond))
	require.False(ok)
	_, err = b.Dispatch(now.Add(10*time.Millisecond), peer)
	require.ErrorIs(err, ErrLatched)
}

func TestTimeoutResetsLatch(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	b := New(types.DirectionForward, ids.GenerateTestID(), types.FinalityStrict, testCfg(), now)

	peer := ids.GenerateTestNodeID()
	_, err := b.Dispatch(now, peer)
	require.NoError(err)

	b.HandleTimeout()
	_, ok := b.PollNeedNext(now)
	require.True(ok)
}

func TestFinalitySignaturesCompleteAtStrictThreshold(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	b := New(types.DirectionForward, ids.GenerateTestID(), types.FinalityStrict, testCfg(), now)
	require.NoError(b.HandleHeader(now, types.BlockHeader{}))
	require.NoError(b.HandleApprovalsHashes(now))
	require.NoError(b.HandleBody(now))

	require.NoError(b.HandleFinalitySignature(now, 0.5))
	require.False(b.Done())
	require.NoError(b.HandleFinalitySignature(now, 0.2))
	require.True(b.Done())
	require.Equal(Complete, b.State.Tag)
}

func TestMarkDishonestResetsLatchAndClearsTrieSlot(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	b := New(types.DirectionHistorical, ids.GenerateTestID(), types.FinalityStrict, testCfg(), now)
	require.NoError(b.HandleHeader(now, types.BlockHeader{}))
	require.NoError(b.HandleApprovalsHashes(now))
	require.NoError(b.HandleBody(now))
	root := ids.GenerateTestID()
	require.NoError(b.HandleExecutionResults(now, root, nil))

	peer := ids.GenerateTestNodeID()
	dispatches := b.DispatchTrieFetches([]types.NodeID{peer})
	require.Len(dispatches, 1)

	b.MarkDishonest(peer)
	require.Contains(b.DishonestPeers(), peer)
	require.Empty(b.trieOutstanding)
}

func TestDispatchTrieFetchesRespectsParallelCap(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	b := New(types.DirectionHistorical, ids.GenerateTestID(), types.FinalityStrict, Config{MaxParallelTrieFetches: 2}, now)
	require.NoError(b.HandleHeader(now, types.BlockHeader{}))
	require.NoError(b.HandleApprovalsHashes(now))
	require.NoError(b.HandleBody(now))

	root := ids.GenerateTestID()
	require.NoError(b.HandleExecutionResults(now, root, nil))
	// Seed several more outstanding trie nodes directly.
	for i := 0; i < 5; i++ {
		b.State.TrieFetchSet[ids.GenerateTestID()] = struct{}{}
	}

	peers := []types.NodeID{ids.GenerateTestNodeID(), ids.GenerateTestNodeID()}
	dispatches := b.DispatchTrieFetches(peers)
	require.LessOrEqual(len(dispatches), 2)
}

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainkit/reactor/engine/accumulator"
	"github.com/chainkit/reactor/engine/builder"
	"github.com/chainkit/reactor/engine/peerbook"
	"github.com/chainkit/reactor/engine/sync"
	"github.com/chainkit/reactor/types"
)

type noopFetcher struct{}

func (noopFetcher) FetchHeader(types.NodeID, types.Hash, time.Duration, func(types.BlockHeader, error)) {}
func (noopFetcher) FetchApprovalsHashes(types.NodeID, types.Hash, time.Duration, func(error))           {}
func (noopFetcher) FetchBody(types.NodeID, types.Hash, time.Duration, func(error))                      {}
func (noopFetcher) FetchExecutionResults(types.NodeID, types.Hash, time.Duration, func(types.Hash, error)) {
}
func (noopFetcher) FetchTrieNode(types.NodeID, types.Hash, time.Duration, func([]types.Hash, error)) {}
func (noopFetcher) FetchFinalitySignatures(
	[]types.NodeID, types.Hash, time.Duration, func(types.PublicKey, types.Signature, error),
) {
}

type noopStorage struct{}

func (noopStorage) PutBlock(types.BlockHeader) error                    { return nil }
func (noopStorage) AvailableBlockRange() types.AvailableBlockRange { return types.AvailableBlockRange{} }

type zeroWeights struct{}

func (zeroWeights) TotalWeight(types.EraID) (uint64, error)              { return 1, nil }
func (zeroWeights) Weight(types.EraID, types.PublicKey) (uint64, error) { return 0, nil }

func newTestReactor(hooks Hooks, cfg Config) *Reactor {
	now := time.Now()
	peers := peerbook.New(peerbook.Config{BlocklistRetainMinDuration: time.Minute, BlocklistRetainMaxDuration: 2 * time.Minute})
	synchronizer := sync.New(sync.Config{
		Builder:            builder.Config{LatchResetInterval: time.Second, GetFromPeerTimeout: time.Second},
		LatchResetInterval: time.Second,
	}, noopFetcher{}, noopStorage{}, peers, zeroWeights{}, nil)
	acc := accumulator.New(accumulator.Config{}, zeroWeights{}, nil)
	return New(cfg, hooks, synchronizer, acc, peers, now)
}

func baseHooks() Hooks {
	return Hooks{
		ConnectedPeerCount:       func() int { return 3 },
		LocalTip:                 func() types.Height { return 100 },
		UpgradeActivationCrossed: func() bool { return false },
		PerformUpgrade:           func(time.Time) error { return nil },
		IsValidator:              func() bool { return false },
		CurrentEraJoinable:       func() bool { return false },
		ShutdownHeuristicFired:   func() bool { return false },
		SyncLeap: func() (types.TipCandidate, bool) {
			return types.TipCandidate{Height: 100}, true
		},
	}
}

func TestInitializeRequiresMinPeers(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	hooks.ConnectedPeerCount = func() int { return 1 }
	r := newTestReactor(hooks, Config{MinPeersForInitialization: 3, SyncHandling: types.SyncHandlingTTL})

	r.ControlTick(time.Now())
	require.Equal(Initialize, r.State().Kind)
}

func TestColdStartProgressesToKeepUp(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	r := newTestReactor(hooks, Config{MinPeersForInitialization: 3, SyncHandling: types.SyncHandlingTTL})

	now := time.Now()
	r.ControlTick(now)
	require.Equal(CatchUp, r.State().Kind)

	r.ControlTick(now)
	require.Equal(KeepUp, r.State().Kind)
}

func TestNoSyncSkipsToKeepUp(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	r := newTestReactor(hooks, Config{MinPeersForInitialization: 3, SyncHandling: types.SyncHandlingNoSync})

	now := time.Now()
	r.ControlTick(now)
	require.Equal(CatchUp, r.State().Kind)
	r.ControlTick(now)
	require.Equal(KeepUp, r.State().Kind)
}

func TestIsolatedNeverLeavesInitialize(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	r := newTestReactor(hooks, Config{MinPeersForInitialization: 3, SyncHandling: types.SyncHandlingIsolated})

	for i := 0; i < 5; i++ {
		r.ControlTick(time.Now())
	}
	require.Equal(Initialize, r.State().Kind)
}

func TestValidateOnlyReachableFromKeepUpWithEligibleSyncHandling(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	hooks.IsValidator = func() bool { return true }
	hooks.CurrentEraJoinable = func() bool { return true }
	r := newTestReactor(hooks, Config{MinPeersForInitialization: 3, SyncHandling: types.SyncHandlingTTL})

	now := time.Now()
	r.ControlTick(now) // -> CatchUp
	r.ControlTick(now) // -> KeepUp (local tip already meets the sync-leap target)
	r.ControlTick(now) // -> Validate, since validator + era joinable
	require.Equal(Validate, r.State().Kind)
}

func TestIsolatedCanNeverValidate(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	hooks.IsValidator = func() bool { return true }
	hooks.CurrentEraJoinable = func() bool { return true }
	r := newTestReactor(hooks, Config{MinPeersForInitialization: 3, SyncHandling: types.SyncHandlingIsolated})

	for i := 0; i < 5; i++ {
		r.ControlTick(time.Now())
	}
	require.NotEqual(Validate, r.State().Kind)
}

func TestValidatorShutdownSuppression(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	hooks.IsValidator = func() bool { return true }
	hooks.CurrentEraJoinable = func() bool { return true }
	fired := false
	hooks.ShutdownHeuristicFired = func() bool { return fired }
	r := newTestReactor(hooks, Config{
		MinPeersForInitialization: 3,
		SyncHandling:              types.SyncHandlingTTL,
		PreventValidatorShutdown:  true,
		ShutdownForUpgradeTimeout: time.Hour,
	})

	now := time.Now()
	r.ControlTick(now) // CatchUp
	r.ControlTick(now) // KeepUp
	r.ControlTick(now) // Validate
	require.Equal(Validate, r.State().Kind)

	fired = true
	r.ControlTick(now) // shutdown heuristic fires, but suppressed
	require.Equal(Validate, r.State().Kind)
}

func TestUpgradeMidCatchup(t *testing.T) {
	require := require.New(t)
	hooks := baseHooks()
	crossed := true
	hooks.UpgradeActivationCrossed = func() bool { return crossed }
	upgraded := false
	hooks.PerformUpgrade = func(time.Time) error { upgraded = true; return nil }
	r := newTestReactor(hooks, Config{MinPeersForInitialization: 3, SyncHandling: types.SyncHandlingTTL, UpgradeTimeout: time.Hour})

	now := time.Now()
	r.ControlTick(now) // Initialize -> CatchUp
	r.ControlTick(now) // CatchUp -> Upgrading (activation crossed)
	require.Equal(Upgrading, r.State().Kind)

	r.ControlTick(now)
	require.True(upgraded)
	require.Equal(KeepUp, r.State().Kind)
}

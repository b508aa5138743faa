// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"

	"github.com/chainkit/reactor/collaborators"
	"github.com/chainkit/reactor/config"
	"github.com/chainkit/reactor/engine/accumulator"
	"github.com/chainkit/reactor/types"
)

// openStorage opens the node's block store. A persistent on-disk driver is
// selected by deployment configuration outside the scope of this reactor
// core; memdb stands in as the default here the way the teacher's own
// in-memory database.Database implementations stand in for tests and
// single-process examples.
func openStorage(cfg config.Config) (database.Database, error) {
	return memdb.New(), nil
}

// noopFetcher satisfies sync.Fetcher without sending anything: every method
// returns at once and never invokes onResult. It is the wiring placeholder
// for a concrete Transport-backed fetcher; a live deployment replaces this
// with an adapter over collaborators.Transport.
type noopFetcher struct{}

func (noopFetcher) FetchHeader(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(types.BlockHeader, error)) {
}
func (noopFetcher) FetchApprovalsHashes(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(error)) {
}
func (noopFetcher) FetchBody(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(error)) {
}
func (noopFetcher) FetchExecutionResults(peer types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(types.Hash, error)) {
}
func (noopFetcher) FetchTrieNode(peer types.NodeID, node types.Hash, timeout time.Duration, onResult func([]types.Hash, error)) {
}
func (noopFetcher) FetchFinalitySignatures(peers []types.NodeID, blockHash types.Hash, timeout time.Duration, onResult func(types.PublicKey, types.Signature, error)) {
}

// syncStorageAdapter bridges collaborators.Storage's context-aware, body-
// carrying shape to sync.Storage's narrower one: the synchronizer only ever
// completes a forward or historical fetch with a header in hand, so each
// completed block is stored with a nil body; nothing in this command writes
// block bodies.
type syncStorageAdapter struct {
	inner collaborators.Storage
}

func (a syncStorageAdapter) PutBlock(header types.BlockHeader) error {
	return a.inner.PutBlock(context.Background(), header, nil)
}

func (a syncStorageAdapter) AvailableBlockRange() types.AvailableBlockRange {
	r, _ := a.inner.AvailableBlockRange(context.Background())
	return r
}

// eraWeights is a placeholder accumulator.EraWeights: decoding a switch
// block's validator set out of its stored body is out of this reactor's
// scope, so every lookup reports the era as not yet available until a real
// chain-state reader is wired in.
type eraWeights struct{}

func (eraWeights) TotalWeight(era types.EraID) (uint64, error) { return 0, nil }
func (eraWeights) Weight(era types.EraID, signer types.PublicKey) (uint64, error) {
	return 0, nil
}

var _ accumulator.EraWeights = eraWeights{}

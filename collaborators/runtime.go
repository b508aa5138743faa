// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package collaborators

import (
	"context"

	"github.com/chainkit/reactor/types"
)

// ContractRuntime is the wasm execution engine collaborator named in
// spec.md §6. Execution itself is explicitly out of scope (spec.md §1);
// this interface exists so the reactor's Upgrading state and the
// synchronizer's forward builder (which stops short of execution, per
// spec.md §4.3) have a concrete seam to call through.
type ContractRuntime interface {
	// Execute runs block against preStateRoot and returns the resulting
	// state root. Bounded by MaxGlobalStateDepth/MaxGlobalStateSize.
	Execute(ctx context.Context, block types.BlockHeader, preStateRoot types.Hash) (postStateRoot types.Hash, err error)
	// CommitUpgrade applies a protocol upgrade's chainspec-derived changes
	// at the given activation era, producing the immediate switch block's
	// state root (spec.md §4.1 "Upgrading").
	CommitUpgrade(ctx context.Context, activationEra types.EraID) (postStateRoot types.Hash, err error)
}

// GlobalStateLimits bounds the size and depth of global-state tries the
// runtime and the historical builder's trie fetch will traverse.
type GlobalStateLimits struct {
	MaxGlobalStateDepth int
	MaxGlobalStateSize  int64
}

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package peerbook

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/reactor/types"
)

func testConfig() Config {
	return Config{
		BlocklistRetainMinDuration: time.Minute,
		BlocklistRetainMaxDuration: 2 * time.Minute,
		TarpitVersionThreshold:     types.ProtocolVersion{Major: 1},
		TarpitChance:               1, // deterministic for tests
		TarpitDuration:             5 * time.Second,
	}
}

func TestBlocklistNotUsableBeforeMinDuration(t *testing.T) {
	require := require.New(t)

	b := New(testConfig())
	node := ids.GenerateTestNodeID()
	b.Add(node, "1.2.3.4:1234", RoleNonValidator, types.ProtocolVersion{Major: 2})

	start := time.Now()
	b.now = func() time.Time { return start }
	b.Blocklist(node, false)

	// Invariant 4: not usable before t + BlocklistRetainMinDuration.
	b.now = func() time.Time { return start.Add(30 * time.Second) }
	require.NotContains(b.Query(false, 0), node)

	b.now = func() time.Time { return start.Add(3 * time.Minute) }
	require.Contains(b.Query(false, 0), node)
}

func TestBlocklistDishonestMarksStatus(t *testing.T) {
	require := require.New(t)

	b := New(testConfig())
	node := ids.GenerateTestNodeID()
	b.Add(node, "", RoleNonValidator, types.ProtocolVersion{})
	b.Blocklist(node, true)

	entry, ok := b.Entry(node)
	require.True(ok)
	require.Equal(StatusDishonest, entry.Status)
	require.True(b.Dishonest(node))
}

func TestQueryRestrictedByEra(t *testing.T) {
	require := require.New(t)

	b := New(testConfig())
	validator := ids.GenerateTestNodeID()
	nonValidator := ids.GenerateTestNodeID()
	b.Add(validator, "", RoleValidatorCandidate, types.ProtocolVersion{Major: 2})
	b.peers[validator].EraID = 7
	b.Add(nonValidator, "", RoleNonValidator, types.ProtocolVersion{Major: 2})

	got := b.Query(true, 7)
	require.Equal([]types.NodeID{validator}, got)
}

func TestShouldTarpitLegacyVersion(t *testing.T) {
	require := require.New(t)

	b := New(testConfig())
	hold, apply := b.ShouldTarpit(types.ProtocolVersion{Major: 1})
	require.True(apply)
	require.Equal(b.cfg.TarpitDuration, hold)

	_, apply = b.ShouldTarpit(types.ProtocolVersion{Major: 3})
	require.False(apply)
}

func TestAddIgnoresReconnectAfterDishonest(t *testing.T) {
	require := require.New(t)

	b := New(testConfig())
	node := ids.GenerateTestNodeID()
	b.Add(node, "", RoleNonValidator, types.ProtocolVersion{})
	b.Blocklist(node, true)

	b.Add(node, "new-endpoint", RoleNonValidator, types.ProtocolVersion{})
	entry, _ := b.Entry(node)
	require.Equal(StatusDishonest, entry.Status)
}

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package accumulator

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/reactor/types"
)

type fixedWeights struct {
	total   uint64
	weights map[types.PublicKey]uint64
}

func (f fixedWeights) TotalWeight(types.EraID) (uint64, error) { return f.total, nil }
func (f fixedWeights) Weight(_ types.EraID, signer types.PublicKey) (uint64, error) {
	return f.weights[signer], nil
}

func alwaysValid(Hash, types.PublicKey, types.Signature) bool { return true }

func TestRegisterFinalitySignatureCrossesWeakThreshold(t *testing.T) {
	require := require.New(t)

	block := ids.GenerateTestID()
	s1, s2, s3 := ids.GenerateTestID(), ids.GenerateTestID(), ids.GenerateTestID()
	weights := fixedWeights{total: 300, weights: map[types.PublicKey]uint64{s1: 100, s2: 100, s3: 100}}

	acc := New(Config{AttemptExecutionThreshold: 10}, weights, alwaysValid)
	h := types.Height(5)
	acc.RegisterAnnouncement(block, &h, nil)

	executable, err := acc.RegisterFinalitySignature(block, 1, s1, []byte("sig1"), 0)
	require.NoError(err)
	require.False(executable) // 1/3 exactly does not exceed the threshold

	executable, err = acc.RegisterFinalitySignature(block, 1, s2, []byte("sig2"), 0)
	require.NoError(err)
	require.True(executable)
}

func TestRegisterFinalitySignatureIdempotent(t *testing.T) {
	require := require.New(t)

	block := ids.GenerateTestID()
	signer := ids.GenerateTestID()
	weights := fixedWeights{total: 100, weights: map[types.PublicKey]uint64{signer: 40}}

	acc := New(Config{AttemptExecutionThreshold: 10}, weights, alwaysValid)
	_, err := acc.RegisterFinalitySignature(block, 1, signer, []byte("sig"), 0)
	require.NoError(err)
	before := acc.acceptors[block].Weight()

	_, err = acc.RegisterFinalitySignature(block, 1, signer, []byte("sig"), 0)
	require.NoError(err)
	require.Equal(before, acc.acceptors[block].Weight())
}

func TestRegisterFinalitySignatureDishonestPeer(t *testing.T) {
	require := require.New(t)

	block := ids.GenerateTestID()
	signer := ids.GenerateTestID()
	weights := fixedWeights{total: 100, weights: map[types.PublicKey]uint64{signer: 40}}
	reject := func(Hash, types.PublicKey, types.Signature) bool { return false }

	acc := New(Config{}, weights, reject)
	_, err := acc.RegisterFinalitySignature(block, 1, signer, []byte("bad"), 0)
	require.ErrorIs(err, ErrPeerDishonest)
	require.Zero(acc.acceptors[block].Weight())
}

func TestWeightNeverExceedsTotal(t *testing.T) {
	require := require.New(t)

	block := ids.GenerateTestID()
	signers := make(map[types.PublicKey]uint64)
	var ids_ []types.PublicKey
	for i := 0; i < 10; i++ {
		id := ids.GenerateTestID()
		signers[id] = 1000
		ids_ = append(ids_, id)
	}
	weights := fixedWeights{total: 100, weights: signers} // deliberately over-weighted

	acc := New(Config{}, weights, alwaysValid)
	for _, signer := range ids_ {
		_, err := acc.RegisterFinalitySignature(block, 1, signer, []byte("sig"), 0)
		require.NoError(err)
	}
	require.LessOrEqual(float64(acc.acceptors[block].Weight()), 1.0)
}

func TestPurgeDropsIdleAcceptors(t *testing.T) {
	require := require.New(t)

	weights := fixedWeights{total: 1}
	acc := New(Config{DeadAirInterval: time.Minute}, weights, alwaysValid)

	start := time.Now()
	acc.now = func() time.Time { return start }
	block := ids.GenerateTestID()
	h := types.Height(1)
	acc.RegisterAnnouncement(block, &h, nil)

	acc.now = func() time.Time { return start.Add(2 * time.Minute) }
	purged := acc.Purge(0, 0)
	require.Equal(1, purged)
	require.Zero(acc.Len())
}

func TestPurgeDropsBelowFinalizedTip(t *testing.T) {
	require := require.New(t)

	weights := fixedWeights{total: 1}
	acc := New(Config{DeadAirInterval: time.Hour}, weights, alwaysValid)

	block := ids.GenerateTestID()
	h := types.Height(3)
	acc.RegisterAnnouncement(block, &h, nil)

	purged := acc.Purge(10, 2) // cutoff = 8, height 3 < 8
	require.Equal(1, purged)
}

func TestBestCandidateTieBreakByHash(t *testing.T) {
	require := require.New(t)

	weights := fixedWeights{total: 1}
	acc := New(Config{}, weights, alwaysValid)

	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	h := types.Height(7)
	acc.RegisterAnnouncement(a, &h, nil)
	acc.RegisterAnnouncement(b, &h, nil)

	candidate, ok := acc.BestCandidate()
	require.True(ok)

	var want Hash
	if a.Compare(b) < 0 {
		want = a
	} else {
		want = b
	}
	require.Equal(want, candidate.BlockHash)
}

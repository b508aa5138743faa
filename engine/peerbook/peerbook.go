// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package peerbook tracks connected peers, their provenance and their
// standing (blocked, dishonest, tarpitted), and supplies filtered peer sets
// to the block synchronizer and accumulator. It is grounded on the teacher
// repository's networking/benchlist (failure-triggered blocklisting) and
// networking/tracker (per-peer usage) packages, merged into the single
// "peer book" the spec describes.
//
// The book is mutated only from the control bus's dispatch goroutine (see
// package bus); callers elsewhere must treat a *PeerBook as read-only.
package peerbook

import (
	"math/rand/v2"
	"time"

	"github.com/chainkit/reactor/types"
)

// Role distinguishes why a peer is connected.
type Role int

const (
	RoleNonValidator Role = iota
	RoleValidatorCandidate
)

// Status is a peer's current standing.
type Status int

const (
	StatusConnected Status = iota
	StatusPending
	StatusBlocked
	StatusDishonest
	StatusDisconnected
)

// Entry is the peer book's record for one peer.
type Entry struct {
	NodeID      types.NodeID
	Endpoint    string
	Role        Role
	Status      Status
	ProtocolVer types.ProtocolVersion
	BlockedUntil time.Time
	EraID       types.EraID // era this peer is known to validate, if RoleValidatorCandidate
}

func (e Entry) usable(now time.Time) bool {
	switch e.Status {
	case StatusConnected:
		return true
	case StatusBlocked:
		return now.After(e.BlockedUntil)
	default:
		return false
	}
}

// Config holds the tunables named in spec.md §3/§4.5/§5.
type Config struct {
	BlocklistRetainMinDuration time.Duration
	BlocklistRetainMaxDuration time.Duration
	TarpitVersionThreshold     types.ProtocolVersion
	TarpitChance               float64
	TarpitDuration             time.Duration
}

// PeerBook is the process-wide, event-loop-owned peer registry.
type PeerBook struct {
	cfg   Config
	rand  *rand.Rand
	peers map[types.NodeID]*Entry
	now   func() time.Time
}

// New creates an empty peer book.
func New(cfg Config) *PeerBook {
	return &PeerBook{
		cfg:   cfg,
		rand:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		peers: make(map[types.NodeID]*Entry),
		now:   time.Now,
	}
}

// Add registers a peer after a successful handshake.
func (b *PeerBook) Add(nodeID types.NodeID, endpoint string, role Role, protoVer types.ProtocolVersion) {
	if e, ok := b.peers[nodeID]; ok && e.Status == StatusDishonest {
		return
	}
	b.peers[nodeID] = &Entry{
		NodeID:      nodeID,
		Endpoint:    endpoint,
		Role:        role,
		Status:      StatusConnected,
		ProtocolVer: protoVer,
	}
}

// Remove drops a peer on disconnect.
func (b *PeerBook) Remove(nodeID types.NodeID) {
	delete(b.peers, nodeID)
}

// Entry returns the current record for nodeID, if any.
func (b *PeerBook) Entry(nodeID types.NodeID) (Entry, bool) {
	e, ok := b.peers[nodeID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Blocklist places nodeID on the blocklist for a duration sampled uniformly
// from [BlocklistRetainMinDuration, BlocklistRetainMaxDuration], per
// spec.md §3 and invariant 4 in §8.
func (b *PeerBook) Blocklist(nodeID types.NodeID, dishonest bool) {
	e, ok := b.peers[nodeID]
	if !ok {
		return
	}
	span := b.cfg.BlocklistRetainMaxDuration - b.cfg.BlocklistRetainMinDuration
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(b.rand.Int64N(int64(span)))
	}
	e.BlockedUntil = b.now().Add(b.cfg.BlocklistRetainMinDuration + jitter)
	if dishonest {
		e.Status = StatusDishonest
	} else {
		e.Status = StatusBlocked
	}
}

// ShouldTarpit decides, for a peer advertising protoVer, whether the tarpit
// policy applies: legacy clients (protocol version at or below the
// configured threshold) are held for TarpitDuration before rejection, with
// probability TarpitChance, to damp fast reconnection storms.
func (b *PeerBook) ShouldTarpit(protoVer types.ProtocolVersion) (hold time.Duration, apply bool) {
	if protoVer.Less(b.cfg.TarpitVersionThreshold) || protoVer == b.cfg.TarpitVersionThreshold {
		if b.rand.Float64() < b.cfg.TarpitChance {
			return b.cfg.TarpitDuration, true
		}
	}
	return 0, false
}

// Query returns the usable peers (excluding blocked/dishonest/pending),
// optionally restricted to validator candidates of eraID when
// restrictEra is true.
func (b *PeerBook) Query(restrictEra bool, eraID types.EraID) []types.NodeID {
	now := b.now()
	out := make([]types.NodeID, 0, len(b.peers))
	for id, e := range b.peers {
		if !e.usable(now) {
			continue
		}
		if restrictEra && (e.Role != RoleValidatorCandidate || e.EraID != eraID) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Dishonest reports whether nodeID is currently flagged dishonest.
func (b *PeerBook) Dishonest(nodeID types.NodeID) bool {
	e, ok := b.peers[nodeID]
	return ok && e.Status == StatusDishonest
}

// Len reports the number of known peers regardless of status.
func (b *PeerBook) Len() int {
	return len(b.peers)
}

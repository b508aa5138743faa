// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the node's operator-facing config.toml and the
// network's chainspec.toml, and validates both before anything downstream
// is wired up. It is grounded on the teacher's config package (Config
// struct-of-tunables plus a dedicated errors.go) adapted from the teacher's
// consensus-parameter set to the reactor's own tunables (spec.md §6/§7),
// and loaded with github.com/BurntSushi/toml the way the example pack's
// go-ethereum repository depends on it for TOML decoding.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chainkit/reactor/types"
)

// Config holds every operator-settable tunable named across spec.md §4-§7.
type Config struct {
	Network NetworkConfig `toml:"network"`
	Sync    SyncConfig    `toml:"sync"`
	Storage StorageConfig `toml:"storage"`
	Fetch   FetchConfig   `toml:"fetch"`
	Gossip  GossipConfig  `toml:"gossip"`
}

// NetworkConfig names the node's identity and reactor-level bounds.
type NetworkConfig struct {
	Name                      string        `toml:"name"`
	MinPeersForInitialization int           `toml:"min_peers_for_initialization"`
	ControlLogicDefaultDelay  time.Duration `toml:"control_logic_default_delay"`
	IdleTolerance             time.Duration `toml:"idle_tolerance"`
	MaxAttempts               int           `toml:"max_attempts"`
	UpgradeTimeout            time.Duration `toml:"upgrade_timeout"`
	ShutdownForUpgradeTimeout time.Duration `toml:"shutdown_for_upgrade_timeout"`
	SyncHandling              string        `toml:"sync_handling"`
	ForceResync               bool          `toml:"force_resync"`
	PreventValidatorShutdown  bool          `toml:"prevent_validator_shutdown"`
	HandshakeTimeout          time.Duration `toml:"handshake_timeout"`
}

// SyncConfig holds the block synchronizer and builder tunables from
// spec.md §4.3/§4.4.
type SyncConfig struct {
	LatchResetInterval               time.Duration `toml:"latch_reset_interval"`
	GetFromPeerTimeout                time.Duration `toml:"get_from_peer_timeout"`
	MaxParallelTrieFetches           int           `toml:"max_parallel_trie_fetches"`
	NeedNextInterval                 time.Duration `toml:"need_next_interval"`
	PeerRefreshInterval               time.Duration `toml:"peer_refresh_interval"`
	DisconnectDishonestPeersInterval time.Duration `toml:"disconnect_dishonest_peers_interval"`
}

// StorageConfig holds the durability and accumulator tunables from
// spec.md §3/§4.2/§6.
type StorageConfig struct {
	EnableManualSync          bool          `toml:"enable_manual_sync"`
	AttemptExecutionThreshold uint64        `toml:"attempt_execution_threshold"`
	PurgeInterval             time.Duration `toml:"purge_interval"`
	DeadAirInterval           time.Duration `toml:"dead_air_interval"`
	MaxGlobalStateDepth       int           `toml:"max_global_state_depth"`
	MaxGlobalStateSize        int64         `toml:"max_global_state_size"`
}

// FetchConfig holds the peer book tunables from spec.md §3/§4.5.
type FetchConfig struct {
	BlocklistRetainMinDuration time.Duration `toml:"blocklist_retain_min_duration"`
	BlocklistRetainMaxDuration time.Duration `toml:"blocklist_retain_max_duration"`
	TarpitVersionThreshold     uint32        `toml:"tarpit_version_threshold"`
	TarpitChance               float64       `toml:"tarpit_chance"`
	TarpitDuration             time.Duration `toml:"tarpit_duration"`
}

// GossipConfig holds the non-validator throttle tunables from spec.md §5/§6.
type GossipConfig struct {
	MaxOutgoingByteRateNonValidators    float64 `toml:"max_outgoing_byte_rate_non_validators"`
	MaxIncomingMessageRateNonValidators float64 `toml:"max_incoming_message_rate_non_validators"`
	MaxInFlightDemands                  int     `toml:"max_in_flight_demands"`
}

// Chainspec holds the network-wide parameters distributed with the network
// rather than configured per-node, per spec.md §6 "External Interfaces".
type Chainspec struct {
	Protocol ProtocolSpec `toml:"protocol"`
	Timeout  TimeoutSpec  `toml:"timeout"`
}

// ProtocolSpec names the activation point of the next protocol upgrade, if
// any, and the current protocol version.
type ProtocolSpec struct {
	Version          string `toml:"version"`
	ActivationPoint  uint64 `toml:"activation_point_era_id"`
}

// TimeoutSpec holds the consensus round timeout adaptation parameters from
// spec.md §6's Open Question resolution.
type TimeoutSpec struct {
	Strategy            string        `toml:"strategy"` // "zug" or "round_success_meter"
	Minimal             time.Duration `toml:"proposal_timeout"`
	GracePeriodPct       float64       `toml:"proposal_timeout_grace_period"`
	Inertia              int           `toml:"proposal_timeout_inertia"`
	NumRoundsToConsider  int           `toml:"num_rounds_to_consider"`
	SlowdownThreshold    float64       `toml:"round_success_meter_slowdown_threshold"`
	SpeedupThreshold     float64       `toml:"round_success_meter_speedup_threshold"`
}

// InvalidError reports a config or chainspec value that failed validation,
// matching spec.md §7's ConfigInvalid fatal error kind.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// Load decodes path into a Config and validates it.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadChainspec decodes path into a Chainspec and validates it.
func LoadChainspec(path string) (Chainspec, error) {
	var cs Chainspec
	if _, err := toml.DecodeFile(path, &cs); err != nil {
		return Chainspec{}, fmt.Errorf("config: decode chainspec %s: %w", path, err)
	}
	if err := cs.Validate(); err != nil {
		return Chainspec{}, err
	}
	return cs, nil
}

// Validate checks every field an operator could set to a value that would
// make the reactor's invariants unsatisfiable.
func (c Config) Validate() error {
	if c.Network.MinPeersForInitialization < 0 {
		return &InvalidError{"network.min_peers_for_initialization", "must be >= 0"}
	}
	if _, ok := ParseSyncHandling(c.Network.SyncHandling); !ok {
		return &InvalidError{"network.sync_handling", "must be one of genesis, ttl, nosync, isolated"}
	}
	if c.Sync.MaxParallelTrieFetches < 1 {
		return &InvalidError{"sync.max_parallel_trie_fetches", "must be >= 1"}
	}
	if c.Fetch.BlocklistRetainMaxDuration < c.Fetch.BlocklistRetainMinDuration {
		return &InvalidError{"fetch.blocklist_retain_max_duration", "must be >= blocklist_retain_min_duration"}
	}
	if c.Fetch.TarpitChance < 0 || c.Fetch.TarpitChance > 1 {
		return &InvalidError{"fetch.tarpit_chance", "must be within [0,1]"}
	}
	return nil
}

// Validate checks the chainspec's timeout adaptation strategy selection.
func (cs Chainspec) Validate() error {
	switch cs.Timeout.Strategy {
	case "zug", "round_success_meter", "":
	default:
		return &InvalidError{"timeout.strategy", "must be zug or round_success_meter"}
	}
	if cs.Timeout.NumRoundsToConsider < 0 {
		return &InvalidError{"timeout.num_rounds_to_consider", "must be >= 0"}
	}
	return nil
}

// ParseSyncHandling maps a config string to types.SyncHandling.
func ParseSyncHandling(s string) (types.SyncHandling, bool) {
	switch s {
	case "genesis":
		return types.SyncHandlingGenesis, true
	case "ttl":
		return types.SyncHandlingTTL, true
	case "nosync":
		return types.SyncHandlingNoSync, true
	case "isolated":
		return types.SyncHandlingIsolated, true
	default:
		return 0, false
	}
}

// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command node is the reactor's process entrypoint: it loads config.toml
// and chainspec.toml, wires the peer book, accumulator, synchronizer,
// reactor and control bus together, and runs the control loop until a
// shutdown terminal or a fatal error is reached. Its command surface is
// grounded on the teacher's cmd/consensus/main.go single-root-command-plus-
// flags shape, built with the same github.com/spf13/cobra dependency.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/chainkit/reactor/collaborators"
	"github.com/chainkit/reactor/config"
	"github.com/chainkit/reactor/engine/accumulator"
	"github.com/chainkit/reactor/engine/builder"
	"github.com/chainkit/reactor/engine/peerbook"
	"github.com/chainkit/reactor/engine/reactor"
	"github.com/chainkit/reactor/engine/sync"
	"github.com/chainkit/reactor/log"
	"github.com/chainkit/reactor/metrics"
	"github.com/chainkit/reactor/types"
)

// exit codes for the fatal error kinds named in spec.md §7. exitCodeFor maps
// every error returned by run to exitConfigInvalid; run exits with
// exitUpgradeTimeout itself when the reactor stays in Upgrading past
// UpgradeTimeout; no path produces exitStorageCorrupt.
const (
	exitOK               = 0
	exitConfigInvalid    = 1
	exitStorageCorrupt   = 2
	exitUpgradeTimeout   = 3
)

func main() {
	var (
		configPath    string
		chainspecPath string
		trustedHash   string
	)

	root := &cobra.Command{
		Use:   "node",
		Short: "Run a node's reactor core: catch-up, block sync and validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, chainspecPath, trustedHash)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.toml", "path to the node's config.toml")
	root.Flags().StringVar(&chainspecPath, "chainspec", "chainspec.toml", "path to the network's chainspec.toml")
	root.Flags().StringVar(&trustedHash, "trusted-hash", "", "trusted block hash to anchor CatchUp (required unless sync_handling is nosync or isolated)")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "node: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch err.(type) {
	case *config.InvalidError:
		return exitConfigInvalid
	default:
		return exitConfigInvalid
	}
}

func run(ctx context.Context, configPath, chainspecPath, trustedHash string) error {
	logger := log.NewNoOpLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	chainspec, err := config.LoadChainspec(chainspecPath)
	if err != nil {
		return err
	}
	syncHandling, _ := config.ParseSyncHandling(cfg.Network.SyncHandling)

	var trustedTip types.TipCandidate
	if trustedHash != "" {
		h, err := ids.FromString(trustedHash)
		if err != nil {
			return &config.InvalidError{Field: "trusted-hash", Reason: err.Error()}
		}
		trustedTip = types.TipCandidate{BlockHash: h}
	} else if syncHandling != types.SyncHandlingNoSync && syncHandling != types.SyncHandlingIsolated {
		return &config.InvalidError{Field: "trusted-hash", Reason: "required unless sync_handling is nosync or isolated"}
	}

	m := metrics.New(prometheus.DefaultRegisterer, "reactor")

	peers := peerbook.New(peerbook.Config{
		BlocklistRetainMinDuration: cfg.Fetch.BlocklistRetainMinDuration,
		BlocklistRetainMaxDuration: cfg.Fetch.BlocklistRetainMaxDuration,
		TarpitVersionThreshold:     types.ProtocolVersion{Major: cfg.Fetch.TarpitVersionThreshold},
		TarpitChance:               cfg.Fetch.TarpitChance,
		TarpitDuration:             cfg.Fetch.TarpitDuration,
	})
	throttle := peerbook.NewThrottle(peerbook.ThrottleConfig{
		MaxOutgoingByteRateNonValidators:    rate.Limit(cfg.Gossip.MaxOutgoingByteRateNonValidators),
		MaxIncomingMessageRateNonValidators: rate.Limit(cfg.Gossip.MaxIncomingMessageRateNonValidators),
		MaxInFlightDemands:                  cfg.Gossip.MaxInFlightDemands,
	})
	_ = throttle // not attached to any transport path in this command.

	timeoutAdapter := buildTimeoutAdapter(chainspec)
	_ = timeoutAdapter // not passed on: this command wires no ConsensusEngine.

	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	storage := collaborators.NewDatabaseStorage(db, cfg.Storage.EnableManualSync)

	acc := accumulator.New(accumulator.Config{
		AttemptExecutionThreshold: types.Height(cfg.Storage.AttemptExecutionThreshold),
		PurgeInterval:             cfg.Storage.PurgeInterval,
		DeadAirInterval:           cfg.Storage.DeadAirInterval,
	}, eraWeights{}, collaborators.VerifyFinalitySignature)

	fetcher := noopFetcher{}
	syncer := sync.New(sync.Config{
		Builder: builder.Config{
			LatchResetInterval:     cfg.Sync.LatchResetInterval,
			GetFromPeerTimeout:     cfg.Sync.GetFromPeerTimeout,
			MaxParallelTrieFetches: cfg.Sync.MaxParallelTrieFetches,
		},
		NeedNextInterval:                 cfg.Sync.NeedNextInterval,
		PeerRefreshInterval:               cfg.Sync.PeerRefreshInterval,
		DisconnectDishonestPeersInterval: cfg.Sync.DisconnectDishonestPeersInterval,
		LatchResetInterval:               cfg.Sync.LatchResetInterval,
	}, fetcher, syncStorageAdapter{inner: storage}, peers, eraWeights{}, collaborators.VerifyFinalitySignature)

	r := reactor.New(reactor.Config{
		MinPeersForInitialization: cfg.Network.MinPeersForInitialization,
		ControlLogicDefaultDelay:  cfg.Network.ControlLogicDefaultDelay,
		IdleTolerance:             cfg.Network.IdleTolerance,
		MaxAttempts:               cfg.Network.MaxAttempts,
		UpgradeTimeout:            cfg.Network.UpgradeTimeout,
		ShutdownForUpgradeTimeout: cfg.Network.ShutdownForUpgradeTimeout,
		SyncHandling:              syncHandling,
		ForceResync:               cfg.Network.ForceResync,
		PreventValidatorShutdown:  cfg.Network.PreventValidatorShutdown,
	}, reactor.Hooks{
		ConnectedPeerCount: peers.Len,
		LocalTip:           func() types.Height { return 0 },
		SyncLeap:           func() (types.TipCandidate, bool) { return trustedTip, trustedTip.BlockHash != types.Hash{} },
	}, syncer, acc, peers, time.Now())

	logger.Info("node starting", "network", cfg.Network.Name)

	ticker := time.NewTicker(cfg.Network.ControlLogicDefaultDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("node shutting down")
			return nil
		case now := <-ticker.C:
			r.ControlTick(now)
			m.ReactorState.Reset()
			m.ReactorState.WithLabelValues(r.State().Kind.String()).Set(1)
			if r.State().Kind.Terminal() {
				return nil
			}
			if st := r.State(); st.Kind == reactor.Upgrading && now.Sub(st.UpgradingSince) > cfg.Network.UpgradeTimeout {
				fmt.Fprintln(os.Stderr, "node: upgrade did not complete within upgrade_timeout")
				os.Exit(exitUpgradeTimeout)
			}
		}
	}
}

func buildTimeoutAdapter(cs config.Chainspec) collaborators.ProposalTimeoutAdapter {
	if cs.Timeout.Strategy == "round_success_meter" {
		return collaborators.NewRoundSuccessMeterAdapter(
			cs.Timeout.Minimal, cs.Timeout.NumRoundsToConsider,
			cs.Timeout.SlowdownThreshold, cs.Timeout.SpeedupThreshold,
		)
	}
	return collaborators.NewZugTimeoutAdapter(cs.Timeout.Minimal, cs.Timeout.GracePeriodPct, cs.Timeout.Inertia)
}

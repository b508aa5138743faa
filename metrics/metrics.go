// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics wires the reactor's own counters and gauges into
// github.com/prometheus/client_golang, the same metrics dependency the
// teacher's metrics package registers collectors against.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reactor's collectors, registered against a single
// Registerer so a caller can expose them all under one /metrics handler.
type Metrics struct {
	Registry prometheus.Registerer

	ReactorState         *prometheus.GaugeVec
	StallAttempts        prometheus.Gauge
	BuildersActive        *prometheus.GaugeVec
	BlocksAcquiredTotal   *prometheus.CounterVec
	AcceptorsTracked      prometheus.Gauge
	PeersKnown            prometheus.Gauge
	PeersBlocklisted      prometheus.Gauge
	DishonestPeersTotal   prometheus.Counter
}

// New creates and registers a Metrics against reg. namespace prefixes every
// metric name (e.g. "reactor").
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		Registry: reg,
		ReactorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current reactor state, one gauge per Kind set to 1 for the active state.",
		}, []string{"state"}),
		StallAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stall_attempts",
			Help:      "Consecutive control ticks observed with no synchronizer progress.",
		}),
		BuildersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "builders_active",
			Help:      "Whether a builder is currently live, by direction.",
		}, []string{"direction"}),
		BlocksAcquiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_acquired_total",
			Help:      "Blocks whose builder reached Complete, by direction.",
		}, []string{"direction"}),
		AcceptorsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accumulator_acceptors_tracked",
			Help:      "Acceptors currently tracked by the accumulator.",
		}),
		PeersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_known",
			Help:      "Peers currently known to the peer book, any status.",
		}),
		PeersBlocklisted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_blocklisted",
			Help:      "Peers currently blocklisted or flagged dishonest.",
		}),
		DishonestPeersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dishonest_peers_total",
			Help:      "Peers flagged dishonest by a builder, cumulative.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.ReactorState, m.StallAttempts, m.BuildersActive, m.BlocksAcquiredTotal,
		m.AcceptorsTracked, m.PeersKnown, m.PeersBlocklisted, m.DishonestPeersTotal,
	} {
		_ = m.Register(c)
	}
	return m
}

// Register registers a prometheus collector against the Metrics' Registry.
func (m *Metrics) Register(collector prometheus.Collector) error {
	return m.Registry.Register(collector)
}

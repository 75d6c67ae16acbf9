// Package metrics exposes Prometheus instrumentation for the detection
// engine. Served at /metrics by cmd/api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts poll ticks started.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cyclewatch_ticks_total",
		Help: "Total poll ticks started",
	})

	// TickDuration observes end-to-end tick latency.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cyclewatch_tick_duration_seconds",
		Help:    "End-to-end poll tick duration",
		Buckets: prometheus.DefBuckets,
	})

	// SnapshotsApplied counts snapshots that advanced a game's cursor.
	SnapshotsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cyclewatch_snapshots_applied_total",
		Help: "Snapshots applied to the store",
	})

	// SequenceAnomalies counts out-of-order snapshots skipped.
	SequenceAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cyclewatch_sequence_anomalies_total",
		Help: "Snapshots skipped due to sequence regression",
	})

	// InvariantViolations counts frozen progress records.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cyclewatch_invariant_violations_total",
		Help: "Progress records frozen after a monotonicity violation",
	})

	// ClaimsWon counts successful alert claims by achievement kind.
	ClaimsWon = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclewatch_claims_won_total",
		Help: "Alert claims won, by achievement kind",
	}, []string{"kind"})

	// AlertsSent counts alerts handed to the notification channel.
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclewatch_alerts_sent_total",
		Help: "Alerts delivered to the notifier, by achievement kind",
	}, []string{"kind"})

	// HighlightLookups counts highlight resolution outcomes.
	HighlightLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclewatch_highlight_lookups_total",
		Help: "Highlight lookups, by outcome (hit, miss, skipped)",
	}, []string{"outcome"})

	// GameErrors counts per-game tick aborts.
	GameErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cyclewatch_game_errors_total",
		Help: "Ticks aborted for a single game due to an error",
	})
)

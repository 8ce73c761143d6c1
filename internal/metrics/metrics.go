// Package metrics exposes pipeline counters via Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairflow_ticks_ingested_total", Help: "Ticks accepted into the ingestion buffer"},
		[]string{"symbol"},
	)
	TicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairflow_ticks_dropped_total", Help: "Ticks discarded before ingestion"},
		[]string{"reason"}, // "malformed" or "overflow"
	)
	BarsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairflow_bars_finalized_total", Help: "Finalized OHLCV bars emitted by the resampler"},
		[]string{"symbol", "interval"},
	)
	SnapshotsComputed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pairflow_snapshots_total", Help: "Analytics snapshots computed"},
	)
	AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairflow_alerts_total", Help: "Alerts emitted after cooldown suppression"},
		[]string{"rule"},
	)
	BroadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pairflow_broadcast_dropped_total", Help: "Messages dropped on full subscriber queues"},
	)
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pairflow_subscribers", Help: "Currently connected stream subscribers"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksIngested, TicksDropped, BarsFinalized,
		SnapshotsComputed, AlertsEmitted, BroadcastDropped, Subscribers,
	)
}

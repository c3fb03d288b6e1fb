// Package metrics exposes prometheus instrumentation for the ingestion
// pipeline and the live view.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeview_trades_ingested_total",
		Help: "Trades durably written to the store",
	}, []string{"symbol"})

	MessagesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeview_messages_skipped_total",
		Help: "Bus messages dropped before storage",
	}, []string{"reason"})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradeview_flush_duration_seconds",
		Help:    "Duration of batch flushes to the store",
		Buckets: prometheus.DefBuckets,
	})

	FlushRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeview_flush_retries_total",
		Help: "Batch flushes retried after a transient store failure",
	})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradeview_query_duration_seconds",
		Help:    "Duration of history queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	SnapshotTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradeview_snapshot_ticks_total",
		Help: "Live refresh cycles by outcome",
	}, []string{"outcome"})

	ConnectedViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradeview_connected_viewers",
		Help: "Websocket viewers currently connected",
	})
)

// Timer measures a duration for a histogram observation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

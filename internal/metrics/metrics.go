// Package metrics exposes Prometheus instrumentation for the signal
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signal service.
type Metrics struct {
	BarsIngested   *prometheus.CounterVec // labels: symbol
	BarsRejected   *prometheus.CounterVec // labels: symbol, reason
	DuplicatesHeld *prometheus.CounterVec // labels: symbol

	SignalsTotal *prometheus.CounterVec // labels: symbol, action, source

	RetrainsTotal   *prometheus.CounterVec // labels: symbol, outcome
	RetrainDuration prometheus.Histogram

	BackupsTotal   *prometheus.CounterVec // labels: symbol
	ArchivesTotal  *prometheus.CounterVec // labels: symbol
	BarsArchived   *prometheus.CounterVec // labels: symbol
	BackupDuration prometheus.Histogram

	BufferSize  *prometheus.GaugeVec // labels: symbol
	ModelLoaded *prometheus.GaugeVec // labels: symbol
	MarketState prometheus.Gauge     // 0=closed, 1=open

	HTTPRequests *prometheus.CounterVec // labels: endpoint, code
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_bars_ingested_total",
			Help: "Bars accepted into the live buffer",
		}, []string{"symbol"}),
		BarsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_bars_rejected_total",
			Help: "Bars rejected at admission",
		}, []string{"symbol", "reason"}),
		DuplicatesHeld: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_duplicate_bars_suppressed_total",
			Help: "Duplicate bars accepted under the streak budget",
		}, []string{"symbol"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_signals_total",
			Help: "Signals produced, by action and source (model or rules)",
		}, []string{"symbol", "action", "source"}),
		RetrainsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_retrains_total",
			Help: "Model retrain attempts by outcome",
		}, []string{"symbol", "outcome"}),
		RetrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesrv_retrain_duration_seconds",
			Help:    "Wall time of model retraining",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		BackupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_backups_total",
			Help: "Snapshot backups written",
		}, []string{"symbol"}),
		ArchivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_archives_total",
			Help: "Archive files written by eviction",
		}, []string{"symbol"}),
		BarsArchived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_bars_archived_total",
			Help: "Bars evicted from the live buffer to archive",
		}, []string{"symbol"}),
		BackupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesrv_backup_duration_seconds",
			Help:    "Wall time of snapshot backups",
			Buckets: prometheus.DefBuckets,
		}),
		BufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesrv_buffer_size",
			Help: "Current live buffer size per symbol",
		}, []string{"symbol"}),
		ModelLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesrv_model_loaded",
			Help: "1 when a trained model is loaded for the symbol",
		}, []string{"symbol"}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesrv_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesrv_http_requests_total",
			Help: "HTTP requests served, by endpoint and status code",
		}, []string{"endpoint", "code"}),
	}

	prometheus.MustRegister(
		m.BarsIngested,
		m.BarsRejected,
		m.DuplicatesHeld,
		m.SignalsTotal,
		m.RetrainsTotal,
		m.RetrainDuration,
		m.BackupsTotal,
		m.ArchivesTotal,
		m.BarsArchived,
		m.BackupDuration,
		m.BufferSize,
		m.ModelLoaded,
		m.MarketState,
		m.HTTPRequests,
	)
	return m
}

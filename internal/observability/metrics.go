// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Block pipeline metrics
	BlocksProcessed prometheus.Counter
	BlocksSkipped   *prometheus.CounterVec
	HighestBlock    prometheus.Gauge
	InflightBlocks  prometheus.Gauge

	// Classification metrics
	FramesVisited     prometheus.Counter
	ActionsClassified *prometheus.CounterVec
	DecodeFailures    prometheus.Counter

	// Detection metrics
	BundlesDetected *prometheus.CounterVec
	BundleProfitUSD *prometheus.HistogramVec

	// Latency metrics
	TraceFetchLatency prometheus.Histogram
	ClassifyLatency   prometheus.Histogram
	InspectLatency    *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastProcessedBlockTime prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "evm_mev_lab"
	}

	return &Metrics{
		// Block pipeline metrics
		BlocksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks fully processed",
		}),
		BlocksSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "blocks_skipped_total",
			Help:      "Total number of blocks skipped by reason",
		}, []string{"reason"}),
		HighestBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "highest_block",
			Help:      "Highest block number admitted to the pipeline",
		}),
		InflightBlocks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "inflight_blocks",
			Help:      "Number of blocks currently being processed",
		}),

		// Classification metrics
		FramesVisited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "frames_visited_total",
			Help:      "Total number of call frames visited during classification",
		}),
		ActionsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "actions_classified_total",
			Help:      "Total number of actions classified by kind",
		}, []string{"kind"}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "decode_failures_total",
			Help:      "Total number of contained calldata decode failures",
		}),

		// Detection metrics
		BundlesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inspect",
			Name:      "bundles_detected_total",
			Help:      "Total number of bundles detected by kind",
		}, []string{"kind"}),
		BundleProfitUSD: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inspect",
			Name:      "bundle_profit_usd",
			Help:      "USD-equivalent profit per detected bundle",
			Buckets:   []float64{1, 10, 100, 1_000, 10_000, 100_000},
		}, []string{"kind"}),

		// Latency metrics
		TraceFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracesource",
			Name:      "fetch_latency_seconds",
			Help:      "Block trace fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ClassifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "classify_latency_seconds",
			Help:      "Block classification latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		InspectLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inspect",
			Name:      "latency_seconds",
			Help:      "Inspector latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"inspector"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastProcessedBlockTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_processed_block_timestamp",
			Help:      "Unix timestamp of the last fully processed block",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBlockProcessed increments the blocks processed counter and marks
// the health timestamp.
func RecordBlockProcessed(unixTime float64) {
	DefaultMetrics.BlocksProcessed.Inc()
	DefaultMetrics.LastProcessedBlockTime.Set(unixTime)
}

// RecordBlockSkipped increments the skipped counter for the reason.
func RecordBlockSkipped(reason string) {
	DefaultMetrics.BlocksSkipped.WithLabelValues(reason).Inc()
}

// RecordClassification records per-block classification counts.
func RecordClassification(framesVisited uint64, decodeFailures int) {
	DefaultMetrics.FramesVisited.Add(float64(framesVisited))
	DefaultMetrics.DecodeFailures.Add(float64(decodeFailures))
}

// RecordAction increments the classified action counter for the kind.
func RecordAction(kind string) {
	DefaultMetrics.ActionsClassified.WithLabelValues(kind).Inc()
}

// RecordBundle records a detected bundle and its USD profit when known.
func RecordBundle(kind string, profitUSD *float64) {
	DefaultMetrics.BundlesDetected.WithLabelValues(kind).Inc()
	if profitUSD != nil {
		DefaultMetrics.BundleProfitUSD.WithLabelValues(kind).Observe(*profitUSD)
	}
}

// RecordInspectLatency records one inspector's run duration.
func RecordInspectLatency(inspector string, seconds float64) {
	DefaultMetrics.InspectLatency.WithLabelValues(inspector).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

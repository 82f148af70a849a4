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
	// Ingestion metrics
	CandidatesObserved *prometheus.CounterVec
	CandidatesDropped  *prometheus.CounterVec
	ListenersConnected prometheus.Gauge

	// Gate metrics
	GateInFlight prometheus.Gauge
	GateDrops    prometheus.Gauge

	// Pipeline latency metrics
	ParseLatency  prometheus.Histogram
	BuildLatency  prometheus.Histogram
	SubmitLatency prometheus.Histogram

	// Submission metrics
	SubmissionsTotal *prometheus.CounterVec

	// Position metrics
	OpenPositions   prometheus.Gauge
	ClosedPositions *prometheus.CounterVec
	OpenPnLSOL      prometheus.Gauge
	WinRate         prometheus.Gauge

	// Endpoint metrics
	EndpointHealth *prometheus.GaugeVec

	// Health metrics
	LastCandidateSeen prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return newMetrics(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWithRegistry registers on a caller-owned registry. Tests use it
// to avoid duplicate registration on the default one.
func NewMetricsWithRegistry(reg prometheus.Registerer, namespace string) *Metrics {
	return newMetrics(reg, namespace)
}

func newMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "mhftsb"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		CandidatesObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "candidates_observed_total",
			Help:      "Total number of unique candidate signatures observed by source",
		}, []string{"source"}),
		CandidatesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidates_dropped_total",
			Help:      "Total number of candidates dropped by reason",
		}, []string{"reason"}),
		ListenersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "listeners_connected",
			Help:      "Number of WebSocket listeners currently connected",
		}),

		// Gate metrics
		GateInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "in_flight",
			Help:      "Current number of pipelines holding a gate slot",
		}),
		GateDrops: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "drops_total",
			Help:      "Total number of candidates refused at the gate",
		}),

		// Pipeline latency metrics
		ParseLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "parse_latency_seconds",
			Help:      "Transaction fetch and extraction latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		BuildLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "build_latency_seconds",
			Help:      "Clone-and-inject build latency in seconds, curve wait included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
		SubmitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "submit_latency_seconds",
			Help:      "Transaction submission latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Submission metrics
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "transactions_total",
			Help:      "Total number of submissions by outcome",
		}, []string{"outcome"}),

		// Position metrics
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open",
			Help:      "Current number of open positions",
		}),
		ClosedPositions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "closed_total",
			Help:      "Total number of closed positions by reason",
		}, []string{"reason"}),
		OpenPnLSOL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open_pnl_sol",
			Help:      "Aggregate unrealized PnL of open positions in SOL",
		}),
		WinRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "win_rate",
			Help:      "Percentage of closed positions with positive PnL",
		}),

		// Endpoint metrics
		EndpointHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpcpool",
			Name:      "endpoint_health",
			Help:      "Rolling health score per endpoint, 0 to 100",
		}, []string{"url", "pool"}),

		// Health metrics
		LastCandidateSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_candidate_timestamp",
			Help:      "Unix timestamp of the last candidate observed",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics exposes the engine's degraded-state signals. Catalog load
// failures never surface to callers, so the failure counter is the primary
// way operators detect an engine serving empty fallback results.
type EngineMetrics struct {
	Loads            prometheus.Counter
	LoadFailures     prometheus.Counter
	Requests         prometheus.Counter
	FallbacksServed  prometheus.Counter
	SnapshotProducts prometheus.Gauge
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		Loads: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_snapshot_loads_total",
			Help: "Number of catalog snapshot builds, including rebuilds after refresh",
		}),
		LoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_load_failures_total",
			Help: "Number of catalog reads that failed and degraded to an empty snapshot",
		}),
		Requests: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_recommendation_requests_total",
			Help: "Number of recommendation requests served",
		}),
		FallbacksServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_fallback_responses_total",
			Help: "Number of responses padded with fallback recommendations",
		}),
		SnapshotProducts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "engine_snapshot_products",
			Help: "Product count in the currently published snapshot",
		}),
	}
}

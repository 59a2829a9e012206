package metrics

import "github.com/prometheus/client_golang/prometheus"

// Research counter vectors
var (
	ResearchRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Total number of research runs by mode and status",
	}, []string{"mode", "status"})
	RunCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_cache_lookups_total",
		Help:      "Run memoization lookups by result",
	}, []string{"result"})
	WeeksSimulatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "weeks_simulated_total",
		Help:      "Total number of weeks simulated by mode",
	}, []string{"mode"})
	TrailProfileLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trail_profile_lookups_total",
		Help:      "Adaptive trail profile cache lookups by result",
	}, []string{"result"})
)

// Research histogram vectors
var (
	SimulationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "simulation_duration_seconds",
		Help:      "Duration of research simulations in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"mode"})
	RunTotalReturnPct = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_total_return_pct",
		Help:      "Total percent return of completed research runs",
		Buckets:   []float64{-50, -20, -10, -5, 0, 5, 10, 20, 50, 100},
	}, []string{"mode"})
)

// Run statuses
const (
	StatusComplete = "complete"
	StatusError    = "error"
	StatusRejected = "rejected"
	StatusCached   = "cached"
)

// RecordResearchRun records a research run outcome.
func RecordResearchRun(mode, status string) {
	ResearchRunsTotal.WithLabelValues(mode, status).Inc()
}

// RecordCacheLookup records a run memoization hit or miss.
func RecordCacheLookup(hit bool) {
	RunCacheLookupsTotal.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordSimulation records a completed simulation.
func RecordSimulation(mode string, durationSeconds float64, weeks int, totalReturnPct float64) {
	SimulationDuration.WithLabelValues(mode).Observe(durationSeconds)
	WeeksSimulatedTotal.WithLabelValues(mode).Add(float64(weeks))
	RunTotalReturnPct.WithLabelValues(mode).Observe(totalReturnPct)
}

// RecordTrailProfileLookup records an adaptive trail profile resolution.
func RecordTrailProfileLookup(hit bool) {
	TrailProfileLookupsTotal.WithLabelValues(hitLabel(hit)).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

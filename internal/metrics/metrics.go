// Package metrics provides the centralized Prometheus metrics registry for the research service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "limni_research"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	CircuitBreakerTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of market data circuit breaker trips",
	})
	PersistenceErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persistence_errors_total",
		Help:      "Total number of run store failures",
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		registry.MustRegister(CircuitBreakerTripsTotal)
		registry.MustRegister(PersistenceErrorsTotal)

		// Research metrics
		registry.MustRegister(ResearchRunsTotal)
		registry.MustRegister(RunCacheLookupsTotal)
		registry.MustRegister(SimulationDuration)
		registry.MustRegister(WeeksSimulatedTotal)
		registry.MustRegister(TrailProfileLookupsTotal)
		registry.MustRegister(RunTotalReturnPct)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordCircuitBreakerTrip records a circuit breaker trip event.
func RecordCircuitBreakerTrip() {
	CircuitBreakerTripsTotal.Inc()
}

// RecordPersistenceError records a failed store operation.
func RecordPersistenceError() {
	PersistenceErrorsTotal.Inc()
}

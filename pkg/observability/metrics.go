package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the reactive core. Each
// collector owns a private registry so tests can build isolated instances.
type Collector struct {
	registry *prometheus.Registry

	// Trigger engine metrics
	TransformExecutions *prometheus.CounterVec
	TransformDuration   prometheus.Histogram
	CascadeRejections   prometheus.Counter

	// Event bus metrics
	BusPublishes   *prometheus.CounterVec
	BusDeadLetters prometheus.Counter

	// Value store metrics
	StoreOperations *prometheus.CounterVec

	// Execution queue metrics
	QueueDepth prometheus.Gauge
}

// NewCollector creates a metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	transformExecutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_executions_total",
			Help:      "Total number of transform executions by outcome",
		},
		[]string{"status"},
	)

	transformDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_execution_duration_seconds",
			Help:      "Transform execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	cascadeRejections := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_rejections_total",
			Help:      "Total number of re-entrant executions rejected within a cascade",
		},
	)

	busPublishes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publishes_total",
			Help:      "Total number of event publishes by outcome",
		},
		[]string{"event_type", "status"},
	)

	busDeadLetters := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_dead_letters_total",
			Help:      "Total number of events moved to the dead-letter list",
		},
	)

	storeOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of value store operations by kind",
		},
		[]string{"operation"},
	)

	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "execution_queue_depth",
			Help:      "Number of pending entries in the execution queue",
		},
	)

	registry.MustRegister(
		transformExecutions,
		transformDuration,
		cascadeRejections,
		busPublishes,
		busDeadLetters,
		storeOperations,
		queueDepth,
	)

	return &Collector{
		registry:            registry,
		TransformExecutions: transformExecutions,
		TransformDuration:   transformDuration,
		CascadeRejections:   cascadeRejections,
		BusPublishes:        busPublishes,
		BusDeadLetters:      busDeadLetters,
		StoreOperations:     storeOperations,
		QueueDepth:          queueDepth,
	}
}

// Registry exposes the private registry for the /metrics handler
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveTransform records one execution's outcome and duration
func (c *Collector) ObserveTransform(status string, duration time.Duration) {
	c.TransformExecutions.WithLabelValues(status).Inc()
	c.TransformDuration.Observe(duration.Seconds())
}

// ObservePublish records one publish attempt's outcome
func (c *Collector) ObservePublish(eventType, status string) {
	c.BusPublishes.WithLabelValues(eventType, status).Inc()
}

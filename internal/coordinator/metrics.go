// internal/coordinator/metrics.go
package coordinator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Step failure reasons used as the "reason" label.
const (
	reasonAgentError = "agent_error"
	reasonTimeout    = "timeout"
	reasonWiring     = "wiring"
	reasonDeadlock   = "deadlock"
	reasonSubmit     = "submit"
)

// Metrics exposes Prometheus collectors reporting scheduler activity.
type Metrics struct {
	stepDuration    *prometheus.HistogramVec
	stepFailures    *prometheus.CounterVec
	workflowsActive prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level instance registered with the
// global Prometheus registry. Created once so repeated coordinator
// construction (tests, embedded use) cannot trip duplicate registration.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics builds the collectors against the given registerer. Supply
// a fresh registry when isolated metrics are needed (tests). Registration
// errors other than AlreadyRegistered panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "patentflow",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of workflow steps by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"step", "status"},
	)
	stepFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patentflow",
			Name:      "step_failures_total",
			Help:      "Workflow steps that ended without completing, by reason.",
		},
		[]string{"step", "reason"},
	)
	workflowsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "patentflow",
			Name:      "workflows_active",
			Help:      "Number of workflow runs currently in flight.",
		},
	)

	collectors := []prometheus.Collector{stepDuration, stepFailures, workflowsActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector.(type) {
				case *prometheus.HistogramVec:
					stepDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case *prometheus.CounterVec:
					stepFailures = already.ExistingCollector.(*prometheus.CounterVec)
				case prometheus.Gauge:
					workflowsActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		stepDuration:    stepDuration,
		stepFailures:    stepFailures,
		workflowsActive: workflowsActive,
	}
}

// ObserveStepDuration records the time a step spent from dispatch to its
// terminal status.
func (m *Metrics) ObserveStepDuration(step, status string, duration time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

// IncStepFailure counts a step that ended without completing.
func (m *Metrics) IncStepFailure(step, reason string) {
	if m == nil || m.stepFailures == nil {
		return
	}
	m.stepFailures.WithLabelValues(step, reason).Inc()
}

// IncActiveWorkflows marks a run as in flight.
func (m *Metrics) IncActiveWorkflows() {
	if m == nil || m.workflowsActive == nil {
		return
	}
	m.workflowsActive.Inc()
}

// DecActiveWorkflows marks a run as finished.
func (m *Metrics) DecActiveWorkflows() {
	if m == nil || m.workflowsActive == nil {
		return
	}
	m.workflowsActive.Dec()
}

// Package metrics exports workflow transitions as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stockflow"

// Recorder counts instance and step transitions per chain. It is an
// engine.Observer.
type Recorder struct {
	instancesStarted   *prometheus.CounterVec
	instancesCompleted *prometheus.CounterVec
	instancesActive    *prometheus.GaugeVec
	stepsStarted       *prometheus.CounterVec
	escalations        *prometheus.CounterVec
	duration           *prometheus.HistogramVec
}

// NewRecorder registers the workflow metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		instancesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_started_total",
			Help:      "Workflow instances started.",
		}, []string{"chain_id"}),
		instancesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_completed_total",
			Help:      "Workflow instances that reached a terminal status.",
		}, []string{"chain_id", "status"}),
		instancesActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances_active",
			Help:      "Workflow instances in progress.",
		}, []string{"chain_id"}),
		stepsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_started_total",
			Help:      "Workflow steps dispatched.",
		}, []string{"chain_id", "step_type"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_escalations_total",
			Help:      "Step escalations after a timeout.",
		}, []string{"chain_id", "step_id"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instance_duration_seconds",
			Help:      "Time from start to terminal status.",
			Buckets:   []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600},
		}, []string{"chain_id", "status"}),
	}
}

func (r *Recorder) InstanceStarted(chainID string) {
	r.instancesStarted.WithLabelValues(chainID).Inc()
	r.instancesActive.WithLabelValues(chainID).Inc()
}

func (r *Recorder) StepStarted(chainID string, stepType models.StepType) {
	r.stepsStarted.WithLabelValues(chainID, string(stepType)).Inc()
}

func (r *Recorder) StepEscalated(chainID, stepID string) {
	r.escalations.WithLabelValues(chainID, stepID).Inc()
}

func (r *Recorder) InstanceCompleted(chainID string, status models.InstanceStatus, duration time.Duration) {
	r.instancesCompleted.WithLabelValues(chainID, string(status)).Inc()
	r.instancesActive.WithLabelValues(chainID).Dec()
	r.duration.WithLabelValues(chainID, string(status)).Observe(duration.Seconds())
}

package engine

import (
	"context"
	"time"

	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
)

// Metrics summarizes stored instances. Rates are fractions of all instances.
// Governance is set when the engine consults a validator.
type Metrics struct {
	TotalInstances        int           `json:"total_instances"`
	ActiveInstances       int           `json:"active_instances"`
	AverageCompletionTime time.Duration `json:"average_completion_time"`
	AverageStepLatency    time.Duration `json:"average_step_latency"`
	TimeoutRate           float64       `json:"timeout_rate"`
	RejectionRate         float64       `json:"rejection_rate"`

	Governance *governance.Metrics `json:"governance,omitempty"`
}

// GetMetrics computes metrics over the instances of one chain, or of every
// chain when chainID is empty.
func (e *Engine) GetMetrics(ctx context.Context, chainID string) (Metrics, error) {
	instances, err := e.instances().List(ctx, persistence.InstanceFilter{ChainID: chainID})
	if err != nil {
		return Metrics{}, newError("get_metrics", "", "", err)
	}

	metrics := computeMetrics(instances)

	if e.governance != nil {
		policies := e.governance.Metrics()
		metrics.Governance = &policies
	}

	return metrics, nil
}

func computeMetrics(instances []*models.WorkflowInstance) Metrics {
	metrics := Metrics{TotalInstances: len(instances)}
	if len(instances) == 0 {
		return metrics
	}

	var (
		completionTotal time.Duration
		completed       int
		latencyTotal    time.Duration
		latencies       int
		timedOut        int
		rejected        int
	)

	for _, instance := range instances {
		switch instance.Status {
		case models.InstanceStatusInProgress:
			metrics.ActiveInstances++
		case models.InstanceStatusTimeout:
			timedOut++
		case models.InstanceStatusRejected:
			rejected++
		}

		if instance.CompletedAt != nil {
			completionTotal += instance.CompletedAt.Sub(instance.StartedAt)
			completed++
		}

		for i := 1; i < len(instance.History); i++ {
			latencyTotal += instance.History[i].Timestamp.Sub(instance.History[i-1].Timestamp)
			latencies++
		}
	}

	if completed > 0 {
		metrics.AverageCompletionTime = completionTotal / time.Duration(completed)
	}

	if latencies > 0 {
		metrics.AverageStepLatency = latencyTotal / time.Duration(latencies)
	}

	metrics.TimeoutRate = float64(timedOut) / float64(len(instances))
	metrics.RejectionRate = float64(rejected) / float64(len(instances))

	return metrics
}

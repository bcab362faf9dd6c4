package numsim

import "github.com/prometheus/client_golang/prometheus"

// StepMetrics bundles the Prometheus metrics of the integration loop.
type StepMetrics struct {
	AcceptedSteps prometheus.Counter
	RejectedSteps prometheus.Counter
	Evaluations   prometheus.Counter
	LastStepSize  prometheus.Gauge
}

// NewStepMetrics registers the integration metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewStepMetrics(reg prometheus.Registerer) (*StepMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &StepMetrics{
		AcceptedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propagation_steps_total",
			Help: "Total number of accepted integration steps.",
		}),
		RejectedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propagation_rejected_steps_total",
			Help: "Total number of rejected integration steps.",
		}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propagation_derivative_evaluations_total",
			Help: "Total number of derivative function evaluations.",
		}),
		LastStepSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "propagation_last_step_seconds",
			Help: "Size of the last accepted integration step in seconds.",
		}),
	}
	for _, c := range []prometheus.Collector{m.AcceptedSteps, m.RejectedSteps, m.Evaluations, m.LastStepSize} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

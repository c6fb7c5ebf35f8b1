// Package metrics exposes simulation counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dclbond/dcl"
)

const (
	OutcomeCompleted = "completed"
	OutcomeMatured   = "matured"
	OutcomeFailed    = "failed"
)

// Registry owns its own prometheus.Registry so servers and tests never share
// global collectors.
type Registry struct {
	reg *prometheus.Registry

	Simulations     *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	RebalanceEvents *prometheus.CounterVec
	ActiveRuns      prometheus.Gauge
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Simulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcl_simulations_total",
				Help: "Simulation runs by rebalancing frequency and outcome",
			},
			[]string{"frequency", "outcome"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dcl_simulation_duration_seconds",
				Help:    "Wall time of one simulation run in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"frequency"},
		),
		RebalanceEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcl_rebalance_events_total",
				Help: "Rebalancing actions taken, by kind",
			},
			[]string{"kind"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dcl_active_runs",
				Help: "Simulation runs currently executing",
			},
		),
	}

	r.reg.MustRegister(
		r.Simulations,
		r.RunDuration,
		r.RebalanceEvents,
		r.ActiveRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// RunTimer tracks one run from start to Stop.
type RunTimer struct {
	r     *Registry
	start time.Time
}

func (r *Registry) StartRun() *RunTimer {
	r.ActiveRuns.Inc()
	return &RunTimer{r: r, start: time.Now()}
}

// Stop records the run's duration, outcome and rebalancing events.
func (t *RunTimer) Stop(res dcl.Result) {
	t.r.ActiveRuns.Dec()
	t.r.Observe(res, time.Since(t.start))
}

// Observe records a finished run. A result carrying errors counts as failed.
func (r *Registry) Observe(res dcl.Result, elapsed time.Duration) {
	freq := res.Params.Frequency.String()
	r.RunDuration.WithLabelValues(freq).Observe(elapsed.Seconds())

	switch {
	case len(res.Errors) > 0:
		r.Simulations.WithLabelValues(freq, OutcomeFailed).Inc()
		return
	case res.Summary.HaltedAtMaturity:
		r.Simulations.WithLabelValues(freq, OutcomeMatured).Inc()
	default:
		r.Simulations.WithLabelValues(freq, OutcomeCompleted).Inc()
	}
	if res.Summary.TopUps > 0 {
		r.RebalanceEvents.WithLabelValues("top_up").Add(float64(res.Summary.TopUps))
	}
	if res.Summary.Issuances > 0 {
		r.RebalanceEvents.WithLabelValues("share_issuance").Add(float64(res.Summary.Issuances))
	}
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Package metrics records run metrics for a deployment and exports them in
// the Prometheus text format, for the node exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

const namespace = "chaldeploy"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder collects the metrics of one run in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	phaseDuration *prometheus.HistogramVec
	phasesTotal   *prometheus.CounterVec
	instances     *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

var _ provisioning.PhaseRecorder = (*Recorder)(nil)

// NewRecorder creates a recorder labelled with the deployment name.
func NewRecorder(deployment string) *Recorder {
	labels := prometheus.Labels{"deployment": deployment}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "phase",
				Name:        "duration_seconds",
				Help:        "Duration of deployment phases in seconds",
				Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
				ConstLabels: labels,
			},
			[]string{"phase", "result"},
		),
		phasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "phase",
				Name:        "total",
				Help:        "Number of deployment phases run by result",
				ConstLabels: labels,
			},
			[]string{"phase", "result"},
		),
		instances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "run",
				Name:        "instances",
				Help:        "Instances touched by the run by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "run",
			Name:        "duration_seconds",
			Help:        "Wall time of the last run in seconds",
			ConstLabels: labels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "run",
			Name:        "success",
			Help:        "Whether the last run succeeded (1) or not (0)",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(r.phaseDuration, r.phasesTotal, r.instances, r.runDuration, r.lastSuccess)
	return r
}

// ObservePhase implements provisioning.PhaseRecorder.
func (r *Recorder) ObservePhase(phase string, duration time.Duration, err error) {
	result := resultOf(err)
	r.phaseDuration.WithLabelValues(phase, result).Observe(duration.Seconds())
	r.phasesTotal.WithLabelValues(phase, result).Inc()
}

// ObserveRun records the outcome of a whole run from its final state.
func (r *Recorder) ObserveRun(state *provisioning.State, duration time.Duration, err error) {
	r.runDuration.Set(duration.Seconds())
	if err == nil {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
	if state == nil {
		return
	}
	r.instances.WithLabelValues("provisioned").Set(float64(len(state.Provisioned)))
	r.instances.WithLabelValues("destroyed").Set(float64(len(state.Destroyed)))
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

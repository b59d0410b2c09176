// Package metrics implements Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "address_conflict"
	OutcomeError    = "error"
)

// Recorder owns a private registry so that concurrent sweeps and tests never share
// collectors. All methods are safe on a nil Recorder.
type Recorder struct {
	registry *prometheus.Registry

	// RunsTotal counts finished runs by outcome
	RunsTotal *prometheus.CounterVec

	// RunWallSeconds measures how long a run took to simulate
	RunWallSeconds prometheus.Histogram

	// ResolutionBindings is the size of the last seeded resolution table
	ResolutionBindings prometheus.Gauge

	// ResolutionRequestsTotal counts ARP requests the engine had to send
	ResolutionRequestsTotal prometheus.Counter

	// EventsProcessedTotal counts simulation events
	EventsProcessedTotal prometheus.Counter

	// FlowThroughputMbps is the received throughput per flow
	FlowThroughputMbps *prometheus.GaugeVec

	// FlowLossRatio is lost/transmitted per flow
	FlowLossRatio *prometheus.GaugeVec

	// AggregateThroughputMbps is the summed throughput of a run
	AggregateThroughputMbps *prometheus.GaugeVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wifilab_runs_total",
				Help: "Total number of experiment runs",
			},
			[]string{"outcome"},
		),
		RunWallSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wifilab_run_wall_seconds",
				Help:    "Wall clock time spent simulating one run",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
			},
		),
		ResolutionBindings: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wifilab_resolution_bindings",
				Help: "Number of bindings in the last seeded address resolution table",
			},
		),
		ResolutionRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wifilab_resolution_requests_total",
				Help: "Total number of address resolution requests sent at runtime",
			},
		),
		EventsProcessedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wifilab_events_processed_total",
				Help: "Total number of simulation events processed",
			},
		),
		FlowThroughputMbps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wifilab_flow_throughput_mbps",
				Help: "Received throughput of a flow in Mbit/s",
			},
			[]string{"run", "flow"},
		),
		FlowLossRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wifilab_flow_loss_ratio",
				Help: "Fraction of transmitted packets of a flow never received",
			},
			[]string{"run", "flow"},
		),
		AggregateThroughputMbps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wifilab_aggregate_throughput_mbps",
				Help: "Summed throughput of every flow of a run in Mbit/s",
			},
			[]string{"run"},
		),
	}
}

// Registry exposes the private registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveRun(outcome string, wall time.Duration) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(outcome).Inc()
	r.RunWallSeconds.Observe(wall.Seconds())
}

func (r *Recorder) ObserveResolution(bindings int, requests uint64) {
	if r == nil {
		return
	}
	r.ResolutionBindings.Set(float64(bindings))
	r.ResolutionRequestsTotal.Add(float64(requests))
}

func (r *Recorder) ObserveEvents(n uint64) {
	if r == nil {
		return
	}
	r.EventsProcessedTotal.Add(float64(n))
}

func (r *Recorder) ObserveFlow(run, flow string, throughputMbps, lossRatio float64) {
	if r == nil {
		return
	}
	r.FlowThroughputMbps.WithLabelValues(run, flow).Set(throughputMbps)
	r.FlowLossRatio.WithLabelValues(run, flow).Set(lossRatio)
}

func (r *Recorder) ObserveAggregate(run string, throughputMbps float64) {
	if r == nil {
		return
	}
	r.AggregateThroughputMbps.WithLabelValues(run).Set(throughputMbps)
}

// WriteTextfile dumps the registry in the text exposition format, for collection by
// the node exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

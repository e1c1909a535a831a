// Package metrics records action outcomes as Prometheus metrics and writes
// them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opmodel/subctl/internal/action"
)

const namespace = "subctl"

// Recorder holds one registry per process.
type Recorder struct {
	registry *prometheus.Registry

	actions  *prometheus.CounterVec
	updates  *prometheus.CounterVec
	duration *prometheus.GaugeVec
	lastRun  *prometheus.GaugeVec
}

// NewRecorder registers every metric on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions run, by client, action and outcome.",
		}, []string{"client", "action", "outcome"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Local or remote changes made, by client and action.",
		}, []string{"client", "action"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of the last batch, by client.",
		}, []string{"client"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_last_run_timestamp_seconds",
			Help:      "Unix time the last batch finished, by client.",
		}, []string{"client"}),
	}
	r.registry.MustRegister(r.actions, r.updates, r.duration, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observer returns an action.Observer labelled with client.
func (r *Recorder) Observer(client string) action.Observer {
	return func(res action.Result) {
		kind := string(res.Kind)
		r.actions.WithLabelValues(client, kind, res.Outcome.String()).Inc()
		if res.Report != nil {
			r.updates.WithLabelValues(client, kind).Add(float64(res.Report.UpdateCount()))
		}
	}
}

// ObserveBatch records a finished batch for client.
func (r *Recorder) ObserveBatch(client string, started, finished time.Time) {
	r.duration.WithLabelValues(client).Set(finished.Sub(started).Seconds())
	r.lastRun.WithLabelValues(client).Set(float64(finished.Unix()))
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

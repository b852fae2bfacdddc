// Package metrics records operation timings and outcomes for the workflow,
// the HTTP client and the local engine.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder observes the outcome of a named operation.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Noop discards observations.
type Noop struct{}

// Observe implements Recorder.
func (Noop) Observe(context.Context, string, bool, time.Duration) {}

// Prometheus publishes a duration histogram and an outcome counter, both
// labelled by operation and status.
type Prometheus struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg. A nil reg uses the default
// registerer. Registering twice on the same registry reuses the existing
// collectors.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contractgen",
		Name:      "operation_duration_seconds",
		Help:      "Duration of contract generation operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contractgen",
		Name:      "operations_total",
		Help:      "Count of contract generation operations by outcome.",
	}, []string{"operation", "status"})

	if err := reg.Register(durations); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		durations = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(results); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		results = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &Prometheus{durations: durations, results: results}, nil
}

// Observe implements Recorder.
func (p *Prometheus) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	p.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
	p.results.WithLabelValues(operation, status).Inc()
}

// Results exposes the outcome counter for inspection.
func (p *Prometheus) Results() *prometheus.CounterVec { return p.results }

// Since is a helper for deferred observation:
//
//	defer metrics.Since(ctx, rec, "generate", time.Now(), &err)
func Since(ctx context.Context, rec Recorder, operation string, start time.Time, errp *error) {
	if rec == nil {
		return
	}
	success := errp == nil || *errp == nil
	rec.Observe(ctx, operation, success, time.Since(start))
}

// Package telemetry records route planning metrics in Prometheus.
package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is what services report to.
type Recorder interface {
	// Operation counts a service call by outcome ("ok" or an error code).
	Operation(op, outcome string, d time.Duration)
	// SimulationApplied records how long an apply transaction took.
	SimulationApplied(d time.Duration)
	// Revalidated records a placement revalidation and how many flags it changed.
	Revalidated(placements, changed int)
	// SimulationWarnings records the warning count of a delta computation.
	SimulationWarnings(n int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Operation(string, string, time.Duration) {}
func (Nop) SimulationApplied(time.Duration)         {}
func (Nop) Revalidated(int, int)                    {}
func (Nop) SimulationWarnings(int)                  {}

// PromSink implements Recorder with Prometheus collectors.
type PromSink struct {
	ops          *prometheus.CounterVec
	opLatency    *prometheus.HistogramVec
	applyLatency prometheus.Histogram
	revalidated  *prometheus.CounterVec
	warnings     prometheus.Histogram
}

// NewPromSink registers the collectors on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the collectors on reg. A nil registerer
// defaults to the global one. Collectors already registered by an earlier
// sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "route_operations_total",
		Help: "Route service operations by outcome",
	}, []string{"operation", "outcome"})
	opLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "route_operation_duration_seconds",
		Help:    "Route service operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	applyLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "route_simulation_apply_duration_seconds",
		Help:    "Duration of the simulation apply transaction",
		Buckets: prometheus.DefBuckets,
	})
	revalidated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "route_placement_revalidations_total",
		Help: "Placements checked and flags changed by layout revalidation",
	}, []string{"result"})
	warnings := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "route_simulation_warnings",
		Help:    "Warnings produced per simulation delta computation",
		Buckets: []float64{0, 1, 2, 5, 10, 25},
	})

	var err error
	if ops, err = register(reg, ops); err != nil {
		return nil, err
	}
	if opLatency, err = register(reg, opLatency); err != nil {
		return nil, err
	}
	if applyLatency, err = register(reg, applyLatency); err != nil {
		return nil, err
	}
	if revalidated, err = register(reg, revalidated); err != nil {
		return nil, err
	}
	if warnings, err = register(reg, warnings); err != nil {
		return nil, err
	}

	return &PromSink{
		ops:          ops,
		opLatency:    opLatency,
		applyLatency: applyLatency,
		revalidated:  revalidated,
		warnings:     warnings,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) Operation(op, outcome string, d time.Duration) {
	s.ops.WithLabelValues(op, outcome).Inc()
	s.opLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (s *PromSink) SimulationApplied(d time.Duration) {
	s.applyLatency.Observe(d.Seconds())
}

func (s *PromSink) Revalidated(placements, changed int) {
	s.revalidated.WithLabelValues("checked").Add(float64(placements))
	s.revalidated.WithLabelValues("changed").Add(float64(changed))
}

func (s *PromSink) SimulationWarnings(n int) {
	s.warnings.Observe(float64(n))
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes Prometheus instrumentation for lifecycle
// operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors the dispatcher and API feed.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Networks          prometheus.Gauge
	Interfaces        prometheus.Gauge
	Namespaces        prometheus.Gauge
	registry          *prometheus.Registry
}

// New creates the collectors on a dedicated registry so tests never clash
// on the global default.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fognet",
			Name:      "operations_total",
			Help:      "Lifecycle operations by verb and outcome.",
		}, []string{"operation", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fognet",
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
		Networks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fognet",
			Name:      "networks",
			Help:      "Virtual networks currently registered.",
		}),
		Interfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fognet",
			Name:      "interfaces",
			Help:      "Virtual interfaces currently registered.",
		}),
		Namespaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fognet",
			Name:      "namespaces",
			Help:      "Network namespaces currently registered.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.OperationsTotal, m.OperationDuration, m.Networks, m.Interfaces, m.Namespaces)
	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records one operation's outcome and latency.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

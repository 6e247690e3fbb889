// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rewritekit/rw/rewrite"
)

// Unit outcomes.
const (
	Changed   = "changed"
	Unchanged = "unchanged"
	Invalid   = "invalid"
	Failed    = "failed"
)

// Metrics counts what runs did. It is safe for concurrent use.
type Metrics struct {
	reg      *prometheus.Registry
	rules    *prometheus.CounterVec
	units    *prometheus.CounterVec
	passes   prometheus.Counter
	failures prometheus.Counter
}

// NewMetrics returns a Metrics with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		rules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rw_rule_applications_total",
			Help: "Edits made, by rule.",
		}, []string{"rule"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rw_units_total",
			Help: "Units processed, by outcome.",
		}, []string{"outcome"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rw_passes_total",
			Help: "Rewrite passes run.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rw_synthesis_failures_total",
			Help: "Template syntheses that failed.",
		}),
	}
	m.reg.MustRegister(m.rules, m.units, m.passes, m.failures)
	return m
}

// Observe records the outcome of running rules on one unit.
// report may be nil when err is set.
func (m *Metrics) Observe(report *rewrite.Report, err error) {
	switch {
	case err != nil:
		m.units.WithLabelValues(Failed).Inc()
	case report.Invalid != nil:
		m.units.WithLabelValues(Invalid).Inc()
	case report.Changed:
		m.units.WithLabelValues(Changed).Inc()
	default:
		m.units.WithLabelValues(Unchanged).Inc()
	}
	if report == nil {
		return
	}
	for rule, n := range report.Hits {
		m.rules.WithLabelValues(rule).Add(float64(n))
	}
	m.passes.Add(float64(report.Passes))
	m.failures.Add(float64(report.Failures))
}

// WriteTextfile writes the metrics to name in the text exposition
// format, for the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(name string) error {
	return prometheus.WriteToTextfile(name, m.reg)
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

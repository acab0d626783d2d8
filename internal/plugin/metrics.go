// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Metrics counts hook outcomes and real calls. A nil *Metrics records
// nothing.
type Metrics struct {
	HookResults *prometheus.CounterVec
	RealCalls   *prometheus.CounterVec
	Superseded  *prometheus.CounterVec
	Attached    prometheus.Gauge
}

// NewMetrics creates and registers the plugin metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HookResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qmm_plugin_hook_results_total",
				Help: "Plugin hook invocations by plugin, phase and reported result",
			},
			[]string{"plugin", "phase", "result"},
		),
		RealCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qmm_real_calls_total",
				Help: "Intercepted calls passed on to the mod or engine, by target",
			},
			[]string{"direction"},
		),
		Superseded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qmm_superseded_calls_total",
				Help: "Intercepted calls a plugin superseded, by target",
			},
			[]string{"direction"},
		),
		Attached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qmm_plugins_attached",
			Help: "Number of attached plugins",
		}),
	}

	reg.MustRegister(m.HookResults)
	reg.MustRegister(m.RealCalls)
	reg.MustRegister(m.Superseded)
	reg.MustRegister(m.Attached)

	return m
}

func (m *Metrics) hook(plugin, phase string, res qmmapi.Result) {
	if m != nil {
		m.HookResults.WithLabelValues(plugin, phase, res.String()).Inc()
	}
}

func (m *Metrics) real(dir engine.Direction) {
	if m != nil {
		m.RealCalls.WithLabelValues(dir.String()).Inc()
	}
}

func (m *Metrics) superseded(dir engine.Direction) {
	if m != nil {
		m.Superseded.WithLabelValues(dir.String()).Inc()
	}
}

func (m *Metrics) attached(n int) {
	if m != nil {
		m.Attached.Set(float64(n))
	}
}

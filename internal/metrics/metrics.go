// Package metrics holds the Prometheus instruments of the generator control
// plane. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the control-plane counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	commandsSent   *prometheus.CounterVec // by kind: command, event
	eventsParsed   *prometheus.CounterVec // by event type
	malformedLines prometheus.Counter
	payloadErrors  prometheus.Counter
	activeFlows    prometheus.Gauge
	sessions       prometheus.Gauge
	selections     *prometheus.CounterVec // by respondent id
}

// New creates the instruments and registers them with a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mgen",
			Subsystem: "session",
			Name:      "commands_sent_total",
			Help:      "Messages sent over the command channel",
		}, []string{"kind"}),
		eventsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mgen",
			Subsystem: "log",
			Name:      "events_parsed_total",
			Help:      "Log events parsed, by event type",
		}, []string{"type"}),
		malformedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mgen",
			Subsystem: "log",
			Name:      "malformed_lines_total",
			Help:      "Log lines dropped as malformed",
		}),
		payloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mgen",
			Subsystem: "log",
			Name:      "payload_decode_errors_total",
			Help:      "Events whose payload could not be decoded",
		}),
		activeFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mgen",
			Subsystem: "flow",
			Name:      "active",
			Help:      "Flows currently started",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mgen",
			Subsystem: "session",
			Name:      "open",
			Help:      "Sessions currently open",
		}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mgen",
			Subsystem: "responder",
			Name:      "selections_total",
			Help:      "Responder selections, by chosen respondent",
		}, []string{"respondent"}),
	}

	for _, c := range []prometheus.Collector{
		m.commandsSent, m.eventsParsed, m.malformedLines, m.payloadErrors,
		m.activeFlows, m.sessions, m.selections,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry the instruments are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CommandSent(kind string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventParsed(eventType string) {
	if m == nil {
		return
	}
	m.eventsParsed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) MalformedLine() {
	if m == nil {
		return
	}
	m.malformedLines.Inc()
}

func (m *Metrics) PayloadError() {
	if m == nil {
		return
	}
	m.payloadErrors.Inc()
}

// SetActiveFlows records the number of started flows.
func (m *Metrics) SetActiveFlows(n int) {
	if m == nil {
		return
	}
	m.activeFlows.Set(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) Selected(respondent string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(respondent).Inc()
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.CommandSent("event")
	m.CommandSent("event")
	m.CommandSent("command")
	m.EventParsed("RECV")
	m.MalformedLine()
	m.PayloadError()
	m.SetActiveFlows(1)
	m.SessionOpened()
	m.Selected("2")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsSent.WithLabelValues("event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsSent.WithLabelValues("command")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsParsed.WithLabelValues("RECV")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.malformedLines))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payloadErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeFlows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selections.WithLabelValues("2")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CommandSent("event")
		m.EventParsed("RECV")
		m.MalformedLine()
		m.PayloadError()
		m.SetActiveFlows(3)
		m.SessionOpened()
		m.SessionClosed()
		m.Selected("1")
	})
	assert.Nil(t, m.Registry())
}

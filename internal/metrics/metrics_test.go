package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, l := range m.GetLabel() {
				key += "|" + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Submission(OutcomeAccepted, "")
		m.Publish(OutcomePublished)
		m.Delivery(OutcomeAcked)
		m.Retrieval(OutcomeNotFound)
		m.ObserveStore("create", time.Now(), nil)
		m.BrokerState(2)
		m.FeedConnections(3)
		m.FeedEvent(OutcomeBroadcast)
	})
}

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Submission(OutcomeRejected, "MISSING_CATEGORY")
	m.Delivery(OutcomeRequeued)
	m.Delivery(OutcomeRequeued)
	m.ObserveStore("sample", time.Now(), errors.New("boom"))
	m.BrokerState(2)
	m.FeedConnections(1)

	got := gather(t, reg)
	assert.Equal(t, 1.0, got["trivia_submissions_total|outcome=rejected|reason=MISSING_CATEGORY"])
	assert.Equal(t, 2.0, got["trivia_etl_deliveries_total|outcome=requeued"])
	assert.Equal(t, 1.0, got["trivia_store_duration_seconds|op=sample|status=error"])
	assert.Equal(t, 2.0, got["trivia_broker_session_state"])
	assert.Equal(t, 1.0, got["trivia_feed_connections"])
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

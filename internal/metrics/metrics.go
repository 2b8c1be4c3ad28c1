package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the pipeline counters.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
	OutcomePublished    = "published"
	OutcomeTimeout      = "timeout"
	OutcomeUnavailable  = "unavailable"
	OutcomeAcked        = "acked"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
	OutcomePoison       = "poison"
	OutcomeNotFound     = "not_found"
	OutcomeBroadcast    = "broadcast"
	OutcomeDropped      = "dropped"
)

// Metrics holds the Prometheus collectors for the ingestion and retrieval paths.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	submissions  *prometheus.CounterVec
	publishes    *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	retrievals   *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	brokerState  prometheus.Gauge
	feedClients  prometheus.Gauge
	feedEvents   *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "submissions_total",
			Help:      "Question submissions by outcome.",
		}, []string{"outcome", "reason"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "queue_publishes_total",
			Help:      "Queue publish attempts by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "etl_deliveries_total",
			Help:      "Queue deliveries handled by the ETL consumer, by outcome.",
		}, []string{"outcome"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "retrievals_total",
			Help:      "Question retrieval requests by outcome.",
		}, []string{"outcome"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trivia",
			Name:      "store_duration_seconds",
			Help:      "Latency of persistence gateway operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		brokerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trivia",
			Name:      "broker_session_state",
			Help:      "Broker session state: 0 disconnected, 1 connecting, 2 connected, 3 backoff.",
		}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trivia",
			Name:      "feed_connections",
			Help:      "Open question feed WebSocket connections.",
		}),
		feedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "feed_events_total",
			Help:      "Question feed events by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.submissions, m.publishes, m.deliveries, m.retrievals, m.storeLatency, m.brokerState, m.feedClients, m.feedEvents)
	return m
}

func (m *Metrics) Submission(outcome, reason string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) Publish(outcome string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Retrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
}

// ObserveStore records the duration of a gateway call started at start.
func (m *Metrics) ObserveStore(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeLatency.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// BrokerState records the numeric session state.
func (m *Metrics) BrokerState(state int) {
	if m == nil {
		return
	}
	m.brokerState.Set(float64(state))
}

// FeedConnections records the number of open feed connections.
func (m *Metrics) FeedConnections(n int) {
	if m == nil {
		return
	}
	m.feedClients.Set(float64(n))
}

func (m *Metrics) FeedEvent(outcome string) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(outcome).Inc()
}

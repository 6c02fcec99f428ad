package jobcue

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "jobcue"

// Request outcomes recorded in jobcue_requests_total.
const (
	outcomeSucceeded   = "succeeded"
	outcomeQueued      = "queued"
	outcomeOffline     = "offline"
	outcomeAuthExpired = "auth_expired"
	outcomeStatusError = "status_error"
	outcomeTransport   = "transport_error"
)

// Replay results recorded in jobcue_replays_total.
const (
	replaySucceeded = "succeeded"
	replayFailed    = "failed"
)

type metrics struct {
	requests *prometheus.CounterVec
	enqueued prometheus.Counter
	replays  *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	depth    prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Requests passed through Execute, by method and outcome.",
		}, []string{"method", "outcome"}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queue_enqueued_total",
			Help:      "Requests deferred to the durable queue.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replays_total",
			Help:      "Queued requests replayed by the drainer, by result.",
		}, []string{"result"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queue_dropped_total",
			Help:      "Queued requests dropped without success, by reason.",
		}, []string{"reason"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Entries in the durable queue after the last change.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.enqueued, m.replays, m.dropped, m.depth}
}

// register adds the collectors to reg. Collectors already registered by a
// previous client on the same registry are reused.
func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return fmt.Errorf("registering metrics : %w", err)
			}
			m.adopt(c, are.ExistingCollector)
		}
	}
	return nil
}

func (m *metrics) adopt(mine, existing prometheus.Collector) {
	switch mine {
	case m.requests:
		m.requests = existing.(*prometheus.CounterVec)
	case m.enqueued:
		m.enqueued = existing.(prometheus.Counter)
	case m.replays:
		m.replays = existing.(*prometheus.CounterVec)
	case m.dropped:
		m.dropped = existing.(*prometheus.CounterVec)
	case m.depth:
		m.depth = existing.(prometheus.Gauge)
	}
}

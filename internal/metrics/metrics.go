// Package metrics holds the adapter's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slackwire"

// Set groups the counters shared by the dispatcher and the sender.
// A nil *Set is valid and counts nothing.
type Set struct {
	RecordsDigested *prometheus.CounterVec // by classification kind
	ListenerPanics  prometheus.Counter
	DecodeFailures  prometheus.Counter
	Sends           *prometheus.CounterVec // by transport
	SendFailures    *prometheus.CounterVec // by transport
}

// New creates the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		RecordsDigested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_digested_total",
			Help:      "Inbound records matched per classification kind.",
		}, []string{"kind"}),
		ListenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_panics_total",
			Help:      "Listener callbacks that panicked during fan-out.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Inbound messages rejected by the decoder.",
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Outbound messages per transport.",
		}, []string{"transport"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound send errors per transport.",
		}, []string{"transport"}),
	}
	if reg != nil {
		reg.MustRegister(s.RecordsDigested, s.ListenerPanics, s.DecodeFailures, s.Sends, s.SendFailures)
	}
	return s
}

func (s *Set) DigestedKind(kind string) {
	if s != nil {
		s.RecordsDigested.WithLabelValues(kind).Inc()
	}
}

func (s *Set) ListenerPanic() {
	if s != nil {
		s.ListenerPanics.Inc()
	}
}

func (s *Set) DecodeFailure() {
	if s != nil {
		s.DecodeFailures.Inc()
	}
}

func (s *Set) Sent(transport string) {
	if s != nil {
		s.Sends.WithLabelValues(transport).Inc()
	}
}

func (s *Set) SendFailed(transport string) {
	if s != nil {
		s.SendFailures.WithLabelValues(transport).Inc()
	}
}

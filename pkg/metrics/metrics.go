// Package metrics defines the prometheus instrumentation shared by the
// transport, bus, and engine. Collectors are created per instance and
// registered explicitly; there is no package-level state.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ensemble"

// Metrics bundles the collectors the core components update.
type Metrics struct {
	FramesIn            prometheus.Counter
	FramesOut           prometheus.Counter
	SendFailures        prometheus.Counter
	DuplicateFragments  prometheus.Counter
	MessagesReassembled prometheus.Counter
	MalformedMessages   prometheus.Counter
	BuffersEvicted      prometheus.Counter
	RunsTotal           *prometheus.CounterVec
	LiveSessions        prometheus.Gauge
}

// New builds the collector set and registers it with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_in_total",
			Help: "Inbound transport frames received across all sessions.",
		}),
		FramesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_out_total",
			Help: "Outbound transport frames written across all sessions.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_failures_total",
			Help: "Per-session write failures during fan-out dispatch.",
		}),
		DuplicateFragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "duplicate_fragments_total",
			Help: "Inbound fragments discarded because their slot was already filled.",
		}),
		MessagesReassembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_reassembled_total",
			Help: "Complete messages reconstructed from fragments.",
		}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "malformed_messages_total",
			Help: "Reconstructed messages dropped because they failed to parse.",
		}),
		BuffersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reassembly_buffers_evicted_total",
			Help: "Partial reassembly buffers discarded by idle eviction.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Finished runs by terminal phase.",
		}, []string{"result"}),
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_sessions",
			Help: "Currently connected device sessions.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesIn, m.FramesOut, m.SendFailures,
			m.DuplicateFragments, m.MessagesReassembled, m.MalformedMessages,
			m.BuffersEvicted, m.RunsTotal, m.LiveSessions,
		)
	}
	return m
}

// NewNop returns an unregistered collector set, used as the default when a
// component is built without metrics wiring.
func NewNop() *Metrics {
	return New(nil)
}

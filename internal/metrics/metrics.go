package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicerelay"

// Metrics holds every relay collector. The zero value is not usable; use New.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	SessionsRejected *prometheus.CounterVec
	PacketsRouted    prometheus.Counter
	FramesDelivered  prometheus.Counter
	FramesDropped    *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
	UnknownSenders   prometheus.Counter
	MalformedFrames  prometheus.Counter
	RateLimited      prometheus.Counter
	RosterBroadcasts prometheus.Counter
	JournalDropped   prometheus.Counter
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently in the Active state.",
		}),
		SessionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Handshakes refused, by reason.",
		}, []string{"reason"}),
		PacketsRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_routed_total",
			Help:      "Audio packets that reached at least one listener.",
		}),
		FramesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Audio frames queued for listeners.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Audio frames dropped, by reason.",
		}, []string{"reason"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Deliveries to closed or broken sessions.",
		}),
		UnknownSenders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_sender_packets_total",
			Help:      "Audio packets from players no longer registered.",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Inbound frames that failed to decode.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_frames_total",
			Help:      "Inbound frames dropped by the per-session rate limit.",
		}),
		RosterBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_broadcasts_total",
			Help:      "Roster snapshots fanned out to all sessions.",
		}),
		JournalDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_dropped_events_total",
			Help:      "Presence events dropped because the journal queue was full.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActiveSessions,
		m.SessionsRejected,
		m.PacketsRouted,
		m.FramesDelivered,
		m.FramesDropped,
		m.DeliveryFailures,
		m.UnknownSenders,
		m.MalformedFrames,
		m.RateLimited,
		m.RosterBroadcasts,
		m.JournalDropped,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Router observer

// PacketRouted records one routed packet and its delivered frames.
func (m *Metrics) PacketRouted(recipients int) {
	if recipients > 0 {
		m.PacketsRouted.Inc()
	}
	m.FramesDelivered.Add(float64(recipients))
}

// FrameDropped records a dropped audio frame.
func (m *Metrics) FrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// DeliveryFailed records a failed delivery.
func (m *Metrics) DeliveryFailed() {
	m.DeliveryFailures.Inc()
}

// UnknownSender records a packet from an unregistered player.
func (m *Metrics) UnknownSender() {
	m.UnknownSenders.Inc()
}

// Session observer

// SessionOpened records a session entering Active.
func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// SessionClosed records an Active session closing.
func (m *Metrics) SessionClosed() {
	m.ActiveSessions.Dec()
}

// SessionRejected records a refused handshake.
func (m *Metrics) SessionRejected(reason string) {
	m.SessionsRejected.WithLabelValues(reason).Inc()
}

// MalformedFrame records an undecodable inbound frame.
func (m *Metrics) MalformedFrame() {
	m.MalformedFrames.Inc()
}

// FrameRateLimited records an inbound frame over the rate limit.
func (m *Metrics) FrameRateLimited() {
	m.RateLimited.Inc()
}

// RosterBroadcast records one roster fan-out.
func (m *Metrics) RosterBroadcast() {
	m.RosterBroadcasts.Inc()
}

// JournalEventDropped records a presence event lost to a full journal queue.
func (m *Metrics) JournalEventDropped() {
	m.JournalDropped.Inc()
}

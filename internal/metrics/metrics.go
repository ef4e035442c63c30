// Package metrics exposes match activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"versusmatch/internal/domain"
	"versusmatch/internal/ports"
)

const namespace = "versusmatch"

// Match implements ports.Metrics.
type Match struct {
	started           *prometheus.CounterVec
	ended             *prometheus.CounterVec
	active            prometheus.Gauge
	turns             *prometheus.CounterVec
	responses         *prometheus.CounterVec
	voicePackets      *prometheus.CounterVec
	recognitionErrors prometheus.Counter
}

func NewMatch() *Match {
	return &Match{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "matches_started_total",
				Help:      "Total number of matches started",
			},
			[]string{"match_type"},
		),
		ended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "matches_ended_total",
				Help:      "Total number of matches ended",
			},
			[]string{"match_type"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "matches_active",
				Help:      "Number of matches currently running",
			},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turn_switches_total",
				Help:      "Total number of speaking turn switches",
			},
			[]string{"to"}, // to: user, partner
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "partner_responses_total",
				Help:      "Total number of partner response steps by outcome",
			},
			[]string{"outcome"},
		),
		voicePackets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voice_packets_total",
				Help:      "Total number of inbound peer voice packets by outcome",
			},
			[]string{"outcome"}, // outcome: played, echo, decode_failed
		),
		recognitionErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recognition_errors_total",
				Help:      "Total number of speech recognition errors",
			},
		),
	}
}

// Collectors lists everything to register.
func (m *Match) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.started,
		m.ended,
		m.active,
		m.turns,
		m.responses,
		m.voicePackets,
		m.recognitionErrors,
	}
}

func (m *Match) MatchStarted(matchType domain.MatchType) {
	m.started.WithLabelValues(string(matchType)).Inc()
	m.active.Inc()
}

func (m *Match) MatchEnded(matchType domain.MatchType) {
	m.ended.WithLabelValues(string(matchType)).Inc()
	m.active.Dec()
}

func (m *Match) TurnSwitched(to domain.Speaker) {
	m.turns.WithLabelValues(string(to)).Inc()
}

func (m *Match) PartnerResponse(outcome string) {
	m.responses.WithLabelValues(outcome).Inc()
}

func (m *Match) VoicePacket(outcome string) {
	m.voicePackets.WithLabelValues(outcome).Inc()
}

func (m *Match) RecognitionError() {
	m.recognitionErrors.Inc()
}

var _ ports.Metrics = (*Match)(nil)

// Relay counts voice relay traffic.
type Relay struct {
	peers    prometheus.Gauge
	messages *prometheus.CounterVec
}

func NewRelay() *Relay {
	return &Relay{
		peers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "peers",
				Help:      "Number of connected peers",
			},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "messages_total",
				Help:      "Total number of relay messages by status",
			},
			[]string{"status"}, // status: broadcast, rejected
		),
	}
}

func (r *Relay) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.peers, r.messages}
}

func (r *Relay) PeerJoined() {
	r.peers.Inc()
}

func (r *Relay) PeerLeft() {
	r.peers.Dec()
}

func (r *Relay) Message(status string) {
	r.messages.WithLabelValues(status).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "presence_relay"

// Relay outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeDuplicate = "duplicate"
	OutcomeShed      = "shed"
	OutcomeIgnored   = "ignored"
)

var (
	// Presence metrics
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with an authoritative connection",
		},
	)

	Sessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live handshaken connections",
		},
	)

	Broadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "onlineUsers broadcasts sent",
		},
	)

	HandshakeRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_rejected_total",
			Help:      "Connections terminated for a missing identity",
		},
		[]string{"transport"}, // "socketio" or "ws"
	)

	// Relay metrics
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "sendMessage events processed",
		},
		[]string{"outcome"},
	)

	MessagesPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_pushed_total",
			Help:      "Server-originated messages consumed from the bus",
		},
		[]string{"outcome"},
	)

	// Delivery metrics
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events shed by a full connection mailbox or outbound queue",
		},
		[]string{"kind"},
	)

	OutboundPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_published_total",
			Help:      "Outbound bus publish attempts",
		},
		[]string{"result"}, // "ok", "error", "open_circuit"
	)
)

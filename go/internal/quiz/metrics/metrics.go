// Package metrics declares the Prometheus collectors exported by the quiz server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks open WebSocket connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quizarena_ws_connections",
			Help: "Number of open WebSocket connections",
		},
	)

	// ActiveRooms tracks rooms with a running actor
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quizarena_active_rooms",
			Help: "Number of rooms with a running actor",
		},
	)

	// MessagesBroadcast counts outbound envelopes by type and delivery scope
	MessagesBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizarena_messages_sent_total",
			Help: "Total number of outbound messages",
		},
		[]string{"type", "scope"},
	)

	// SlowConnectionsPruned counts connections dropped because their send buffer was full
	SlowConnectionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizarena_ws_pruned_total",
			Help: "Total number of connections pruned for a full send buffer",
		},
	)

	// BroadcastsDropped counts outbound messages discarded because the broadcast queue was full
	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizarena_broadcasts_dropped_total",
			Help: "Total number of outbound messages dropped on a full broadcast queue",
		},
	)

	// ClientMessages counts inbound client messages by type and outcome
	ClientMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizarena_client_messages_total",
			Help: "Total number of inbound client messages",
		},
		[]string{"type", "outcome"},
	)

	// QuestionAdvances counts advances by trigger (all_answered, timeout, reconnect)
	QuestionAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizarena_question_advances_total",
			Help: "Total number of question advances",
		},
		[]string{"trigger"},
	)

	// StaleTimerFires counts timer bodies that found the room had already moved on
	StaleTimerFires = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizarena_stale_timer_fires_total",
			Help: "Total number of timer fires discarded by the index guard",
		},
	)

	// GamesFinished counts games reaching a terminal status
	GamesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizarena_games_finished_total",
			Help: "Total number of games that ended",
		},
		[]string{"status", "path"},
	)

	// EventsPublished counts lifecycle events relayed to the message bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizarena_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"event_type", "success"},
	)

	// EventPublishDuration measures publish latency
	EventPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizarena_event_publish_duration_seconds",
			Help:    "Lifecycle event publish duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// RewardRequests counts reward hook calls by outcome
	RewardRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizarena_reward_requests_total",
			Help: "Total number of reward requests",
		},
		[]string{"success"},
	)
)

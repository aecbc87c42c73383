package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minesweeper_active_rooms",
			Help: "Rooms currently held by the registry",
		},
	)
	ActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minesweeper_active_connections",
			Help: "Open websocket connections by channel",
		},
		[]string{"channel"},
	)
	GamesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minesweeper_games_started_total",
			Help: "Games started across all rooms",
		},
	)
	GamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesweeper_games_finished_total",
			Help: "Games finished, by terminal reason",
		},
		[]string{"reason"},
	)
	IntentsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesweeper_intents_dispatched_total",
			Help: "Inbound client intents routed by the dispatcher",
		},
		[]string{"type"},
	)
	MessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minesweeper_ws_messages_sent_total",
			Help: "Websocket messages written to clients",
		},
	)
	ChatDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minesweeper_chat_rate_limited_total",
			Help: "Chat messages silently dropped by the cooldown",
		},
	)
	JournalWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minesweeper_journal_write_errors_total",
			Help: "Journal disk operations that failed",
		},
	)
)

func init() {
	prometheus.MustRegister(ActiveRooms)
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(GamesStarted)
	prometheus.MustRegister(GamesFinished)
	prometheus.MustRegister(IntentsDispatched)
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(ChatDropped)
	prometheus.MustRegister(JournalWriteErrors)
}

package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidx_realtime_connection_state",
		Help: "Realtime channel state (0=disconnected, 1=connecting, 2=connected)",
	})

	connectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidx_realtime_connect_attempts_total",
			Help: "Websocket dial attempts by result",
		},
		[]string{"result"},
	)

	eventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidx_realtime_events_total",
			Help: "Inbound realtime events by name",
		},
		[]string{"event"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidx_realtime_events_dropped_total",
			Help: "Inbound realtime events that were not delivered, by reason",
		},
		[]string{"reason"},
	)

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidx_realtime_subscriptions",
		Help: "Jobs currently in the subscription interest set",
	})

	framesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidx_realtime_frames_sent_total",
			Help: "Outbound realtime frames by event name",
		},
		[]string{"event"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client metrics for the realtime session layer.
var (
	// Connection metrics
	ConnectionUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentdeck_connection_up",
			Help: "Whether the gateway connection is established (1=connected, 0=not)",
		},
	)

	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentdeck_reconnects_total",
			Help: "Total number of reconnection attempts scheduled",
		},
	)

	OutboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentdeck_outbound_queue_depth",
			Help: "Messages waiting in the outbound queue while disconnected",
		},
	)

	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdeck_frames_total",
			Help: "Total number of websocket frames",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)

	DroppedFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdeck_dropped_frames_total",
			Help: "Inbound frames dropped before dispatch",
		},
		[]string{"reason"}, // reason: malformed/unknown_type/stale_epoch/unbound
	)

	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdeck_turns_total",
			Help: "Total number of conversation turns by outcome",
		},
		[]string{"status"}, // status: completed/failed/rejected
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentdeck_turn_duration_seconds",
			Help:    "Time from sending a turn to its terminal event",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
		[]string{"status"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdeck_tokens_total",
			Help: "Total number of tokens reported by completed turns",
		},
		[]string{"type"}, // type: input/output
	)

	// Session metrics
	SessionResumesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdeck_session_resumes_total",
			Help: "Transcript hydration attempts on agent selection",
		},
		[]string{"source"}, // source: gateway/cache/empty
	)
)

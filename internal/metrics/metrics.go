package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PromptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptcraft_prompts_total",
			Help: "Prompt submissions by generation outcome (success or failure kind).",
		},
		[]string{"outcome"},
	)

	GenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptcraft_generation_seconds",
		Help:    "Duration of image generation calls.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
	})

	VotesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptcraft_votes_total",
		Help: "Accepted peer votes.",
	})

	PhaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptcraft_phase_transitions_total",
			Help: "Session phase transitions by target phase.",
		},
		[]string{"to"},
	)

	ConnectedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptcraft_connected_players",
		Help: "Players with a live connection, admin included.",
	})

	StoreFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptcraft_store_failures_total",
			Help: "Failed best-effort persistence or upload operations.",
		},
		[]string{"op"},
	)

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptcraft_rate_limited_total",
		Help: "Prompt submissions rejected by the per-connection limiter.",
	})

	SlowSocketsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptcraft_slow_sockets_dropped_total",
		Help: "Sockets closed because their send queue was full.",
	})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CardResolutions counts ResolveOrCreateCard outcomes.
	// action: created, updated, failed
	CardResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "pipeline",
			Name:      "card_resolutions_total",
			Help:      "Card resolutions by outcome",
		},
		[]string{"action"},
	)

	// CardResolutionConflicts counts create attempts that lost the open-card race.
	CardResolutionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "pipeline",
			Name:      "card_resolution_conflicts_total",
			Help:      "Card creations that hit an existing open card and were merged",
		},
	)

	AssignmentPatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "conversations",
			Name:      "assignment_patches_total",
			Help:      "Conversation assignment patches by outcome",
		},
		[]string{"status"},
	)

	// HistoryWrites counts best-effort side effects.
	// outcome: ok, failed
	HistoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "history",
			Name:      "writes_total",
			Help:      "Best-effort history writes by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RealtimePublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "realtime",
			Name:      "events_published_total",
			Help:      "Change events published by table and type",
		},
		[]string{"table", "type"},
	)

	RealtimeEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "realtime",
			Name:      "subscribers_evicted_total",
			Help:      "Subscribers dropped for falling behind",
		},
	)

	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "inbound",
			Name:      "messages_total",
			Help:      "Inbound provider messages by outcome",
		},
		[]string{"status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crm",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)
)

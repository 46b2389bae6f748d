package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrs_matches_total",
		Help: "Sessions created by pairing a requester with a provider",
	}, []string{"room"})

	SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrs_sessions_completed_total",
		Help: "Sessions completed, by end reason",
	}, []string{"room", "reason"})

	BilledUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrs_billed_units_total",
		Help: "Currency units billed at session end",
	}, []string{"room"})

	SessionMinutes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vrs_session_minutes",
		Help:    "Billable whole minutes per completed session",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	WaitingParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vrs_waiting_participants",
		Help: "Participants currently waiting, by room and role",
	}, []string{"room", "role"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vrs_active_sessions",
		Help: "Sessions currently active",
	})

	JoinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrs_join_rejections_total",
		Help: "Rejected join attempts, by error code",
	}, []string{"code"})

	RecordsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrs_session_records_persisted_total",
		Help: "Session records written to storage",
	})

	RecordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrs_session_record_failures_total",
		Help: "Session record write failures (retry or dropped)",
	}, []string{"outcome"})
)

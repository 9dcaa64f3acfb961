package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts verification sessions by mode and terminal outcome.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceattend_sessions_total",
		Help: "Verification sessions by mode and outcome.",
	}, []string{"mode", "outcome"})

	// MatchDistance observes cosine distances from verify-mode comparisons.
	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "faceattend_match_distance",
		Help:    "Cosine distance of live embeddings against enrollments.",
		Buckets: prometheus.LinearBuckets(0, 0.05, 20),
	})

	// TransitionsTotal counts attendance transitions by purpose and result.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faceattend_attendance_transitions_total",
		Help: "Attendance state machine transitions by purpose and result.",
	}, []string{"purpose", "result"})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"brandhub/backend/internal/research"
)

var (
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandhub_research_sessions_started_total",
			Help: "Research sessions started",
		},
		[]string{"complexity", "tier"},
	)

	SessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandhub_research_sessions_finished_total",
			Help: "Research sessions finished, by terminal status and error code",
		},
		[]string{"complexity", "status", "code"},
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandhub_research_session_duration_seconds",
			Help:    "Wall-clock research session duration",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
		[]string{"complexity"},
	)

	SessionCostUSD = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandhub_research_session_cost_usd",
			Help:    "Accumulated cost per research session in USD",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
		},
		[]string{"complexity"},
	)

	RoundsCompleted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brandhub_research_rounds_completed",
			Help:    "Rounds completed per research session",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	SearchLegs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandhub_research_search_legs_total",
			Help: "Search legs issued, by outcome",
		},
		[]string{"outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandhub_research_cache_lookups_total",
			Help: "Result cache lookups, by result",
		},
		[]string{"result"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandhub_research_persistence_failures_total",
			Help: "Failed writes of finished sessions, by sink",
		},
		[]string{"sink"},
	)
)

// RecordSession records a finished session's outcome, spend and legs.
func RecordSession(session *research.Session) {
	if session == nil {
		return
	}
	complexity := string(session.Complexity)
	SessionsFinished.WithLabelValues(complexity, string(session.Status), codeLabel(session.Code)).Inc()
	SessionDuration.WithLabelValues(complexity).Observe(session.Duration().Seconds())
	SessionCostUSD.WithLabelValues(complexity).Observe(session.AccumulatedCost)
	RoundsCompleted.Observe(float64(session.RoundsCompleted))

	for _, round := range session.Rounds {
		for _, result := range round.SearchResults {
			outcome := "ok"
			switch {
			case result.Failed:
				outcome = "failed"
			case len(result.Sources) == 0:
				outcome = "empty"
			}
			SearchLegs.WithLabelValues(outcome).Inc()
		}
	}
}

func codeLabel(code research.ErrorCode) string {
	if code == research.CodeNone {
		return "none"
	}
	return string(code)
}

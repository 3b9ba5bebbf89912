package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"church-roster/internal/conflict"
)

var (
	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_conflicts_total",
		Help: "Conflicts reported by conflict checks, by type and severity",
	}, []string{"type", "severity"})

	conflictChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roster_conflict_checks_total",
		Help: "Number of conflict checks run",
	})

	suggestionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_suggestion_requests_total",
		Help: "Suggestion requests, by result (ok, invalid, error)",
	}, []string{"result"})

	pipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_pipeline_runs_total",
		Help: "Pipeline gate decisions, by decision (run, skip, error)",
	}, []string{"decision"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roster_pipeline_duration_seconds",
		Help:    "Time spent in a pipeline run, including skipped runs",
		Buckets: prometheus.DefBuckets,
	})

	aliasesAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roster_aliases_added_total",
		Help: "New alias entries created by name sync",
	})

	mergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roster_identity_merges_total",
		Help: "Identity merges that moved at least one alias",
	})
)

func recordConflicts(res conflict.Result) {
	conflictChecksTotal.Inc()
	for _, c := range res.Conflicts {
		conflictsTotal.WithLabelValues(string(c.Type), string(c.Severity)).Inc()
	}
}

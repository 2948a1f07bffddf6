package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_stage_duration_seconds",
			Help:    "Duration of each recommendation pipeline stage in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_stage_failures_total",
			Help: "Total number of pipeline runs that failed, by stage and reason",
		},
		[]string{"stage", "reason"},
	)

	Answers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_answers_total",
			Help: "Total number of answered questions by outcome",
		},
		[]string{"outcome"},
	)

	ComposerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_composer_fallbacks_total",
			Help: "Generated queries rejected by the guard and replaced by the template",
		},
	)
)

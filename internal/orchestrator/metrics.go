package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	answerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_answer_transitions_total",
			Help: "Answer state transitions, by target state.",
		},
		[]string{"state"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diligence_batch_duration_seconds",
			Help:    "Wall time from batch start until every question resolved.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
)

package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// callsTotal counts finished calls by provider and outcome ("ok" or an
	// error kind).
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diligence_remote_calls_total",
		Help: "Remote model calls by provider and outcome",
	}, []string{"provider", "outcome"})

	callAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "diligence_remote_call_attempts",
		Help:    "Attempts made per remote model call",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "diligence_remote_call_duration_seconds",
		Help:    "Wall time of remote model calls including retries",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})
)

package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stageRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "diligence_stage_runs_total",
		Help: "Review stage runs, by stage and outcome.",
	},
	[]string{"stage", "outcome"},
)

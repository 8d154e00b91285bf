package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipd_runs_total",
		Help: "Pipeline runs by terminal status.",
	}, []string{"status"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipd_step_duration_seconds",
		Help:    "Wall-clock duration of pipeline steps.",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
	}, []string{"step"})

	releasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipd_releases_total",
		Help: "Releases published from tag runs.",
	})
)

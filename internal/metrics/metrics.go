// Package metrics holds the prometheus collectors of the grading pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inpeak_grading_submissions_total",
			Help: "Grading submissions by result",
		},
		[]string{"result"}, // accepted, rejected, enqueue_failed
	)

	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inpeak_grading_outcomes_total",
			Help: "Processed grading messages by final stage",
		},
		[]string{"stage"}, // done, skipped, fetch, grade, parse, persist
	)

	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inpeak_grading_verdicts_total",
			Help: "Successful gradings by verdict",
		},
		[]string{"verdict"},
	)

	GradingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inpeak_grading_call_duration_seconds",
			Help:    "Latency of calls to the grading service",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inpeak_grading_processing_duration_seconds",
			Help:    "End to end handling time of one grading message",
			Buckets: prometheus.DefBuckets,
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inpeak_grading_in_flight",
			Help: "Grading messages currently being handled",
		},
	)
)

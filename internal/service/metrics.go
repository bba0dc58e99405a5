package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReviewsIngested counts appended reviews by platform and authenticity priority.
	ReviewsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_reviews_ingested_total",
			Help: "Total number of reviews appended to the review log",
		},
		[]string{"platform", "priority"},
	)

	// CrisisActive is the number of businesses currently in an active crisis.
	CrisisActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reputation_crisis_active_businesses",
			Help: "Number of businesses whose review-bombing condition currently holds",
		},
	)

	// CrisisChanges counts crisis lifecycle changes.
	CrisisChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_crisis_changes_total",
			Help: "Total number of crisis detections, clearances and dismissals",
		},
		[]string{"change"},
	)

	// RecoveryTransitions counts applied recovery case transitions.
	RecoveryTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_recovery_transitions_total",
			Help: "Total number of recovery case stage transitions applied",
		},
		[]string{"action", "to_stage"},
	)

	// StaleWrites counts compare-and-set writes that lost a race.
	StaleWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_stale_writes_total",
			Help: "Total number of version conflicts on recovery cases and experiments",
		},
		[]string{"resource"},
	)

	// ExperimentsCompleted counts completed experiments by outcome.
	ExperimentsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_experiments_completed_total",
			Help: "Total number of completed message experiments",
		},
		[]string{"outcome"},
	)
)

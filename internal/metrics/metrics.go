package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MarkAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusattend_mark_attempts_total",
		Help: "Attendance marking attempts, labelled by outcome.",
	}, []string{"outcome"})

	GeocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusattend_geocode_lookups_total",
		Help: "Reverse geocode lookups, labelled by status.",
	}, []string{"status"})

	RiskScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campusattend_risk_score",
		Help:    "Risk scores attached to recorded attendance.",
		Buckets: []float64{0, 10, 20, 30, 45, 60, 70, 85, 100},
	})

	ReconciledGrants = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusattend_reconciled_grants_total",
		Help: "Compensating point grants issued by the reconciliation loop.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusattend_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter.",
	})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "announcer"

var (
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "Total dispatch attempts by channel and outcome.",
		},
		[]string{"channel", "outcome"}, // outcome: "sent", "failed", "skipped", "already_sent"
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of one outbound dispatch call.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activation_scan_duration_seconds",
			Help:      "Duration of a full activation scan.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ScanCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activation_scan_candidates",
			Help:      "Number of active notifications found by the last scan.",
		},
	)

	NotificationsDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_deactivated_total",
			Help:      "Total notifications disabled by housekeeping after their window closed.",
		},
	)

	DeliveryRecordsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_records_purged_total",
			Help:      "Total delivery records removed by retention.",
		},
	)
)

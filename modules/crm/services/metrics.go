package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	crmProfileRecompute = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "profile",
		Name:      "recompute_total",
		Help:      "Total number of person profile recomputations broken down by result.",
	}, []string{"result"})

	crmProfileRecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crm",
		Subsystem: "profile",
		Name:      "recompute_duration_seconds",
		Help:      "Duration of a single person profile recomputation.",
		Buckets:   prometheus.DefBuckets,
	})

	crmProfileRollup = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "profile",
		Name:      "rollup_total",
		Help:      "Total number of full profile rollups broken down by result.",
	}, []string{"result"})

	crmLifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Total number of lifecycle transitions broken down by kind and result.",
	}, []string{"kind", "result"})

	crmCascadeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "cascade",
		Name:      "writes_total",
		Help:      "Total number of assignee name rewrites broken down by entity.",
	}, []string{"entity"})

	crmNotifierEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "notifier",
		Name:      "events_total",
		Help:      "Total number of person changed events emitted broken down by source and op.",
	}, []string{"source", "op"})
)

func recordRecompute(result string, start time.Time) {
	crmProfileRecompute.WithLabelValues(result).Inc()
	crmProfileRecomputeDuration.Observe(time.Since(start).Seconds())
}

func recordRollup(result string) {
	crmProfileRollup.WithLabelValues(result).Inc()
}

func recordTransition(kind, result string) {
	crmLifecycleTransitions.WithLabelValues(kind, result).Inc()
}

func recordCascadeWrite(entity string) {
	crmCascadeWrites.WithLabelValues(entity).Inc()
}

func recordNotifierEvent(source, op string) {
	crmNotifierEvents.WithLabelValues(source, op).Inc()
}

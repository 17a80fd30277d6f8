package locks

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	wait *prometheus.HistogramVec
	try  *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		wait: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a blocking lock.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"backend"}),
		try: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "lock",
			Name:      "try_total",
			Help:      "Non-blocking lock attempts by outcome.",
		}, []string{"backend", "result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueued   *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	coalesced  *prometheus.CounterVec
	dead       *prometheus.CounterVec
	cleaned    *prometheus.CounterVec
	latency    *prometheus.HistogramVec

	pending *prometheus.GaugeVec
	locked  *prometheus.GaugeVec
	leader  *prometheus.GaugeVec
}

var getMetrics = sync.OnceValue(func() *metrics {
	const ns, sub = "crm", "outbox"
	return &metrics{
		enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "enqueued_total",
			Help: "Messages written to an outbox table.",
		}, []string{"table", "topic"}),
		dispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "dispatched_total",
			Help: "Dispatch attempts by result.",
		}, []string{"table", "topic", "result"}),
		coalesced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "coalesced_total",
			Help: "Messages settled with the outcome of a newer message of the same key.",
		}, []string{"table", "topic"}),
		dead: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "dead_total",
			Help: "Messages that exhausted their attempts.",
		}, []string{"table", "topic"}),
		cleaned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "cleaned_total",
			Help: "Rows removed by the cleaner.",
		}, []string{"table", "state"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "dispatch_seconds",
			Help:    "Dispatch latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"table", "topic"}),
		pending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "pending",
			Help: "Unpublished messages.",
		}, []string{"table"}),
		locked: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "locked",
			Help: "Unpublished messages currently claimed by a relay.",
		}, []string{"table"}),
		leader: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "relay_leader",
			Help: "1 while this process relays the table.",
		}, []string{"table"}),
	}
})

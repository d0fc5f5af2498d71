package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "remnabot_dispatch_queue_depth",
		Help: "Updates currently buffered per tenant queue.",
	}, []string{"tenant"})

	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remnabot_dispatch_processed_total",
		Help: "Updates processed per tenant, by result.",
	}, []string{"tenant", "result"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remnabot_dispatch_dropped_total",
		Help: "Updates rejected on enqueue because the tenant queue was full.",
	}, []string{"tenant"})
)

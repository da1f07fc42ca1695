// internal/service/flashsale/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchaseResultCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_purchase_results_total",
		Help: "Purchase attempts partitioned by outcome code.",
	}, []string{"result"})

	criticalSectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashsale_critical_section_seconds",
		Help:    "Time spent holding the per-sale lock during purchase.",
		Buckets: prometheus.DefBuckets,
	})

	lockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashsale_lock_wait_seconds",
		Help:    "Time spent waiting on the per-sale distributed lock.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 3, 5},
	})

	sweeperReleasedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_sweeper_released_total",
		Help: "Rows transitioned by the sweeper, partitioned by kind.",
	}, []string{"kind"})
)

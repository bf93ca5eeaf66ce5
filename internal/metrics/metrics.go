package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "niftiwork_items_total",
			Help: "Conversion items by terminal state",
		},
		[]string{"engine", "state"},
	)

	conversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "niftiwork_conversion_duration_seconds",
			Help:    "Wall time of one external converter invocation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"engine"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "niftiwork_runs_total",
			Help: "Conversion runs by final status",
		},
		[]string{"status"},
	)

	runsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "niftiwork_runs_active",
			Help: "Number of runs currently converting",
		},
	)
)

// RecordItem counts one item that reached a terminal state. Skipped items
// carry no engine.
func RecordItem(engine, state string) {
	if engine == "" {
		engine = "none"
	}
	itemsTotal.WithLabelValues(engine, state).Inc()
}

// ObserveConversion records how long one backend call took.
func ObserveConversion(engine string, d time.Duration) {
	conversionDuration.WithLabelValues(engine).Observe(d.Seconds())
}

func RecordRun(status string) { runsTotal.WithLabelValues(status).Inc() }

func RunStarted()  { runsActive.Inc() }
func RunFinished() { runsActive.Dec() }

// Package metrics holds the Prometheus collectors for Parlor.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	WorkersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parlor_workers_running",
			Help: "Number of tenant bot workers currently running",
		},
	)
	WorkerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parlor_worker_starts_total",
			Help: "Worker start attempts by result",
		},
		[]string{"result"},
	)
	WorkerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parlor_worker_stops_total",
			Help: "Worker stop requests by result (stopped, abandoned, not_running)",
		},
		[]string{"result"},
	)
	Bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parlor_bookings_total",
			Help: "Booking confirmations by outcome",
		},
		[]string{"outcome"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parlor_notifications_total",
			Help: "Notification attempts by kind and outcome (delivered, skipped, failed)",
		},
		[]string{"kind", "outcome"},
	)
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parlor_inbound_events_total",
			Help: "Inbound messenger events by kind (text, callback)",
		},
		[]string{"kind"},
	)
	StopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parlor_worker_stop_duration_seconds",
			Help:    "Time taken for a worker to stop",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		for _, c := range All() {
			if err := prometheus.Register(c); err != nil {
				log.Error().Err(err).Msg("metrics: failed to register collector")
			}
		}
	})
}

// All returns every Parlor collector.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		WorkersRunning, WorkerStarts, WorkerStops, Bookings,
		Notifications, InboundEvents, StopDuration,
	}
}

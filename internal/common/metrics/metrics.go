// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_records_consumed_total",
			Help: "Log records handled by the pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	RecordDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_record_duration_seconds",
			Help:    "Duration of one record from decode to publish",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	RecordsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_records_in_flight",
			Help: "Records currently being processed",
		},
	)

	LogAcks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_log_acks_total",
			Help: "Log position acknowledgments, by result",
		},
		[]string{"result"},
	)

	ChannelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_channel_attempts_total",
			Help: "Delivery attempts per channel, by result",
		},
		[]string{"channel", "result"},
	)

	ChannelAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_channel_attempt_duration_seconds",
			Help:    "Duration of one delivery attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Aggregated dispatch status per notification",
		},
		[]string{"status"},
	)

	BroadcastPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_published_total",
			Help: "Publish calls on the broadcaster, by result",
		},
		[]string{"result"},
	)

	BroadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_total",
			Help: "Events dropped for a subscriber, by reason",
		},
		[]string{"reason"},
	)

	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_active_subscribers",
			Help: "Open live subscriptions",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

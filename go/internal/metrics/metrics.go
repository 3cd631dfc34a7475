// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gavel"

var (
	bidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bid placements by outcome (accepted, conflict, validation, state, error)",
		},
		[]string{"outcome"},
	)

	bidsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_cancelled_total",
			Help:      "Bids cancelled by an admin",
		},
	)

	bidLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bid_duration_seconds",
			Help:      "Time spent accepting or rejecting a bid",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auction_transitions_total",
			Help:      "Committed auction sequencing changes by kind",
		},
		[]string{"kind"},
	)

	schedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Expiry scheduler passes by result",
		},
		[]string{"result"},
	)

	schedulerAdvanceErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_advance_errors_total",
			Help:      "Per-auction advance failures isolated by the scheduler",
		},
	)

	schedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of one scheduler pass",
			Buckets:   prometheus.DefBuckets,
		},
	)

	sessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_sessions",
			Help:      "Connected realtime sessions on this instance",
		},
	)

	broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_broadcasts_total",
			Help:      "Events fanned out to local sessions by event type",
		},
		[]string{"event"},
	)

	broadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_dropped_messages_total",
			Help:      "Messages dropped because a session's send buffer was full",
		},
	)

	relayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Cross-instance relay traffic by direction and result",
		},
		[]string{"direction", "result"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification sends by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordBid(outcome string, took time.Duration) {
	bidsTotal.WithLabelValues(outcome).Inc()
	bidLatency.Observe(took.Seconds())
}

func RecordBidCancelled() { bidsCancelled.Inc() }

func RecordTransition(kind string) { transitions.WithLabelValues(kind).Inc() }

// RecordSchedulerTick counts one scheduler pass. result is "ok" or "error".
func RecordSchedulerTick(result string, took time.Duration) {
	schedulerTicks.WithLabelValues(result).Inc()
	schedulerTickDuration.Observe(took.Seconds())
}

func RecordAdvanceError() { schedulerAdvanceErrors.Inc() }

func SessionOpened() { sessions.Inc() }

func SessionClosed() { sessions.Dec() }

func RecordBroadcast(event string) { broadcasts.WithLabelValues(event).Inc() }

func RecordDroppedMessage() { broadcastDrops.Inc() }

// RecordRelay counts relay traffic. direction is "out" or "in".
func RecordRelay(direction string, err error) {
	relayEvents.WithLabelValues(direction, result(err)).Inc()
}

func RecordNotification(kind string, err error) {
	notifications.WithLabelValues(kind, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

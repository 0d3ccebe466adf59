// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bloodlink"

var (
	// NotificationsCreated counts persisted in-app notifications.
	// Labels: type
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "created_total",
		Help:      "In-app notifications persisted",
	}, []string{"type"})

	// DeliveryAttempts counts secondary channel deliveries.
	// Labels: channel (realtime, push, email), result (ok, error, skipped)
	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "delivery_attempts_total",
		Help:      "Secondary channel delivery attempts by outcome",
	}, []string{"channel", "result"})

	// FanoutDegraded counts request creations whose donor fan-out failed
	// or timed out. Labels: reason (timeout, geo, persistence)
	FanoutDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "requests",
		Name:      "fanout_degraded_total",
		Help:      "Blood request fan-outs that ended degraded",
	}, []string{"reason"})

	FanoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "requests",
		Name:      "fanout_duration_seconds",
		Help:      "Time spent matching donors and notifying them on request creation",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// Transitions counts status transitions. Labels: to, result (ok, conflict, not_found)
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "requests",
		Name:      "transitions_total",
		Help:      "Blood request status transitions by outcome",
	}, []string{"to", "result"})

	// GeoQueries counts matcher lookups. Labels: path (native, haversine, fallback)
	GeoQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "geo",
		Name:      "queries_total",
		Help:      "Donor matching queries by execution path",
	}, []string{"path"})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Users with at least one live realtime connection",
	})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "connections",
		Help:      "Live realtime connections",
	})

	// EmailQueue tracks the async email pipeline. Labels: result (sent, failed, dropped, retried)
	EmailQueue = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "email",
		Name:      "messages_total",
		Help:      "Emails processed by the async queue",
	}, []string{"result"})

	// JobRuns counts scheduled job executions. Labels: job, result (ok, error, skipped)
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Scheduled job runs by outcome",
	}, []string{"job", "result"})

	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "eligibility_reminders_total",
		Help:      "Eligibility reminders sent",
	})
)

// Package metrics exposes Prometheus instrumentation for signoffd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsCreated counts approval requests created, by workflow mode.
	RequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signoff",
		Name:      "requests_created_total",
		Help:      "Approval requests created.",
	}, []string{"mode"})

	// Decisions counts step decisions, by outcome.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signoff",
		Name:      "decisions_total",
		Help:      "Approver decisions recorded.",
	}, []string{"outcome"})

	// Resolutions counts requests reaching a terminal status.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signoff",
		Name:      "resolutions_total",
		Help:      "Approval requests resolved, by terminal status.",
	}, []string{"status"})

	// NotificationsDispatched counts notification sends attempted.
	NotificationsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signoff",
		Name:      "notifications_dispatched_total",
		Help:      "Notifications handed to the dispatcher.",
	})

	// NotificationFailures counts failed notification sends.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signoff",
		Name:      "notification_failures_total",
		Help:      "Notification sends that failed.",
	})

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "signoff",
		Name:      "http_request_duration_seconds",
		Help:      "API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"channel"},
	)

	NotificationsVetoed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_vetoed_total",
			Help: "Total number of notifications rejected by a channel save hook",
		},
		[]string{"channel"},
	)

	StackEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_stack_emitted_total",
			Help: "Total number of aggregate notifications emitted",
		},
		[]string{"channel"},
	)

	StackFolded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_stack_folded_total",
			Help: "Total number of events folded into an in-flight aggregate",
		},
		[]string{"channel"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notifications_dispatch_duration_seconds",
			Help: "Duration of notification dispatch in seconds",
		},
		[]string{"channel"},
	)

	PushSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_push_sent_total",
			Help: "Total number of push payloads delivered to the gateway",
		},
	)

	PushFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_push_failed_total",
			Help: "Total number of push payloads the gateway rejected",
		},
	)

	CleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_cleanup_deleted_total",
			Help: "Total number of notifications removed by the retention sweeper",
		},
	)
)

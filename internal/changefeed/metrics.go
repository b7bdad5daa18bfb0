package changefeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orthanc_changefeed_events_total",
		Help: "Change events delivered to the watcher handler.",
	}, []string{"watcher", "change_type"})

	handlerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orthanc_changefeed_handler_errors_total",
		Help: "Change events whose handler returned an error.",
	}, []string{"watcher"})

	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orthanc_changefeed_polls_total",
		Help: "Completed change log passes, by outcome.",
	}, []string{"watcher", "outcome"})

	pollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orthanc_changefeed_poll_duration_seconds",
		Help:    "Duration of one change log pass.",
		Buckets: prometheus.DefBuckets,
	}, []string{"watcher"})

	cursorPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orthanc_changefeed_cursor",
		Help: "Last sequence number consumed by the watcher.",
	}, []string{"watcher"})
)

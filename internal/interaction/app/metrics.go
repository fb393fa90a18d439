package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundMessagesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interaction",
			Name:      "inbound_messages_total",
			Help:      "Total number of inbound messages processed.",
		},
		[]string{"outcome"}, // subscribed, confirmed, confirm_noop, dispatched, fallback
	)

	dispatchesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interaction",
			Name:      "dispatches_total",
			Help:      "Total number of dispatches issued to the gateway.",
		},
		[]string{"kind"}, // call, message
	)

	callbacksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interaction",
			Name:      "call_callbacks_total",
			Help:      "Total number of call callbacks processed.",
		},
		[]string{"type", "status"}, // type: answered_by, status; status: success, not_found, error
	)

	callbackDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "interaction",
			Name:      "call_callback_processing_duration_seconds",
			Help:      "Duration of call callback processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	followupsSentCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "interaction",
			Name:      "followups_sent_total",
			Help:      "Total number of followup messages sent.",
		},
	)

	repromptsSentCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "interaction",
			Name:      "reprompts_sent_total",
			Help:      "Total number of reprompt messages sent.",
		},
	)
)

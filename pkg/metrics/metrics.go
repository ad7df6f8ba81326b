// Package metrics provides Prometheus metrics for the messaging pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts webhook messaging events by outcome.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textreply_webhook_events_total",
			Help: "Webhook messaging events by outcome",
		},
		[]string{"outcome"},
	)

	// PipelineDuration tracks how long one message takes from lookup to send.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textreply_pipeline_duration_seconds",
			Help:    "Message pipeline duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// CompletionDuration tracks completion latency.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textreply_completion_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"result"},
	)

	// CompletionFallbacks counts substituted replies by kind.
	CompletionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textreply_completion_fallbacks_total",
			Help: "Replies substituted with a fallback sentence",
		},
		[]string{"kind"},
	)

	// OutboundSends counts Send API calls by result.
	OutboundSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textreply_outbound_sends_total",
			Help: "Send API calls by result",
		},
		[]string{"kind", "result"},
	)

	// LiveSubscribers tracks open live conversation sockets.
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "textreply_live_subscribers",
			Help: "Open live conversation websocket connections",
		},
	)
)

// Event outcomes
const (
	OutcomeReplied      = "replied"
	OutcomeIgnored      = "ignored"
	OutcomeDuplicate    = "duplicate"
	OutcomeUnknownPage  = "unknown_page"
	OutcomeInactivePage = "inactive_page"
	OutcomeFailed       = "failed"
)

// RecordEvent counts one messaging event.
func RecordEvent(outcome string) {
	EventsTotal.WithLabelValues(outcome).Inc()
}

// RecordPipeline records one handled message and how long it took.
func RecordPipeline(outcome string, seconds float64) {
	RecordEvent(outcome)
	PipelineDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordCompletion records one completion call. fallback is "" when the model answered.
func RecordCompletion(fallback string, seconds float64) {
	result := "ok"
	if fallback != "" {
		result = "fallback"
		CompletionFallbacks.WithLabelValues(fallback).Inc()
	}
	CompletionDuration.WithLabelValues(result).Observe(seconds)
}

// RecordSend counts one outbound send. kind is "reply" or "apology".
func RecordSend(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OutboundSends.WithLabelValues(kind, result).Inc()
}

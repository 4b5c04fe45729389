// Package metrics provides Prometheus instrumentation for the chat gateway.
// It exposes gauges for connection counts, counters for event throughput,
// and histograms for broadcast latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the current number of admitted WebSocket
	// sessions.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Current number of admitted WebSocket sessions",
	})

	// AdmissionsTotal counts connection admission outcomes, labeled by
	// result: "accepted", "token_missing", "token_invalid", "token_expired",
	// "user_not_found", "error".
	AdmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_admissions_total",
		Help: "Total connection admission attempts by outcome",
	}, []string{"result"})

	// EventsTotal counts processed inbound events, labeled by type and
	// outcome: "ok", "dropped", "rate_limited", "error".
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Total inbound events processed",
	}, []string{"type", "outcome"})

	// BroadcastLatency records room broadcast latency in seconds.
	BroadcastLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_broadcast_latency_seconds",
		Help:    "Room broadcast latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// AttachmentBytes records the decoded size of accepted attachments.
	AttachmentBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_attachment_bytes",
		Help:    "Decoded size of accepted attachments in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		AdmissionsTotal,
		EventsTotal,
		BroadcastLatency,
		AttachmentBytes,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics holds the Prometheus collectors of the order server.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ordershop",
			Subsystem: "server",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the worker pool.",
		},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ordershop",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Connections currently served by a worker.",
		},
	)
	acceptErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ordershop",
			Subsystem: "server",
			Name:      "accept_errors_total",
			Help:      "Fatal accept errors reported by workers.",
		},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordershop",
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Dispatched requests by request id and response id.",
		},
		[]string{"request", "response"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ordershop",
			Subsystem: "dispatcher",
			Name:      "request_duration_seconds",
			Help:      "Time from dispatch to response, excluding the socket write.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"request"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordershop",
			Subsystem: "dispatcher",
			Name:      "protocol_errors_total",
			Help:      "Requests rejected before dispatch, by reason.",
		},
		[]string{"reason"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectionsAccepted, connectionsActive, acceptErrors,
			requests, requestDuration, protocolErrors)
	})
}

func ConnectionOpened() {
	connectionsAccepted.Inc()
	connectionsActive.Inc()
}

func ConnectionClosed() {
	connectionsActive.Dec()
}

func AcceptError() {
	acceptErrors.Inc()
}

func RecordRequest(request, response string, d time.Duration) {
	requests.WithLabelValues(request, response).Inc()
	requestDuration.WithLabelValues(request).Observe(d.Seconds())
}

// Reasons passed to ProtocolError.
const (
	ReasonMagic    = "magic"
	ReasonVersion  = "version"
	ReasonTooLarge = "too_large"
)

func ProtocolError(reason string) {
	protocolErrors.WithLabelValues(reason).Inc()
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kronos_client_request_duration_seconds",
		Help:    "Time until response headers for requests issued to the Kronos server",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"path", "status"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronos_client_requests_total",
		Help: "Requests issued to the Kronos server grouped by path and status",
	}, []string{"path", "status"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronos_client_stream_records_total",
		Help: "Records decoded from streamed responses",
	}, []string{"path", "kind"})

	streamOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronos_client_streams_total",
		Help: "Streamed responses grouped by outcome",
	}, []string{"path", "outcome"})

	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronos_client_retry_attempts_total",
		Help: "Failed attempts observed by the retry controller",
	}, []string{"op"})

	retryExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronos_client_retry_exhausted_total",
		Help: "Operations that gave up after reaching the retry ceiling",
	}, []string{"op"})

	relayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronos_relay_messages_total",
		Help: "Events moved by the Redis relay grouped by direction and status",
	}, []string{"direction", "status"})

	mockRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronos_mock_requests_total",
		Help: "Requests served by the mock Kronos server",
	}, []string{"method", "path", "status"})
)

// ObserveRequest records a completed HTTP exchange. status is 0 when the
// request failed before a response arrived.
func ObserveRequest(path string, status int, duration time.Duration) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	requestDuration.WithLabelValues(path, label).Observe(duration.Seconds())
	requestTotal.WithLabelValues(path, label).Inc()
}

// ObserveRecord counts one decoded record; kind is "event" or "text".
func ObserveRecord(path, kind string) {
	recordsTotal.WithLabelValues(path, kind).Inc()
}

// ObserveStream records how a streamed response ended.
func ObserveStream(path string, success bool) {
	if success {
		streamOutcome.WithLabelValues(path, "completed").Inc()
	} else {
		streamOutcome.WithLabelValues(path, "failed").Inc()
	}
}

// ObserveRetry records a failed attempt; exhausted marks the final one.
func ObserveRetry(op string, exhausted bool) {
	if op == "" {
		op = "unknown"
	}
	retryAttempts.WithLabelValues(op).Inc()
	if exhausted {
		retryExhausted.WithLabelValues(op).Inc()
	}
}

// ObserveRelay records one relayed event.
func ObserveRelay(direction string, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	relayMessages.WithLabelValues(direction, status).Inc()
}

// ObserveMockRequest records a request served by the mock server.
func ObserveMockRequest(method, path string, status int) {
	mockRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// RetryAttempts exposes the attempt counter for tests.
func RetryAttempts(op string) prometheus.Counter {
	return retryAttempts.WithLabelValues(op)
}

// StreamOutcomes exposes the stream outcome counter for tests.
func StreamOutcomes(path, outcome string) prometheus.Counter {
	return streamOutcome.WithLabelValues(path, outcome)
}

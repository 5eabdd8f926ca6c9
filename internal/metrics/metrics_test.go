package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRetryCountsExhaustion(t *testing.T) {
	before := testutil.ToFloat64(retryExhausted.WithLabelValues("metrics-test"))
	ObserveRetry("metrics-test", false)
	ObserveRetry("metrics-test", true)

	assert.Equal(t, float64(2), testutil.ToFloat64(RetryAttempts("metrics-test")))
	assert.Equal(t, before+1, testutil.ToFloat64(retryExhausted.WithLabelValues("metrics-test")))
}

func TestObserveRequestLabelsTransportFailures(t *testing.T) {
	ObserveRequest("/metrics-test", 0, time.Millisecond)
	ObserveRequest("/metrics-test", 200, time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(requestTotal.WithLabelValues("/metrics-test", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(requestTotal.WithLabelValues("/metrics-test", "200")))
}

func TestObserveStream(t *testing.T) {
	ObserveStream("/metrics-stream", true)
	ObserveStream("/metrics-stream", false)
	ObserveStream("/metrics-stream", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(StreamOutcomes("/metrics-stream", "completed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(StreamOutcomes("/metrics-stream", "failed")))
}

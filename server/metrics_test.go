package server

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricRequestsTotal_IncrementsByLabel(t *testing.T) {
	_metricRequestsTotal.Reset()
	_metricRequestsTotal.WithLabelValues("http", "200").Inc()
	_metricRequestsTotal.WithLabelValues("http", "200").Inc()
	_metricRequestsTotal.WithLabelValues("http", "500").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(_metricRequestsTotal.WithLabelValues("http", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(_metricRequestsTotal.WithLabelValues("http", "500")))
}

func TestMetricRequestUnexpectedClosed_IncrementsByLabel(t *testing.T) {
	_metricRequestUnexpectedClosed.Reset()
	_metricRequestUnexpectedClosed.WithLabelValues("http", "GET").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(_metricRequestUnexpectedClosed.WithLabelValues("http", "GET")))
}

func TestBodyBytesAndLen_MatchInternalServerErrorText(t *testing.T) {
	assert.Equal(t, "Internal Server Error", string(bodyBytes))
	assert.Equal(t, "21", bodyLen)
}

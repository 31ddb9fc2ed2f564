package metrics

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omalloc/tavern/internal/constants"
)

func TestWithRequestMetric_GeneratesRequestIDWhenHeaderAbsent(t *testing.T) {
	req := httptest.NewRequest("GET", "https://example.test/obj", nil)
	req, metric := WithRequestMetric(req)

	assert.NotEmpty(t, metric.RequestID)
	assert.Same(t, metric, FromContext(req.Context()))
}

func TestWithRequestMetric_PreservesIncomingRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "https://example.test/obj", nil)
	req.Header.Set(constants.ProtocolRequestIDKey, "fixed-id")
	_, metric := WithRequestMetric(req)

	assert.Equal(t, "fixed-id", metric.RequestID)
}

func TestFromContext_ReturnsEmptyMetricWhenUnset(t *testing.T) {
	m := FromContext(httptest.NewRequest("GET", "https://example.test/obj", nil).Context())
	assert.Zero(t, m.SliceCount)
}

func TestRequestMetric_IncSliceFromCacheAndOrigin(t *testing.T) {
	m := &RequestMetric{}
	m.IncSliceFromCache()
	m.IncSliceFromOrigin()
	m.IncSliceFromCache()

	assert.EqualValues(t, 3, m.SliceCount)
	assert.EqualValues(t, 2, m.SlicesFromCache)
	assert.EqualValues(t, 1, m.SlicesFromOrigin)
}

func TestRequestMetric_ConcurrentIncrementsAreRaceFree(t *testing.T) {
	m := &RequestMetric{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.IncSliceFromCache()
			} else {
				m.IncSliceFromOrigin()
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 100, m.SliceCount)
	assert.EqualValues(t, 50, m.SlicesFromCache)
	assert.EqualValues(t, 50, m.SlicesFromOrigin)
}

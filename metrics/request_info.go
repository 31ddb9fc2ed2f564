package metrics

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/omalloc/tavern/internal/constants"
)

type requestMetricKey struct{}

// RequestMetric accumulates per-request counters. The slice fields are
// written concurrently — one goroutine per in-flight slice fetch — so
// they're plain int64s mutated through atomic adds rather than a mutex.
type RequestMetric struct {
	StartAt           time.Time
	RequestID         string
	RecvReq           uint64
	SentResp          uint64
	StoreURL          string
	CacheStatus       string
	RemoteAddr        string
	FirstResponseTime time.Time
	SliceCount        int64
	SlicesFromCache   int64
	SlicesFromOrigin  int64
}

// IncSliceFromCache records one slice resolved from the cache façade.
func (m *RequestMetric) IncSliceFromCache() {
	atomic.AddInt64(&m.SliceCount, 1)
	atomic.AddInt64(&m.SlicesFromCache, 1)
}

// IncSliceFromOrigin records one slice resolved by an origin fetch.
func (m *RequestMetric) IncSliceFromOrigin() {
	atomic.AddInt64(&m.SliceCount, 1)
	atomic.AddInt64(&m.SlicesFromOrigin, 1)
}

func WithRequestMetric(req *http.Request) (*http.Request, *RequestMetric) {
	metric := &RequestMetric{
		StartAt:   time.Now(),
		RequestID: MustParseRequestID(req.Header), // for example, generate a unique request ID. you can use MustParseRequestID to get it later.
	}
	return req.WithContext(newContext(req.Context(), metric)), metric
}

func FromContext(ctx context.Context) *RequestMetric {
	if v, ok := ctx.Value(requestMetricKey{}).(*RequestMetric); ok {
		return v
	}
	return &RequestMetric{}
}

func newContext(ctx context.Context, metric *RequestMetric) context.Context {
	return context.WithValue(ctx, requestMetricKey{}, metric)
}

func MustParseRequestID(h http.Header) string {
	id := h.Get(constants.ProtocolRequestIDKey)
	// protocol request id header not found, generate a new one
	if id == "" {
		return generateRequestID()
	}
	return id
}

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

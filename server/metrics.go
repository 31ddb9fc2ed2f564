package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// bodyBytes/bodyLen back the fixed 500 response written when the
// RoundTripper chain fails before any upstream bytes arrive.
var bodyBytes = []byte(http.StatusText(http.StatusInternalServerError))
var bodyLen = strconv.Itoa(len(bodyBytes))

var _metricRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tr",
	Subsystem: "tavern",
	Name:      "requests_total",
	Help:      "The total number of proxied requests, labeled by protocol and response status.",
}, []string{"proto", "status"})

var _metricRequestUnexpectedClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tr",
	Subsystem: "tavern",
	Name:      "request_unexpected_closed_total",
	Help:      "The total number of responses whose body copy to the client ended early.",
}, []string{"proto", "method"})

func init() {
	prometheus.MustRegister(_metricRequestsTotal, _metricRequestUnexpectedClosed)
}

// Package metrics exposes Prometheus collectors for the fan-out pipeline.
// Metrics are global, package-level collectors registered once in init(),
// the same shape used for low-overhead telemetry elsewhere in this module's
// dependency graph: counters and histograms with bounded label cardinality,
// safe to call from the request hot path.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BackendRequestsTotal counts completed backend requests by endpoint ID
	// and response status class ("2xx", "4xx", "5xx", ...).
	BackendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggproxy_backend_requests_total",
		Help: "Total backend requests issued by the fan-out dispatcher, by endpoint and status class",
	}, []string{"endpoint", "status_class"})

	// BackendDuration tracks backend round-trip latency by endpoint ID.
	BackendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggproxy_backend_duration_seconds",
		Help:    "Backend round-trip latency by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// ReducerSelectedTotal counts how often each reducer strategy is chosen.
	ReducerSelectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggproxy_reducer_selected_total",
		Help: "Number of requests reduced by each reducer strategy",
	}, []string{"reducer"})

	// FanoutWidth tracks how many backends a single inbound request fanned out to.
	FanoutWidth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggproxy_fanout_width",
		Help:    "Number of backend endpoints a single inbound request was expanded into",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 13, 21},
	})
)

func init() {
	prometheus.MustRegister(BackendRequestsTotal, BackendDuration, ReducerSelectedTotal, FanoutWidth)
}

// StatusClass buckets an HTTP status code into "2xx", "4xx", "5xx", etc.
// Anything outside the 1xx-5xx range (e.g. 0 for a request that never got a
// status) is reported as "0xx".
func StatusClass(status int) string {
	if status < 100 || status >= 600 {
		return "0xx"
	}
	return strconv.Itoa(status/100) + "xx"
}

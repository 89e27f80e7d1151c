// Package reduce implements the Reduction Selector and the four response
// reducers described in spec §4.4-§4.9: collapsing an ordered array of
// backend responses into a single outbound response.
package reduce

import (
	"net/http"
	"strings"

	"github.com/cention/aggproxy/internal/dispatch"
	"github.com/cention/aggproxy/internal/metrics"
)

// ProxyAggregatorBodyHeader is the inbound header clients use to explicitly
// request the metadata envelope (spec §6).
const ProxyAggregatorBodyHeader = "Proxy-Aggregator-Body"

// metadataBodyValue is the bare header value that selects the Metadata
// Reducer; metadataBodyValue+digestSuffix opts into the per-backend body
// digest.
const metadataBodyValue = "response-metadata"

// isMetadataRequest reports whether the inbound Proxy-Aggregator-Body value
// exactly selects the metadata envelope, case-insensitively, with or without
// the +digest suffix (spec §4.4/§6: an exact match, not a prefix match).
func isMetadataRequest(value string) bool {
	lower := strings.ToLower(value)
	return lower == metadataBodyValue || lower == metadataBodyValue+digestSuffix
}

// RequestInfo is the subset of the inbound request the selector and
// reducers need: method, Accept header, and the special aggregator header.
type RequestInfo struct {
	Method              string
	Accept              string
	ProxyAggregatorBody string
}

// Outbound is the single response produced by a reducer.
type Outbound struct {
	Status int
	Header http.Header
	Body   []byte
}

// Reduce selects one of the four reducers per spec §4.4 and runs it.
// results must be in backend-URL order (spec §5's ordering guarantee);
// priorityErrors is the operator-configured tie-break list for the Error
// Reducer (spec §3).
func Reduce(info RequestInfo, results []dispatch.Result, priorityErrors []int) Outbound {
	var out Outbound
	var reducer string

	switch {
	case isMetadataRequest(info.ProxyAggregatorBody):
		reducer = "metadata"
		out = reduceMetadata(results, info.ProxyAggregatorBody)
	case len(results) == 1:
		reducer = "single"
		out = reduceSingle(results[0])
	case anyFailed(results):
		reducer = "error"
		out = reduceError(info, results, priorityErrors)
	default:
		reducer = "multiple"
		out = reduceMultiple(info, results)
	}

	metrics.ReducerSelectedTotal.WithLabelValues(reducer).Inc()
	fixupHeaders(&out)
	return out
}

func anyFailed(results []dispatch.Result) bool {
	for _, r := range results {
		if r.Status >= 400 {
			return true
		}
	}
	return false
}

package reduce

import (
	"net/http"

	"github.com/cention/aggproxy/internal/dispatch"
)

// reduceMultiple implements the Multiple Reducer (spec §4.6): try the JSON
// merge path when its preconditions hold, otherwise fall back to the
// Aggregate envelope.
func reduceMultiple(info RequestInfo, results []dispatch.Result) Outbound {
	if !mergeEligible(info, results) {
		return reduceAggregate(results)
	}

	merged, ok := tryMerge(results)
	if !ok {
		// A body that claims application/json but does not parse falls
		// through to the Aggregate path rather than failing the request.
		return reduceAggregate(results)
	}
	return merged
}

// mergeEligible checks the Multiple Reducer's merge preconditions (spec
// §4.6): a GET request, a client that accepts JSON, and every backend
// having answered 200 with an application/json Content-Type.
func mergeEligible(info RequestInfo, results []dispatch.Result) bool {
	return info.Method == http.MethodGet &&
		acceptsJSON(info.Accept) &&
		allStatus200(results) &&
		allJSONContentType(results)
}

// tryMerge concatenates each backend's JSON body into one array, flattening
// any backend that is itself already an array (spec §4.6). ok is false if
// any body fails to parse as JSON despite its declared Content-Type.
func tryMerge(results []dispatch.Result) (Outbound, bool) {
	var b jsonArrayBuilder
	for _, r := range results {
		body, err := decodedBody(r)
		if err != nil {
			return Outbound{}, false
		}
		if !validJSON(body) {
			return Outbound{}, false
		}
		b.appendMany(flattenJSONValue(body))
	}

	out := Outbound{
		Status: http.StatusOK,
		Header: results[0].Header.Clone(),
		Body:   b.bytes(),
	}
	out.Header.Set("Content-Type", "application/json")
	return out, true
}

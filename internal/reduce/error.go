package reduce

import "github.com/cention/aggproxy/internal/dispatch"

// reduceError implements the Error Reducer (spec §4.7): walk the
// operator-configured priority list in order and return the first backend
// response whose status matches, verbatim. If none match, fall back to the
// Aggregate envelope over the full response set.
func reduceError(info RequestInfo, results []dispatch.Result, priorityErrors []int) Outbound {
	for _, wanted := range priorityErrors {
		for _, r := range results {
			if r.Status == wanted {
				return reduceSingle(r)
			}
		}
	}
	return reduceAggregate(results)
}

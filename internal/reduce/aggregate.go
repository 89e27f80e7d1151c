package reduce

import (
	"net/http"
	"unicode/utf8"

	"github.com/tidwall/sjson"

	"github.com/cention/aggproxy/internal/dispatch"
)

// collapseBuckets are walked high to low; a status collapses to the first
// bucket B with max/B == 1, i.e. the bucket whose range [B, 2B) contains the
// maximum (spec §4.6's status-collapse rule). A maximum below 100 lands in no
// bucket and keeps the 502 default.
var collapseBuckets = []int{400, 300, 200, 100}

// collapseStatus derives the single status code an Aggregate response
// reports for a set of backend statuses. Sub-500 statuses are the only
// candidates considered; if more than one remains, the bucket test runs
// against their maximum. Everything else, including zero or one surviving
// candidate, defaults to 502.
func collapseStatus(statuses []int) int {
	var subFiveHundred []int
	for _, s := range statuses {
		if s < 500 {
			subFiveHundred = append(subFiveHundred, s)
		}
	}
	if len(subFiveHundred) <= 1 {
		return http.StatusBadGateway
	}

	max := subFiveHundred[0]
	for _, s := range subFiveHundred[1:] {
		if s > max {
			max = s
		}
	}
	for _, bucket := range collapseBuckets {
		if max/bucket == 1 {
			return bucket
		}
	}
	return http.StatusBadGateway
}

// reduceAggregate implements the Aggregate path of the Multiple Reducer
// (spec §4.6): an envelope array of {status, body} entries, one per
// backend, with the outer status derived via collapseStatus. body is a JSON
// string of the backend's decoded payload, or null when the payload is not
// valid text (spec §6: "body (string or null when non-text)").
func reduceAggregate(results []dispatch.Result) Outbound {
	statuses := make([]int, len(results))
	var b jsonArrayBuilder
	for i, r := range results {
		statuses[i] = r.Status
		body, err := decodedBody(r)
		if err != nil {
			body = r.Body
		}
		entry := "{}"
		entry, _ = sjson.Set(entry, "status", r.Status)
		if utf8.Valid(body) {
			entry, _ = sjson.Set(entry, "body", string(body))
		} else {
			entry, _ = sjson.SetRaw(entry, "body", "null")
		}
		b.appendRaw(entry)
	}

	out := Outbound{
		Status: collapseStatus(statuses),
		Header: make(http.Header),
		Body:   b.bytes(),
	}
	out.Header.Set("Content-Type", "application/json")
	return out
}

func allStatus200(results []dispatch.Result) bool {
	for _, r := range results {
		if r.Status != http.StatusOK {
			return false
		}
	}
	return true
}

func allJSONContentType(results []dispatch.Result) bool {
	for _, r := range results {
		if !isJSONContentType(r.Header.Get("Content-Type")) {
			return false
		}
	}
	return true
}

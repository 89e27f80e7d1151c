package reduce

import "github.com/cention/aggproxy/internal/dispatch"

// reduceSingle implements the Single Reducer (spec §4.5): with exactly one
// backend in play, its response passes through verbatim, subject only to
// the shared header fix-up applied by the caller. A gzip-encoded body is
// decompressed, since the fix-up drops Content-Encoding.
func reduceSingle(result dispatch.Result) Outbound {
	body, err := decodedBody(result)
	if err != nil {
		body = result.Body
	}
	return Outbound{
		Status: result.Status,
		Header: result.Header.Clone(),
		Body:   body,
	}
}

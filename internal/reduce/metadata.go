package reduce

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/cention/aggproxy/internal/dispatch"
)

// digestSuffix opts into a per-backend SHA-256 body digest: a client sends
// "Proxy-Aggregator-Body: response-metadata+digest" instead of the bare
// header value.
const digestSuffix = "+digest"

// reduceMetadata implements the Metadata Reducer (spec §4.8): an envelope
// array of one entry per backend carrying its URL, status, and headers,
// without its body, for clients diagnosing backend behavior rather than
// consuming the aggregated payload. requestedValue carries the inbound
// header's full value so the optional body digest can be requested.
func reduceMetadata(results []dispatch.Result, requestedValue string) Outbound {
	includeDigest := strings.HasSuffix(strings.ToLower(requestedValue), digestSuffix)

	var b jsonArrayBuilder
	for _, r := range results {
		entry := "{}"
		entry, _ = sjson.Set(entry, "url", r.URL)
		entry, _ = sjson.Set(entry, "status", r.Status)
		for key := range r.Header {
			entry, _ = sjson.Set(entry, "headers."+key, r.Header.Get(key))
		}
		if includeDigest {
			body, err := decodedBody(r)
			if err != nil {
				body = r.Body
			}
			sum := sha256.Sum256(body)
			entry, _ = sjson.Set(entry, "body_sha256", hex.EncodeToString(sum[:]))
		}
		b.appendRaw(entry)
	}

	out := Outbound{
		Status: http.StatusOK,
		Header: make(http.Header),
		Body:   b.bytes(),
	}
	out.Header.Set("Content-Type", "application/json")
	return out
}

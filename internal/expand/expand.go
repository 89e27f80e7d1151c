// Package expand implements the Endpoint Expander (spec §4.2): given a
// matched pattern and the inbound URL, split the captured placeholder
// region into endpoint IDs, resolve each against the configured endpoint
// map, and build one target URL per endpoint.
package expand

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cention/aggproxy/internal/aggerrors"
	"github.com/cention/aggproxy/internal/matcher"
)

// Target is one resolved backend call: the endpoint ID that produced it and
// the full URL to forward the request to.
type Target struct {
	EndpointID string
	URL        string
}

// Expand resolves the comma-separated endpoint IDs captured from url against
// pattern, and returns one Target per ID in input order (spec §4.2 step 5:
// output order mirrors input order; duplicate IDs intentionally produce
// duplicate targets). endpoints must already be case-folded (see
// config.Route.NormalizedEndpoints).
func Expand(reqURL string, pattern matcher.Pattern, captured string, endpoints map[string]string) ([]Target, error) {
	trailing := trailingPortion(reqURL, pattern, captured)

	tokens := strings.Split(captured, ",")
	targets := make([]Target, 0, len(tokens))
	for _, raw := range tokens {
		id, err := normalizeToken(raw)
		if err != nil {
			return nil, err
		}

		base, ok := endpoints[id]
		if !ok {
			return nil, aggerrors.ErrUnknownEndpoint.WithDetails(fmt.Sprintf("no backend configured for endpoint %q", id))
		}

		targets = append(targets, Target{EndpointID: id, URL: base + trailing})
	}
	return targets, nil
}

// trailingPortion computes the remainder of url after prefix + captured +
// suffix, i.e. whatever path/query the client appended past the matched
// pattern (spec §4.2 step 3).
func trailingPortion(reqURL string, pattern matcher.Pattern, captured string) string {
	consumed := len(pattern.Prefix) + len(captured) + len(pattern.Suffix)
	if consumed >= len(reqURL) {
		return ""
	}
	return reqURL[consumed:]
}

// normalizeToken percent-decodes, trims, and case-folds one endpoint-ID
// token (spec §4.2 step 4).
func normalizeToken(raw string) (string, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return "", aggerrors.ErrUnknownEndpoint.WithDetails(fmt.Sprintf("malformed endpoint identifier %q: %v", raw, err))
	}
	return strings.ToLower(strings.TrimSpace(decoded)), nil
}

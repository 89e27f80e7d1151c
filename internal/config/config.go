// Package config holds the route configuration consumed by the aggregation
// pipeline: URL patterns, the endpoint-ID-to-backend-URL map, and the
// priority-error list used to break ties in the Error Reducer.
package config

import "strings"

// Placeholder is the literal wildcard token that marks the comma-separated
// endpoint-ID segment of a URL pattern.
const Placeholder = "{Endpoint_IDs}"

// Route is one configured route: a set of equivalent URL patterns, the
// endpoint-ID map they resolve against, and the priority-error ordering
// used when any backend of a multi-backend request fails.
type Route struct {
	URLPatterns    []string `yaml:"url_patterns"`
	Endpoints      map[string]string `yaml:"endpoints"`
	PriorityErrors []int    `yaml:"priority_errors"`
}

// Config is the top-level route table loaded from disk.
type Config struct {
	Routes []Route `yaml:"routes"`
}

// NormalizedEndpoints returns the route's endpoint map with identifiers
// case-folded to lower case, matching the lookup rule in spec §4.2.
func (r Route) NormalizedEndpoints() map[string]string {
	out := make(map[string]string, len(r.Endpoints))
	for id, url := range r.Endpoints {
		out[strings.ToLower(id)] = url
	}
	return out
}

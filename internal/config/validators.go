package config

import (
	"fmt"
	"strings"
)

// ValidationError aggregates every configuration problem found while
// validating a Config, rather than failing on the first one. Fatal at load
// time per spec §7.1.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid route configuration: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks every route for the configuration-error conditions named
// in spec §3 and §7.1: at least one URL pattern, each pattern containing
// exactly one Placeholder occurrence, a non-empty endpoint map, and no two
// endpoint identifiers colliding after case-folding.
func Validate(cfg Config) error {
	ve := &ValidationError{}

	if len(cfg.Routes) == 0 {
		ve.add("configuration must declare at least one route")
	}

	for i, route := range cfg.Routes {
		if len(route.URLPatterns) == 0 {
			ve.add("route %d: no url_patterns configured", i)
		}
		for _, pattern := range route.URLPatterns {
			if n := strings.Count(pattern, Placeholder); n != 1 {
				ve.add("route %d: pattern %q must contain %s exactly once, found %d", i, pattern, Placeholder, n)
			}
		}

		if len(route.Endpoints) == 0 {
			ve.add("route %d: no endpoints configured", i)
		}

		seen := make(map[string]string, len(route.Endpoints))
		for id, url := range route.Endpoints {
			folded := strings.ToLower(id)
			if prior, dup := seen[folded]; dup {
				ve.add("route %d: duplicate endpoint ID %q collides with %q after case-folding", i, id, prior)
				continue
			}
			seen[folded] = id
			if strings.TrimSpace(url) == "" {
				ve.add("route %d: endpoint %q has an empty backend URL", i, id)
			}
		}
	}

	if len(ve.Problems) > 0 {
		return ve
	}
	return nil
}

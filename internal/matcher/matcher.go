// Package matcher implements the URL-Pattern Matcher (spec §4.1): given a
// set of configured URL patterns each containing exactly one occurrence of
// the literal placeholder token, find the first pattern whose prefix and
// suffix surround some endpoint-ID segment of a candidate URL.
package matcher

import (
	"fmt"
	"regexp"

	"github.com/cention/aggproxy/internal/config"
)

// Pattern is a compiled URL pattern: the original literal plus the prefix
// and suffix surrounding the placeholder, and a case-insensitive regex that
// matches any URL the pattern accepts (placeholder treated as a non-empty
// wildcard; everything else is literal, including characters that are
// regex metacharacters).
type Pattern struct {
	Literal string
	Prefix  string
	Suffix  string

	re *regexp.Regexp
}

// Table is an ordered, compiled set of patterns for one route.
type Table struct {
	patterns []Pattern
}

// Compile builds a Table from the configured pattern literals. Each literal
// must contain config.Placeholder exactly once; callers are expected to run
// config.Validate first so this never fails on well-formed input.
func Compile(literals []string) (*Table, error) {
	t := &Table{patterns: make([]Pattern, 0, len(literals))}
	for _, lit := range literals {
		p, err := compileOne(lit)
		if err != nil {
			return nil, err
		}
		t.patterns = append(t.patterns, p)
	}
	return t, nil
}

func compileOne(literal string) (Pattern, error) {
	idx := indexOfPlaceholder(literal)
	if idx < 0 {
		return Pattern{}, fmt.Errorf("pattern %q does not contain the %s placeholder", literal, config.Placeholder)
	}
	prefix := literal[:idx]
	suffix := literal[idx+len(config.Placeholder):]

	// Only the placeholder is a wildcard; everything else, including regex
	// metacharacters in the operator-configured prefix/suffix, is literal.
	// The capture is greedy so the suffix binds as late as possible in the
	// URL, matching the original implementation's backtracking regex.
	expr := "^" + regexp.QuoteMeta(prefix) + "(.+)" + regexp.QuoteMeta(suffix)
	re, err := regexp.Compile("(?is)" + expr)
	if err != nil {
		return Pattern{}, err
	}

	return Pattern{Literal: literal, Prefix: prefix, Suffix: suffix, re: re}, nil
}

func indexOfPlaceholder(literal string) int {
	for i := 0; i+len(config.Placeholder) <= len(literal); i++ {
		if literal[i:i+len(config.Placeholder)] == config.Placeholder {
			return i
		}
	}
	return -1
}

// Match returns the first configured pattern whose prefix/suffix frame
// matches url, case-insensitively, and the raw endpoint-ID segment it
// captured. Ties are resolved by configuration order. Returns ok=false if
// no pattern matches (spec §4.1: caller treats this as a 404).
func (t *Table) Match(url string) (pattern Pattern, captured string, ok bool) {
	for _, p := range t.patterns {
		m := p.re.FindStringSubmatch(url)
		if m != nil {
			return p, m[1], true
		}
	}
	return Pattern{}, "", false
}

// Matches reports whether url matches any configured pattern, without
// returning the resolved pattern or capture — the boolean-only form callers
// that just need a routing yes/no use (e.g. a config dry-run check).
func (t *Table) Matches(url string) bool {
	_, _, ok := t.Match(url)
	return ok
}

package acl

import (
	"fmt"
	"regexp"
	"strings"
)

// Entry is one compiled route inside a verb bucket.
type Entry struct {
	// Pattern is the canonical path template the entry was compiled from.
	Pattern string
	// Excluded marks the route as open: the middleware allows it without an
	// ability lookup.
	Excluded bool

	re *regexp.Regexp
}

// Match is the result of a table lookup.
type Match struct {
	Pattern  string
	Excluded bool
}

// MatchTable groups every discovered route by HTTP verb into ordered lists of
// compiled patterns. It is built once at startup and read-only afterwards, so
// the request path needs no locking.
type MatchTable struct {
	prefix  string
	buckets [len(Methods)][]Entry
}

// BuildMatchTable compiles the discovered routes into a match table. The
// global API prefix is prepended to every canonical path. A route whose
// controller appears in the exclusion spec is excluded outright; otherwise a
// route is excluded only when its (verb, canonical path) pair is listed
// explicitly. Bucket order follows discovery order; the middleware applies
// first-match-wins. Any malformed path template or exclusion entry fails the
// build.
func BuildMatchTable(prefix string, routes []DiscoveredRoute, spec ExclusionSpec) (*MatchTable, error) {
	table := &MatchTable{prefix: CanonicalPath(prefix)}

	controllers := spec.controllerSet()
	handlers, err := spec.handlerSet()
	if err != nil {
		return nil, err
	}

	for _, route := range routes {
		method, ok := ParseMethod(string(route.Method))
		if !ok {
			return nil, fmt.Errorf("acl: route %q has unsupported method %q", route.Path, route.Method)
		}

		canonical := CanonicalPath(prefix, route.Prefix, route.Path)
		re, err := CompilePattern(canonical)
		if err != nil {
			return nil, err
		}

		_, excluded := controllers[strings.TrimSpace(route.Controller)]
		if !excluded {
			_, excluded = handlers[HandlerRef{Method: method, Path: canonical}]
		}

		idx := methodIndices[method]
		table.buckets[idx] = append(table.buckets[idx], Entry{
			Pattern:  canonical,
			Excluded: excluded,
			re:       re,
		})
	}

	return table, nil
}

// Prefix returns the canonical global API prefix the table was built with.
func (t *MatchTable) Prefix() string {
	return t.prefix
}

// Lookup scans the verb's bucket in registration order and returns the first
// entry whose pattern matches the path. The query string must already be
// stripped by the caller.
func (t *MatchTable) Lookup(method Method, path string) (Match, bool) {
	idx, ok := methodIndices[method]
	if !ok {
		return Match{}, false
	}

	for _, entry := range t.buckets[idx] {
		if entry.re.MatchString(path) {
			return Match{Pattern: entry.Pattern, Excluded: entry.Excluded}, true
		}
	}
	return Match{}, false
}

// Bucket returns a copy of the entries registered under the given verb,
// preserving discovery order. Used by the route catalogue endpoint.
func (t *MatchTable) Bucket(method Method) []Entry {
	idx, ok := methodIndices[method]
	if !ok {
		return nil
	}
	out := make([]Entry, len(t.buckets[idx]))
	copy(out, t.buckets[idx])
	return out
}

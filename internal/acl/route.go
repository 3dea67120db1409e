package acl

import (
	"fmt"
	"regexp"
	"strings"
)

// Method enumerates the HTTP verbs the match table buckets routes under.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
)

// Methods lists every supported verb in bucket order.
var Methods = [...]Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}

// ParseMethod normalizes a verb string into a Method.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := methodIndices[m]; !ok {
		return "", false
	}
	return m, true
}

var methodIndices = func() map[Method]int {
	idx := make(map[Method]int, len(Methods))
	for i, m := range Methods {
		idx[m] = i
	}
	return idx
}()

// DiscoveredRoute is one HTTP handler reported by the host router at boot.
type DiscoveredRoute struct {
	// Controller is the logical handler group the route belongs to, used for
	// controller-level exclusion ("menu", "role", ...).
	Controller string
	// Prefix is the controller's route prefix, usually equal to Controller.
	Prefix string
	// Path is the handler path relative to the prefix; may be empty and may
	// contain :param placeholders or a trailing *.
	Path string
	// Method is the HTTP verb the handler is registered under.
	Method Method
}

// HandlerRef identifies one handler by verb and canonical path, for
// handler-level exclusions.
type HandlerRef struct {
	Method Method
	Path   string
}

// ExclusionSpec is explicit configuration marking routes that skip the ACL
// check entirely.
type ExclusionSpec struct {
	// Controllers lists controller names whose every route is excluded.
	Controllers []string
	// Handlers lists individual (verb, canonical path) pairs to exclude.
	Handlers []HandlerRef
}

func (s ExclusionSpec) controllerSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Controllers))
	for _, name := range s.Controllers {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

func (s ExclusionSpec) handlerSet() (map[HandlerRef]struct{}, error) {
	set := make(map[HandlerRef]struct{}, len(s.Handlers))
	for _, ref := range s.Handlers {
		method, ok := ParseMethod(string(ref.Method))
		if !ok {
			// A dropped entry would silently guard a route meant to be open.
			return nil, fmt.Errorf("acl: exclusion for %q has unsupported method %q", ref.Path, ref.Method)
		}
		set[HandlerRef{Method: method, Path: CanonicalPath(ref.Path)}] = struct{}{}
	}
	return set, nil
}

// CanonicalPath joins path fragments into one rooted path, discarding empty
// segments so trailing slashes, double slashes and empty prefixes collapse.
func CanonicalPath(fragments ...string) string {
	var segments []string
	for _, fragment := range fragments {
		for _, seg := range strings.Split(fragment, "/") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
	}
	return "/" + strings.Join(segments, "/")
}

var placeholderName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CompilePattern turns a canonical path template into a regular expression
// matching concrete request paths. ":name" segments match any single segment
// and a "*" segment matches the rest of the path. A malformed placeholder is
// an error; the caller treats it as fatal at startup.
func CompilePattern(path string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if seg == "" {
			continue
		}
		switch {
		case seg == "*":
			b.WriteString("/.*")
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if !placeholderName.MatchString(name) {
				return nil, fmt.Errorf("acl: invalid placeholder %q in path %q", seg, path)
			}
			b.WriteString("/[^/]+")
		case strings.ContainsAny(seg, ":*"):
			return nil, fmt.Errorf("acl: malformed segment %q in path %q", seg, path)
		default:
			b.WriteString("/")
			b.WriteString(regexp.QuoteMeta(seg))
		}
	}

	if b.Len() == 1 {
		b.WriteString("/")
	}
	b.WriteString("/?$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("acl: compile pattern for %q: %w", path, err)
	}
	return re, nil
}

// Package reference resolves {{Label.path}} placeholders in node configuration
// against the outputs of nodes that already ran.
//
// A placeholder whose node is absent from the result map is always an error.
// A missing field inside a present node's output resolves to an empty string.
package reference

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Resolve materialises value against results. Strings, maps and slices are
// walked recursively; other values pass through unchanged. The input is never
// mutated.
func Resolve(value any, results core.ResultMap) (any, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, results)
	case map[string]any:
		return ResolveConfig(v, results)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := Resolve(item, results)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := resolveString(item, results)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

// ResolveConfig resolves every value of a node configuration.
func ResolveConfig(cfg map[string]any, results core.ResultMap) (map[string]any, error) {
	if cfg == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		r, err := Resolve(v, results)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

// HasPlaceholder reports whether s contains at least one complete placeholder.
func HasPlaceholder(s string) bool {
	_, _, ok := nextPlaceholder(s)
	return ok
}

// Labels returns the node labels referenced anywhere in value, in order of
// appearance and without duplicates.
func Labels(value any) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			rest := t
			for {
				start, end, ok := nextPlaceholder(rest)
				if !ok {
					return
				}
				ref := parseRef(rest[start+len(openDelim) : end])
				if ref.label != "" && !seen[ref.label] {
					seen[ref.label] = true
					out = append(out, ref.label)
				}
				rest = rest[end+len(closeDelim):]
			}
		case map[string]any:
			for _, item := range t {
				walk(item)
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(value)
	return out
}

// resolveString scans s left to right, replacing each placeholder.
// A string made of exactly one placeholder yields the referenced value with
// its original type.
func resolveString(s string, results core.ResultMap) (any, error) {
	body := strings.TrimSpace(s)
	start, end, ok := nextPlaceholder(body)
	if !ok {
		return s, nil
	}
	if start == 0 && end+len(closeDelim) == len(body) {
		return lookup(body, body[len(openDelim):end], results)
	}

	var b strings.Builder
	rest := s
	for {
		start, end, ok = nextPlaceholder(rest)
		if !ok {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		v, err := lookup(rest[start:end+len(closeDelim)], rest[start+len(openDelim):end], results)
		if err != nil {
			return nil, err
		}
		b.WriteString(Stringify(v))
		rest = rest[end+len(closeDelim):]
	}
	return b.String(), nil
}

// nextPlaceholder finds the first complete, non-empty placeholder in s and
// returns the offsets of its opening and closing delimiters.
func nextPlaceholder(s string) (start, end int, ok bool) {
	offset := 0
	for {
		i := strings.Index(s[offset:], openDelim)
		if i < 0 {
			return 0, 0, false
		}
		start = offset + i
		j := strings.Index(s[start+len(openDelim):], closeDelim)
		if j < 0 {
			return 0, 0, false
		}
		end = start + len(openDelim) + j
		if strings.TrimSpace(s[start+len(openDelim):end]) != "" {
			return start, end, true
		}
		offset = end + len(closeDelim)
	}
}

type ref struct {
	label string
	path  []string
}

func parseRef(expr string) ref {
	parts := strings.Split(strings.TrimSpace(expr), ".")
	r := ref{label: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			r.path = append(r.path, p)
		}
	}
	return r
}

func lookup(placeholder, expr string, results core.ResultMap) (any, error) {
	r := parseRef(expr)
	output, ok := results.Lookup(r.label)
	if !ok {
		return nil, core.ErrUnresolvedReference(placeholder)
	}
	return Walk(output, r.path), nil
}

// Walk follows path into v. A missing segment yields an empty string.
func Walk(v any, path []string) any {
	current := v
	for _, seg := range path {
		next, ok := step(current, seg)
		if !ok {
			return ""
		}
		current = next
	}
	return current
}

func step(v any, seg string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		next, ok := t[seg]
		return next, ok
	case map[string]string:
		next, ok := t[seg]
		return next, ok
	case []any:
		return index(len(t), seg, func(i int) any { return t[i] })
	case []map[string]any:
		return index(len(t), seg, func(i int) any { return t[i] })
	case []string:
		return index(len(t), seg, func(i int) any { return t[i] })
	default:
		return nil, false
	}
}

func index(n int, seg string, at func(int) any) (any, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return nil, false
	}
	return at(i), true
}

// Stringify renders a resolved value for embedding in surrounding text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool, int, int64, int32, uint, uint64, uint32:
		return fmt.Sprint(t)
	case fmt.Stringer:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

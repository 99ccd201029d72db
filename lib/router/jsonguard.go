package router

import (
	"strings"

	"github.com/bslive-dev/bslive/lib/config"
)

// matchJSONPointer resolves an RFC-6901 JSON Pointer against a decoded
// JSON value (as produced by encoding/json into any). Returns (value, ok).
func matchJSONPointer(v any, pointer string) (any, bool) {
	if pointer == "" {
		return v, true
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}
	tokens := strings.Split(pointer[1:], "/")
	cur := v
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, ok := parseArrayIndex(tok)
			if !ok || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func parseArrayIndex(tok string) (int, bool) {
	if tok == "" {
		return 0, false
	}
	n := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// matchProp implements JsonPropGuard against a decoded JSON value.
func matchProp(value any, g config.JsonPropGuard) bool {
	found, ok := matchJSONPointer(value, g.Path)
	if !ok {
		return false
	}
	s, ok := found.(string)
	if !ok {
		return false
	}
	switch {
	case g.Is != nil:
		return s == *g.Is
	case g.Has != nil:
		return strings.Contains(s, *g.Has)
	case g.NotHas != nil:
		return !strings.Contains(s, *g.NotHas)
	default:
		return false
	}
}

// matchOneJSON implements match_one_json from the original guard taxonomy.
func matchOneJSON(value any, g config.WhenBodyGuard) bool {
	if g.Never || g.JSON == nil {
		return false
	}
	jg := g.JSON
	switch {
	case jg.ArrayLast != nil:
		arr, ok := arrayAt(value, jg.ArrayLast.Items)
		if !ok || len(arr) == 0 {
			return false
		}
		last := arr[len(arr)-1]
		for _, pg := range jg.ArrayLast.Last {
			if !matchProp(last, pg) {
				return false
			}
		}
		return true
	case jg.ArrayAny != nil:
		arr, ok := arrayAt(value, jg.ArrayAny.Items)
		if !ok || len(arr) == 0 {
			return false
		}
		for _, item := range arr {
			matched := false
			for _, pg := range jg.ArrayAny.Props {
				if matchProp(item, pg) {
					matched = true
					break
				}
			}
			if matched {
				return true
			}
		}
		return false
	case jg.ArrayAll != nil:
		arr, ok := arrayAt(value, jg.ArrayAll.Items)
		if !ok || len(arr) == 0 {
			return false
		}
		for _, item := range arr {
			all := true
			for _, pg := range jg.ArrayAll.Props {
				if !matchProp(item, pg) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		}
		return false
	case jg.Path != nil:
		return matchProp(value, *jg.Path)
	default:
		return false
	}
}

func arrayAt(value any, pointer string) ([]any, bool) {
	found, ok := matchJSONPointer(value, pointer)
	if !ok {
		return nil, false
	}
	arr, ok := found.([]any)
	return arr, ok
}

// matchesWhenBody mirrors NeedsJsonGuard.match_body: every guard in the
// list must match (logical AND).
func matchesWhenBody(guards []config.WhenBodyGuard, value any) bool {
	for _, g := range guards {
		if !matchOneJSON(value, g) {
			return false
		}
	}
	return true
}

// needsJSONBody reports whether a route's when_body guards require the
// request to actually be decoded as JSON.
func needsJSONBody(guards []config.WhenBodyGuard) bool {
	for _, g := range guards {
		if !g.Never && g.JSON != nil {
			return true
		}
	}
	return false
}

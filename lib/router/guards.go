package router

import (
	"net/http"
	"strings"

	"github.com/bslive-dev/bslive/lib/config"
)

// matchesWhen reports whether every declared WhenGuard on a route matches
// the incoming request. An empty guard list always matches.
func matchesWhen(guards []config.WhenGuard, r *http.Request) bool {
	for _, g := range guards {
		if !matchesOneWhen(g, r) {
			return false
		}
	}
	return true
}

func matchesOneWhen(g config.WhenGuard, r *http.Request) bool {
	if g.ExactURI != "" && r.URL.Path != g.ExactURI {
		return false
	}
	q := r.URL.Query()
	if g.QueryHas != "" && q.Get(g.QueryHas) == "" && !q.Has(g.QueryHas) {
		return false
	}
	if g.QueryIs[0] != "" && q.Get(g.QueryIs[0]) != g.QueryIs[1] {
		return false
	}
	if g.QueryNot != "" && q.Has(g.QueryNot) {
		return false
	}
	if g.AcceptHTML && !acceptsHTML(r) {
		return false
	}
	return true
}

func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}

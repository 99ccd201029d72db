// Package router builds the per-server HTTP router: it folds all routes
// sharing a path into a HandlerStack, composes each stack into a mounted
// http.Handler, and wraps every route in the ordered response-transform
// pipeline.
package router

import "github.com/bslive-dev/bslive/lib/config"

// StackKind is the folded representation of everything mounted at one
// path.
type StackKind int

const (
	StackNone StackKind = iota
	StackRaw
	StackDirs
	StackProxy
	StackDirsProxy
)

// Stack is the result of folding every Route at one path. All preserves
// the full declaration-ordered list (including guarded routes of any
// kind), used for guard-based first-match dispatch; Raw/Dirs/Proxy capture
// the default, unguarded behavior implied by the HandlerStack fold rules.
type Stack struct {
	Kind  StackKind
	Raw   *config.Route
	Dirs  []config.Route
	Proxy *config.Route
	All   []config.Route
}

// RouteMap groups a server's ordered routes by path, preserving
// declaration order within each path.
type RouteMap map[string][]config.Route

// NewRouteMap groups routes by path in declaration order.
func NewRouteMap(routes []config.Route) RouteMap {
	m := make(RouteMap)
	for _, r := range routes {
		m[r.Path] = append(m[r.Path], r)
	}
	return m
}

// Stacks folds every path's route list into its Stack.
func (m RouteMap) Stacks() map[string]Stack {
	out := make(map[string]Stack, len(m))
	for path, routes := range m {
		var s Stack
		for _, r := range routes {
			s = appendStack(s, r)
		}
		out[path] = s
	}
	return out
}

// appendStack implements the exact fold transition table:
//
//	None   + Raw   -> Raw
//	None   + Dir   -> Dirs[dir]
//	None   + Proxy -> Proxy
//	Raw    + Raw   -> replace (last wins)
//	Dirs   + Dir   -> append
//	Dirs   + Proxy -> DirsProxy
//	DirsProxy + Dir -> append to dirs
func appendStack(s Stack, r config.Route) Stack {
	route := r
	s.All = append(s.All, route)

	switch s.Kind {
	case StackNone:
		switch route.Kind {
		case config.RouteKindRaw:
			s.Kind = StackRaw
			s.Raw = &route
		case config.RouteKindDir:
			s.Kind = StackDirs
			s.Dirs = []config.Route{route}
		case config.RouteKindProxy:
			s.Kind = StackProxy
			s.Proxy = &route
		}
	case StackRaw:
		if route.Kind == config.RouteKindRaw {
			s.Raw = &route
		}
	case StackDirs:
		switch route.Kind {
		case config.RouteKindDir:
			s.Dirs = append(s.Dirs, route)
		case config.RouteKindProxy:
			s.Kind = StackDirsProxy
			s.Proxy = &route
		}
	case StackProxy:
		// A second proxy at the same path simply replaces, mirroring Raw+Raw.
		if route.Kind == config.RouteKindProxy {
			s.Proxy = &route
		}
	case StackDirsProxy:
		if route.Kind == config.RouteKindDir {
			s.Dirs = append(s.Dirs, route)
		}
	}
	return s
}

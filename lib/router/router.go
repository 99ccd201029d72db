package router

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/proxy"
)

// MaxBufferedBody caps how much of a request body when_body guards will
// buffer for JSON parsing.
const MaxBufferedBody = 1 << 20 // 1MiB

// ConnectorSnippet is the builtin injected into HTML responses; the real
// script lives at lib/server/builtins.go's /__bs_js endpoint, and this is
// only the script tag that loads it, kept tiny so responses stay diffable
// in tests.
var ConnectorSnippet = `<script src="/__bs_js"></script>`

// Build assembles one server's route table into a mounted http.Handler.
//
// httprouter matches static segments only, so a Dir or Proxy stack mounted
// at a path needs more than the literal path registered: "/api" alone would
// never match "/api/users/1". Each such stack is therefore registered with
// a catch-all wildcard segment appended, and also at the bare mount path
// unless that path ends in "/" (there the catch-all already matches the
// bare path, and httprouter rejects registering both), mirroring what
// axum's nest() does implicitly in the original bsnext_core router. The
// wildcard segment itself is never read by
// the handlers: serveDirs/serveFileIfExists and proxy.composeURI both work
// directly off r.URL.Path, which httprouter leaves untouched.
func Build(routes []config.Route) http.Handler {
	stacks := NewRouteMap(routes).Stacks()

	router := httprouter.New()
	for path, stack := range stacks {
		stack := stack
		h := buildStackHandler(stack)
		if !nestsChildren(stack.Kind) {
			registerStack(router, path, h)
			continue
		}
		if !strings.HasSuffix(path, "/") {
			registerStack(router, path, h)
		}
		registerStack(router, wildcardPath(path), h)
	}
	return router
}

// nestsChildren reports whether a stack's handler must also match paths
// nested beneath its mount point: directories and proxies forward whatever
// sub-path the client asked for, but a Raw route only ever answers for its
// own exact path.
func nestsChildren(kind StackKind) bool {
	switch kind {
	case StackDirs, StackProxy, StackDirsProxy:
		return true
	default:
		return false
	}
}

// wildcardPath appends httprouter's catch-all segment to path, the way
// axum's nest() appends "/*rest" under the hood.
func wildcardPath(path string) string {
	if strings.HasSuffix(path, "/") {
		return path + "*bslive_rest"
	}
	return path + "/*bslive_rest"
}

func registerStack(router *httprouter.Router, path string, h http.Handler) {
	router.Handler(http.MethodGet, path, h)
	router.Handler(http.MethodPost, path, h)
	router.Handler(http.MethodPut, path, h)
	router.Handler(http.MethodPatch, path, h)
	router.Handler(http.MethodDelete, path, h)
	router.Handler(http.MethodOptions, path, h)
	router.Handler(http.MethodHead, path, h)
}

// buildStackHandler returns the handler mounted at one path: it walks the
// stack's declaration-ordered route list, evaluating When/WhenBody guards
// in order, and serves the first match; guardless routes fall back to the
// stack's folded default behavior.
func buildStackHandler(stack Stack) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, body, ok := selectRoute(stack, r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body != nil {
			r.Body = io.NopCloser(body)
		}
		inner := innerHandler(route, stack)
		runPipeline(inner, route.Opts, ConnectorSnippet, w, r)
	})
}

// selectRoute walks stack.All in declaration order, honoring guards, and
// falls back to the stack's folded default route when nothing guarded
// matches. Returns the chosen route and (if the body was consumed for a
// when_body check) a reader to restore it.
func selectRoute(stack Stack, r *http.Request) (config.Route, io.Reader, bool) {
	var fallback *config.Route
	for i := range stack.All {
		route := stack.All[i]
		hasGuards := len(route.When) > 0 || len(route.WhenBody) > 0
		if !hasGuards {
			// Fold like appendStack: a later unguarded Raw or Proxy
			// replaces an earlier one of the same kind; the first Dir is
			// kept, since innerHandler serves every dir of the stack.
			if fallback == nil || (route.Kind == fallback.Kind && route.Kind != config.RouteKindDir) {
				fallback = &route
			}
			continue
		}
		if !matchesWhen(route.When, r) {
			continue
		}
		if len(route.WhenBody) == 0 {
			return route, nil, true
		}
		if !needsJSONBody(route.WhenBody) {
			return route, nil, true
		}
		matched, bodyCopy := evalWhenBody(route.WhenBody, r)
		if matched {
			return route, bodyCopy, true
		}
		// Body didn't match; restore it for the next candidate and keep
		// looking, per "skip if body does not match".
		if bodyCopy != nil {
			r.Body = io.NopCloser(bodyCopy)
		}
	}
	if fallback != nil {
		return *fallback, nil, true
	}
	return config.Route{}, nil, false
}

// evalWhenBody buffers (capped) the request body, parses it as JSON, and
// tests the when_body guards. Always returns a reader positioned at the
// start of the body so the caller can restore it regardless of outcome.
func evalWhenBody(guards []config.WhenBodyGuard, r *http.Request) (bool, io.Reader) {
	if r.Body == nil {
		return false, nil
	}
	limited := io.LimitReader(r.Body, MaxBufferedBody)
	data, err := io.ReadAll(limited)
	if err != nil {
		return false, nil
	}
	bodyCopy := bytesReader(data)

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return false, bodyCopy
	}
	return matchesWhenBody(guards, value), bodyCopy
}

// innerHandler produces the unwrapped (pre-pipeline) response for route,
// dispatching on its own kind when guarded, or the stack's folded default
// behavior when it is the fallback route.
func innerHandler(route config.Route, stack Stack) http.Handler {
	switch route.Kind {
	case config.RouteKindRaw:
		return serveRaw(route)
	case config.RouteKindProxy:
		return proxy.Handler(route.Path, *route.Proxy)
	case config.RouteKindDir:
		if stack.Kind == StackDirsProxy && stack.Proxy != nil {
			return serveDirsThenProxy(stack.Dirs, route.Opts.Base, *stack.Proxy)
		}
		return serveDirs(dirsOf(stack), route.Opts.Base)
	default:
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}
}

func dirsOf(stack Stack) []config.Route {
	if len(stack.Dirs) > 0 {
		return stack.Dirs
	}
	return nil
}

func serveRaw(route config.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route.Raw == nil {
			http.NotFound(w, r)
			return
		}
		switch route.Raw.Kind {
		case config.RawHTML:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		case config.RawJSON:
			w.Header().Set("Content-Type", "application/json")
		case config.RawSSE:
			w.Header().Set("Content-Type", "text/event-stream")
		default:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(route.Raw.Body))
	})
}

// serveDirs tries each directory route in declaration order, falling
// through to the next on a missing file, and 404s if none serve it.
func serveDirs(dirs []config.Route, base string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, d := range dirs {
			for _, root := range d.Dirs {
				if serveFileIfExists(w, r, root, base) {
					return
				}
			}
		}
		http.NotFound(w, r)
	})
}

func serveDirsThenProxy(dirs []config.Route, base string, p config.Route) http.Handler {
	dirsHandler := serveDirs(dirs, base)
	proxyHandler := proxy.Handler(p.Path, *p.Proxy)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newRecorder()
		dirsHandler.ServeHTTP(rec, r)
		if rec.status != http.StatusNotFound {
			for k, vs := range rec.header {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(rec.status)
			_, _ = w.Write(rec.body.Bytes())
			return
		}
		proxyHandler.ServeHTTP(w, r)
	})
}

func serveFileIfExists(w http.ResponseWriter, r *http.Request, root, mountBase string) bool {
	rel := r.URL.Path
	if mountBase != "" {
		rel = trimPrefix(rel, mountBase)
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return false
	}
	if info.IsDir() {
		full = filepath.Join(full, "index.html")
		if _, err := os.Stat(full); err != nil {
			return false
		}
	}
	http.ServeFile(w, r, full)
	return true
}

func trimPrefix(path, prefix string) string {
	if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

func bytesReader(b []byte) io.Reader {
	return &byteReader{b: b}
}

type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

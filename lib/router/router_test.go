package router_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/router"
)

func TestRawRouteServesBody(t *testing.T) {
	routes := []config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "hey"}},
	}
	h := router.Build(routes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hey" {
		t.Fatalf("expected body %q, got %q", "hey", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("expected text/plain content-type, got %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected cache-prevent headers by default")
	}
}

func TestHTMLInjection(t *testing.T) {
	routes := []config.Route{
		{
			Path: "/", Kind: config.RouteKindRaw,
			Raw:  &config.RawPayload{Kind: config.RawHTML, Body: "<body>x</body>"},
			Opts: config.RouteOpts{Inject: []string{"connector"}},
		},
	}
	h := router.Build(routes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "<body>x") {
		t.Fatalf("expected original body preserved, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), router.ConnectorSnippet) {
		t.Fatalf("expected connector snippet injected, got %q", rec.Body.String())
	}
	if rec.Header().Get("X-Bslive-Inject") != "true" {
		t.Fatalf("expected X-Bslive-Inject header")
	}
}

func TestCacheDefaultQueryOverride(t *testing.T) {
	routes := []config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "hey"}},
	}
	h := router.Build(routes)

	req := httptest.NewRequest(http.MethodGet, "/?bslive.cache=default", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Cache-Control") != "" {
		t.Fatalf("expected cache-prevent headers removed by query override")
	}
}

func TestWhenGuardFirstMatchWins(t *testing.T) {
	routes := []config.Route{
		{
			Path: "/api", Kind: config.RouteKindRaw,
			Raw:  &config.RawPayload{Kind: config.RawJSON, Body: `{"variant":"a"}`},
			When: []config.WhenGuard{{QueryIs: [2]string{"v", "a"}}},
		},
		{
			Path: "/api", Kind: config.RouteKindRaw,
			Raw: &config.RawPayload{Kind: config.RawJSON, Body: `{"variant":"default"}`},
		},
	}
	h := router.Build(routes)

	req := httptest.NewRequest(http.MethodGet, "/api?v=a", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "variant\":\"a\"") {
		t.Fatalf("expected guarded route to win, got %q", rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if !strings.Contains(rec2.Body.String(), "default") {
		t.Fatalf("expected fallback route when guard doesn't match, got %q", rec2.Body.String())
	}
}

// TestProxyRouteMatchesNestedPath is spec.md §8 scenario 4: a proxy mounted
// at "/api" must answer for "/api/users/1", not just the literal "/api".
func TestProxyRouteMatchesNestedPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/1" {
			_, _ = w.Write([]byte("u1"))
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	routes := []config.Route{
		{Path: "/api", Kind: config.RouteKindProxy, Proxy: &config.ProxyOpts{Target: upstream.URL}},
	}
	h := router.Build(routes)

	req := httptest.NewRequest(http.MethodGet, "/api/users/1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "u1" {
		t.Fatalf("expected body u1, got %q", rec.Body.String())
	}
}

// TestDirRouteMatchesNestedPath covers the CLI's default: a directory
// mounted at "/" must serve nested files, not just "GET /" itself.
func TestDirRouteMatchesNestedPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	routes := []config.Route{
		{Path: "/", Kind: config.RouteKindDir, Dirs: []string{dir}},
	}
	h := router.Build(routes)

	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "console.log(1)" {
		t.Fatalf("expected file contents, got %q", rec.Body.String())
	}
}

func TestDelayQueryOverride(t *testing.T) {
	routes := []config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "hey"}},
	}
	h := router.Build(routes)

	req := httptest.NewRequest(http.MethodGet, "/?bslive.delay.ms=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

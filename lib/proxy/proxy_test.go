package proxy_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/proxy"
)

func TestProxyNestedStripsMount(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	opts := config.ProxyOpts{Target: upstream.URL + "/api", RewriteKind: config.RewriteNested}
	h := proxy.Handler("/mounted", opts)

	req := httptest.NewRequest(http.MethodGet, "/mounted/users/123", nil)
	req = req.WithContext(proxy.WithClient(req.Context(), upstream.Client()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Seen-Path"); got != "/api/users/123" {
		t.Fatalf("expected upstream to see /api/users/123, got %q", got)
	}
}

func TestProxyRewritesSetCookieDomain(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "sid=abc; Domain=upstream.internal; Path=/")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	opts := config.ProxyOpts{Target: upstream.URL, RewriteKind: config.RewriteAlias}
	h := proxy.Handler("/", opts)

	req := httptest.NewRequest(http.MethodGet, "/abc", nil)
	req.Host = "localhost:3000"
	req = req.WithContext(proxy.WithClient(req.Context(), upstream.Client()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	cookie := rec.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "Domain=localhost") {
		t.Fatalf("expected cookie domain rewritten to localhost, got %q", cookie)
	}
}

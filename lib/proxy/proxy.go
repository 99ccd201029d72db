// Package proxy implements the reverse-proxy handler: URI composition
// between an incoming request and a configured upstream target, request
// and response rewriting, and error mapping.
package proxy

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bslive-dev/bslive/internal/slogutil"
	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/logging"
)

// clientKey is the context key the shared HTTP client is injected under,
// mirroring the "request extension" boundary described for the proxy
// handler: one HTTPS-capable client, shared process-wide.
type clientKey struct{}

// WithClient injects the shared client into ctx for downstream Handlers.
func WithClient(ctx context.Context, c *http.Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

func clientFrom(ctx context.Context) *http.Client {
	if c, ok := ctx.Value(clientKey{}).(*http.Client); ok {
		return c
	}
	return http.DefaultClient
}

// NewClient builds the single shared HTTPS-capable HTTP/1.1 client. No
// connection-pool tuning beyond net/http's defaults.
func NewClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ForceAttemptHTTP2 = false
	t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return &http.Client{Transport: t}
}

// Handler returns an http.Handler that proxies every request it receives
// to opts.Target, per the RewriteKind in opts.
func Handler(mountPath string, opts config.ProxyOpts) http.Handler {
	target, err := url.Parse(opts.Target)
	if err != nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid proxy target", http.StatusInternalServerError)
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outgoing := composeURI(target, mountPath, r.URL, opts.RewriteKind)

		req, err := http.NewRequestWithContext(r.Context(), r.Method, outgoing.String(), r.Body)
		if err != nil {
			http.Error(w, "bad upstream request", http.StatusInternalServerError)
			return
		}
		req.Header = r.Header.Clone()
		req.Header.Set("Host", outgoing.Host)
		req.Header.Del("Referer")
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		req.Host = outgoing.Host

		client := clientFrom(r.Context())
		resp, err := client.Do(req)
		if err != nil {
			logging.With("component", "proxy").Warn("upstream request failed", slogutil.URI(opts.Target), slogutil.Error(err))
			http.Error(w, "upstream request failed", http.StatusInternalServerError)
			return
		}
		defer resp.Body.Close()

		rewriteSetCookies(resp.Header, r.Host)

		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	})
}

// composeURI implements the documented URI composition truth table:
// concatenate the target's path with the source path (by rewrite mode),
// ignoring "/" roots, append the source query, and always adopt the
// target's scheme and authority.
func composeURI(target *url.URL, mountPath string, incoming *url.URL, kind config.RewriteKind) *url.URL {
	out := *target

	sourcePath := incoming.Path
	if kind == config.RewriteNested {
		sourcePath = strings.TrimPrefix(sourcePath, mountPath)
		if !strings.HasPrefix(sourcePath, "/") {
			sourcePath = "/" + sourcePath
		}
	}

	switch {
	case target.Path == "" || target.Path == "/":
		out.Path = sourcePath
	case sourcePath == "" || sourcePath == "/":
		out.Path = target.Path
	default:
		out.Path = strings.TrimSuffix(target.Path, "/") + sourcePath
	}

	out.RawQuery = incoming.RawQuery
	return &out
}

// rewriteSetCookies replaces the Domain attribute of every Set-Cookie
// header with incomingHost, so browsers accept the cookie against the
// address they actually connected to.
func rewriteSetCookies(h http.Header, incomingHost string) {
	cookies := h.Values("Set-Cookie")
	if len(cookies) == 0 {
		return
	}
	host := incomingHost
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	rewritten := make([]string, len(cookies))
	for i, c := range cookies {
		rewritten[i] = rewriteDomainAttr(c, host)
	}
	h.Del("Set-Cookie")
	for _, c := range rewritten {
		h.Add("Set-Cookie", c)
	}
}

func rewriteDomainAttr(cookie, host string) string {
	parts := strings.Split(cookie, ";")
	for i, p := range parts {
		trimmed := strings.TrimSpace(p)
		if strings.HasPrefix(strings.ToLower(trimmed), "domain=") {
			parts[i] = " Domain=" + host
		}
	}
	return strings.Join(parts, ";")
}

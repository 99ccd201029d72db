package router

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bslive-dev/bslive/lib/config"
)

// recorder buffers a handler's response so the pipeline stages can inspect
// and rewrite it before it reaches the real ResponseWriter.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (rec *recorder) Header() http.Header { return rec.header }
func (rec *recorder) Write(b []byte) (int, error) {
	return rec.body.Write(b)
}
func (rec *recorder) WriteHeader(code int) { rec.status = code }

// pipelineOpts is the resolved, per-request set of response behaviors,
// after static RouteOpts have been overridden by dynamic query params.
type pipelineOpts struct {
	delay       time.Duration
	cachePrevent bool
	compression bool
	cors        bool
	inject      string // "", "false", or a builtin name (e.g. "connector")
	headers     map[string]string
}

func resolvePipelineOpts(opts config.RouteOpts, r *http.Request) pipelineOpts {
	p := pipelineOpts{
		delay:        time.Duration(opts.DelayMS) * time.Millisecond,
		cachePrevent: !opts.CacheDefault,
		compression:  opts.Compression,
		cors:         opts.CORS,
		headers:      opts.ResponseHeaders,
	}
	if len(opts.Inject) > 0 {
		p.inject = opts.Inject[0]
	}

	q := r.URL.Query()
	if v := q.Get("bslive.delay.ms"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			p.delay = time.Duration(ms) * time.Millisecond
		}
	}
	if v := q.Get("bslive.cache"); v == "prevent" {
		p.cachePrevent = true
	} else if v == "default" {
		p.cachePrevent = false
	}
	if v := q.Get("bslive.inject"); v != "" {
		p.inject = v
	}
	return p
}

// runPipeline executes inner, then applies the response pipeline stages in
// the documented outer-to-inner order, finally flushing to w.
func runPipeline(inner http.Handler, opts config.RouteOpts, connectorSnippet string, w http.ResponseWriter, r *http.Request) {
	rec := newRecorder()
	inner.ServeHTTP(rec, r)

	p := resolvePipelineOpts(opts, r)

	body := rec.body.Bytes()
	contentType := rec.header.Get("Content-Type")

	// 6. Body modification: inject connector/builtin snippet into HTML
	// responses the client accepts and the route permits.
	if p.inject != "" && p.inject != "false" && strings.Contains(contentType, "text/html") && acceptsHTML(r) {
		body = injectSnippet(body, connectorSnippet)
		rec.header.Set("X-Bslive-Inject", "true")
	}

	// 1. Compression.
	encoding := ""
	if p.compression && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write(body)
		_ = gz.Close()
		body = buf.Bytes()
		encoding = "gzip"
	}

	for k, vs := range rec.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if encoding != "" {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))

	// 3. CORS.
	if p.cors {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
	}

	// 4. Response-header injection.
	for k, v := range p.headers {
		w.Header().Set(k, v)
	}

	// 5. Cache-prevent headers.
	if p.cachePrevent {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
	} else {
		w.Header().Del("Cache-Control")
		w.Header().Del("Pragma")
		w.Header().Del("Expires")
	}

	// 2. Delay: sleep before the first byte goes out.
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// injectSnippet inserts snippet immediately before the closing </body> tag,
// or appends it when no such tag is present.
func injectSnippet(body []byte, snippet string) []byte {
	const closeTag = "</body>"
	idx := bytes.LastIndex(body, []byte(closeTag))
	if idx < 0 {
		return append(body, []byte(snippet)...)
	}
	out := make([]byte, 0, len(body)+len(snippet))
	out = append(out, body[:idx]...)
	out = append(out, []byte(snippet)...)
	out = append(out, body[idx:]...)
	return out
}

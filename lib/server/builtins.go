package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bslive-dev/bslive/lib/assets"
	"github.com/bslive-dev/bslive/lib/logging"
	"github.com/bslive-dev/bslive/lib/router"
)

// connectorAsset is served with ETag/If-Modified-Since support via lib/assets,
// the same machinery the teacher uses for its embedded GUI bundle. bslive
// has no embedded frontend of its own, only the connector script, so it is
// registered once at package init time rather than generated per binary.
var connectorAsset = assets.Asset{
	Content:  connectorScript,
	Gzipped:  false,
	Length:   len(connectorScript),
	Filename: "bslive-connector.js",
	Modified: time.Unix(0, 0),
}

// connectorScript is the browser connector served at GET /__bs_js; HTML
// bodies get router.ConnectorSnippet, a script tag that loads it.
const connectorScript = `(function(){
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + "/__bs_ws");
  ws.onmessage = function(ev) {
    try {
      var msg = JSON.parse(ev.data);
      if (msg.kind === "Change" || msg.kind === "FsMany") {
        location.reload();
      }
    } catch (e) {}
  };
})();`

// builtinHandler dispatches the fixed set of /__bs_* control endpoints
// every ServerActor exposes, ahead of user-configured routes.
func (a *Actor) builtinHandler(path string) (http.Handler, bool) {
	switch {
	case path == "/__bs_js":
		return http.HandlerFunc(a.serveConnectorJS), true
	case path == "/__bslive":
		return http.HandlerFunc(a.serveRouteListing), true
	case path == "/__bs_api/servers":
		return http.HandlerFunc(a.serveServersInventory), true
	case path == "/__bs_api/me":
		return http.HandlerFunc(a.serveMe), true
	case path == "/__bs_api/metrics":
		return a.metrics.handler(), true
	case path == "/__bs_api/events":
		return http.HandlerFunc(a.serveEventsPost), true
	case path == "/__bs_api/logs":
		return http.HandlerFunc(a.serveLogs), true
	case path == "/__bs_ws":
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { a.hub.serveWS(w, r) }), true
	case strings.HasPrefix(path, "/__bslive/playground"):
		return http.HandlerFunc(a.servePlayground), true
	default:
		return nil, false
	}
}

func (a *Actor) serveConnectorJS(w http.ResponseWriter, r *http.Request) {
	assets.Serve(w, r, connectorAsset)
}

func (a *Actor) serveRouteListing(w http.ResponseWriter, r *http.Request) {
	routes := a.routesSnapshot()
	var b strings.Builder
	b.WriteString("<html><body><h1>bslive routes</h1><ul>")
	for _, rt := range routes {
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", rt.Path, rt.Path)
	}
	b.WriteString("</ul></body></html>")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (a *Actor) serveServersInventory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"identity": a.identity.String(),
		"addr":     a.Addr,
	})
}

func (a *Actor) serveMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"identity": a.identity.String(),
		"addr":     a.Addr,
		"clients":  a.hub.clientCount(),
		"routes":   len(a.routesSnapshot()),
	})
}

func (a *Actor) serveEventsPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ev ClientEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	a.hub.broadcast(ev)
	w.WriteHeader(http.StatusAccepted)
}

// serveLogs returns recorded log lines newer than ?since (RFC3339), or all
// buffered lines if since is absent or unparseable. Errors-only lines are
// returned when ?errors=true.
func (a *Actor) serveLogs(w http.ResponseWriter, r *http.Request) {
	since := time.Unix(0, 0)
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			since = t
		}
	}
	var lines any
	if r.URL.Query().Get("errors") == "true" {
		lines = logging.SinceError(since)
	} else {
		lines = logging.Since(since)
	}
	writeJSON(w, map[string]any{"lines": lines})
}

func (a *Actor) servePlayground(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	pg := a.cfg.Playground
	a.mu.RUnlock()
	if pg == nil {
		http.NotFound(w, r)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h1>%s</h1><ul>", pg.Title)
	for _, item := range pg.Items {
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", item.Route, item.Name)
	}
	b.WriteString("</ul></body></html>")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String() + router.ConnectorSnippet))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

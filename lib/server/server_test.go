package server_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/server"
)

func startTestActor(t *testing.T, cfg config.Server) (*server.Actor, func()) {
	t.Helper()
	a := server.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Serve(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for a.Addr == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return a, func() {
		cancel()
		<-done
	}
}

func TestServerActorServesRoutes(t *testing.T) {
	cfg := config.Server{
		Identity: config.PortIdentity(0),
		Routes: []config.Route{
			{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "hey"}},
		},
	}
	a, stop := startTestActor(t, cfg)
	defer stop()

	resp, err := http.Get("http://" + a.Addr + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hey" {
		t.Fatalf("expected hey, got %q", body)
	}
}

func TestServerActorBuiltinConnectorJS(t *testing.T) {
	cfg := config.Server{Identity: config.PortIdentity(0)}
	a, stop := startTestActor(t, cfg)
	defer stop()

	resp, err := http.Get("http://" + a.Addr + "/__bs_js")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "WebSocket") {
		t.Fatalf("expected connector script, got %q", body)
	}
}

func TestServerActorMetricsEndpoint(t *testing.T) {
	cfg := config.Server{
		Identity: config.PortIdentity(0),
		Routes: []config.Route{
			{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "hey"}},
		},
	}
	a, stop := startTestActor(t, cfg)
	defer stop()

	if _, err := http.Get("http://" + a.Addr + "/"); err != nil {
		t.Fatalf("warmup request failed: %v", err)
	}

	resp, err := http.Get("http://" + a.Addr + "/__bs_api/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "bslive_http_requests_total") {
		t.Fatalf("expected request counter in metrics output, got %q", body)
	}
}

func TestServerActorLogsEndpoint(t *testing.T) {
	cfg := config.Server{
		Identity: config.PortIdentity(0),
		Routes: []config.Route{
			{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "hey"}},
		},
	}
	a, stop := startTestActor(t, cfg)
	defer stop()

	if _, err := http.Get("http://" + a.Addr + "/"); err != nil {
		t.Fatalf("warmup request failed: %v", err)
	}

	resp, err := http.Get("http://" + a.Addr + "/__bs_api/logs")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "\"lines\"") {
		t.Fatalf("expected a lines field in response, got %q", body)
	}
}

func TestServerActorPatchEmitsDiff(t *testing.T) {
	cfg := config.Server{
		Identity: config.PortIdentity(0),
		Routes: []config.Route{
			{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "v1"}},
		},
	}
	a, stop := startTestActor(t, cfg)
	defer stop()

	newCfg := cfg
	newCfg.Routes = []config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "v2"}},
	}
	diff := a.Patch(newCfg)
	if diff.Empty() {
		t.Fatalf("expected a changed route")
	}

	resp, err := http.Get("http://" + a.Addr + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "v2" {
		t.Fatalf("expected patched body v2, got %q", body)
	}
}

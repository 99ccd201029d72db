package supervisor_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/supervisor"
)

func TestReconcileStartsAndStops(t *testing.T) {
	s := supervisor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	id := config.PortIdentity(0)
	input := config.Input{Servers: []config.Server{{Identity: id}}}

	results := s.Reconcile(input)
	if len(results) != 1 || results[0].Kind != supervisor.Started {
		t.Fatalf("expected one Started result, got %+v", results)
	}

	actor, ok := s.Actor(id)
	if !ok {
		t.Fatalf("expected actor registered")
	}
	if _, err := http.Get("http://" + actor.Addr + "/__bs_js"); err != nil {
		t.Fatalf("server not reachable: %v", err)
	}

	results = s.Reconcile(config.Input{})
	if len(results) != 1 || results[0].Kind != supervisor.Stopped {
		t.Fatalf("expected Stopped result, got %+v", results)
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := s.Actor(id); ok {
		t.Fatalf("expected actor removed after stop")
	}
}

func TestReconcilePatchesUnchangedIdentity(t *testing.T) {
	s := supervisor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	id := config.NamedIdentity("main")
	cfg1 := config.Server{Identity: id, Routes: []config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "v1"}},
	}}
	s.Reconcile(config.Input{Servers: []config.Server{cfg1}})

	cfg2 := cfg1
	cfg2.Routes = []config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "v2"}},
	}
	results := s.Reconcile(config.Input{Servers: []config.Server{cfg2}})
	if len(results) != 1 || results[0].Kind != supervisor.Patched {
		t.Fatalf("expected Patched result, got %+v", results)
	}
}

package system_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/events"
	"github.com/bslive-dev/bslive/lib/system"
)

func TestSystemStartsConfiguredServers(t *testing.T) {
	identity := config.PortIdentity(0)
	input := config.Input{Servers: []config.Server{
		{
			Identity: identity,
			Routes: []config.Route{
				{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Kind: config.RawPlain, Body: "hey"}},
			},
		},
	}}

	wrapper := config.Wrap("", input)
	sys := system.New(wrapper, "", events.NewLogger(), nil)
	wrapper.Subscribe(sys)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sys.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	var addr string
	for time.Now().Before(deadline) {
		if actor, ok := sys.Actor(identity); ok && actor.Addr != "" {
			addr = actor.Addr
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("expected server to bind within deadline")
	}

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hey" {
		t.Fatalf("expected body hey, got %q", body)
	}
}

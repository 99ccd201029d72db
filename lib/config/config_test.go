// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bslive-dev/bslive/lib/config"
)

func TestYAMLLoaderBasicServer(t *testing.T) {
	doc := []byte(`
servers:
  - port: 4040
    routes:
      - path: /
        raw: "hey"
`)
	in, err := (config.YAMLLoader{}).Load("bslive.yml", doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in.Servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(in.Servers))
	}
	if in.Servers[0].Identity.Kind != config.IdentityPort || in.Servers[0].Identity.Port != 4040 {
		t.Fatalf("unexpected identity: %+v", in.Servers[0].Identity)
	}
	if len(in.Servers[0].Routes) != 1 || in.Servers[0].Routes[0].Raw.Body != "hey" {
		t.Fatalf("unexpected routes: %+v", in.Servers[0].Routes)
	}
}

func TestYAMLLoaderParseError(t *testing.T) {
	_, err := (config.YAMLLoader{}).Load("bslive.yml", []byte("servers: [this is not valid"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	var perr *config.ParseError
	if pe, ok := err.(*config.ParseError); ok {
		perr = pe
	}
	if perr == nil {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestRegistryLoadFileRejectsMalformedRoutePath(t *testing.T) {
	cases := []string{
		"routes:\n      - path: api\n        raw: hey\n",      // missing leading slash
		"routes:\n      - path: \"/api/*x\"\n        raw: hey\n", // wildcard
	}
	for _, routesYAML := range cases {
		doc := "servers:\n  - port: 4040\n    " + routesYAML
		dir := t.TempDir()
		file := filepath.Join(dir, "bslive.yml")
		if err := os.WriteFile(file, []byte(doc), 0o644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}

		_, _, err := config.NewRegistry().LoadFile(file, dir)
		if err == nil {
			t.Fatalf("expected an error loading %q, got none", doc)
		}
		if _, ok := err.(*config.ParseError); !ok {
			t.Fatalf("expected *ParseError, got %T: %v", err, err)
		}
	}
}

func TestServerIdentityOrderingAndHash(t *testing.T) {
	a := config.NamedIdentity("alpha")
	b := config.NamedIdentity("beta")
	if !a.Less(b) {
		t.Fatal("expected alpha < beta")
	}
	if a.Hash() == b.Hash() {
		t.Fatal("expected distinct hashes")
	}
	if a.Hash() != config.NamedIdentity("alpha").Hash() {
		t.Fatal("expected stable hash for equal identities")
	}
}

func TestRoutesManifestDiff(t *testing.T) {
	before := config.NewRoutesManifest([]config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Body: "a"}},
		{Path: "/old", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Body: "x"}},
	})
	after := config.NewRoutesManifest([]config.Route{
		{Path: "/", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Body: "b"}},
		{Path: "/new", Kind: config.RouteKindRaw, Raw: &config.RawPayload{Body: "y"}},
	})
	cs := before.Diff(after)
	if len(cs.Added) != 1 || cs.Added[0].Path != "/new" {
		t.Fatalf("unexpected added: %+v", cs.Added)
	}
	if len(cs.Removed) != 1 || cs.Removed[0].Path != "/old" {
		t.Fatalf("unexpected removed: %+v", cs.Removed)
	}
	if len(cs.Changed) != 1 || cs.Changed[0].Path != "/" {
		t.Fatalf("unexpected changed: %+v", cs.Changed)
	}
}

func TestWrapperReplaceNotifiesHandlers(t *testing.T) {
	w := config.Wrap("", config.Input{})

	var mu sync.Mutex
	var got config.Input
	done := make(chan struct{})
	w.Subscribe(config.HandlerFunc(func(from, to config.Input) {
		mu.Lock()
		got = to
		mu.Unlock()
		close(done)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Serve(ctx)

	next := config.Input{Servers: []config.Server{{Identity: config.PortIdentity(8080)}}}
	w.Replace(next)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got.Servers) != 1 || got.Servers[0].Identity.Port != 8080 {
		t.Fatalf("unexpected replaced config: %+v", got)
	}
	if len(w.Raw().Servers) != 1 {
		t.Fatalf("wrapper did not retain replaced config")
	}
}

// Package supervisor implements ServersSupervisor: it reconciles a live
// fleet of server.Actors against an evolving config.Input, starting,
// stopping, and patching ServerActors as the input changes.
package supervisor

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/logging"
	"github.com/bslive-dev/bslive/lib/server"
	"github.com/bslive-dev/bslive/lib/syncutil"
)

// ResultKind is the closed set of outcomes reconciling one identity.
type ResultKind int

const (
	Started ResultKind = iota
	Stopped
	Patched
	Errored
)

// ChildResult reports what happened to one ServerIdentity during a
// reconciliation pass.
type ChildResult struct {
	Identity config.ServerIdentity
	Kind     ResultKind
	Addr     string
	Err      error
}

type child struct {
	actor *server.Actor
	token suture.ServiceToken
}

// Supervisor owns the live fleet of server.Actors, keyed by identity, and
// is itself a suture.Service so BsSystem can run it as a supervised child.
type Supervisor struct {
	sup *suture.Supervisor

	tlsConfig *tls.Config

	mu       syncutil.Mutex
	children map[config.ServerIdentity]*child
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithTLS makes every ServerActor the Supervisor starts terminate TLS using
// cfg, mirroring server.WithTLS down through Reconcile/start.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Supervisor) { s.tlsConfig = cfg }
}

// New builds a Supervisor; its lifetime is governed by Serve.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		sup:      suture.NewSimple("servers-supervisor"),
		mu:       syncutil.NewMutex(),
		children: make(map[config.ServerIdentity]*child),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve implements suture.Service: it runs the inner suture.Supervisor
// that actually owns every ServerActor goroutine.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.sup.Serve(ctx)
}

func (s *Supervisor) String() string { return "servers-supervisor" }

// Reconcile partitions existing vs incoming identities into
// shutdown/start/patch and applies each, returning one ChildResult per
// identity touched.
func (s *Supervisor) Reconcile(input config.Input) []ChildResult {
	incoming := make(map[config.ServerIdentity]config.Server, len(input.Servers))
	for _, srv := range input.Servers {
		incoming[srv.Identity] = srv
	}

	s.mu.Lock()
	existing := make(map[config.ServerIdentity]*child, len(s.children))
	for id, c := range s.children {
		existing[id] = c
	}
	s.mu.Unlock()

	var results []ChildResult

	for id, c := range existing {
		if _, ok := incoming[id]; !ok {
			s.stop(id, c)
			results = append(results, ChildResult{Identity: id, Kind: Stopped})
		}
	}

	for id, cfg := range incoming {
		if c, ok := existing[id]; ok {
			diff := c.actor.Patch(cfg)
			_ = diff
			results = append(results, ChildResult{Identity: id, Kind: Patched, Addr: c.actor.Addr})
			continue
		}
		res := s.start(id, cfg)
		results = append(results, res)
	}

	return results
}

func (s *Supervisor) start(id config.ServerIdentity, cfg config.Server) ChildResult {
	var opts []server.Option
	if s.tlsConfig != nil {
		opts = append(opts, server.WithTLS(s.tlsConfig))
	}
	actor := server.New(cfg, opts...)
	token := s.sup.Add(actor)

	deadline := time.Now().Add(2 * time.Second)
	for actor.Addr == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if actor.Addr == "" {
		s.sup.Remove(token)
		return ChildResult{Identity: id, Kind: Errored, Err: server.ErrInvalidAddress}
	}

	s.mu.Lock()
	s.children[id] = &child{actor: actor, token: token}
	s.mu.Unlock()

	logging.With("component", "supervisor").Info("server started", "identity", id.String(), "addr", actor.Addr)
	return ChildResult{Identity: id, Kind: Started, Addr: actor.Addr}
}

func (s *Supervisor) stop(id config.ServerIdentity, c *child) {
	_ = s.sup.Remove(c.token)
	s.mu.Lock()
	delete(s.children, id)
	s.mu.Unlock()
	logging.With("component", "supervisor").Info("server stopped", "identity", id.String())
}

// Actor returns the live ServerActor for id, if any — used by BsSystem to
// route NotifyServer tasks and by tests.
func (s *Supervisor) Actor(id config.ServerIdentity) (*server.Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[id]
	if !ok {
		return nil, false
	}
	return c.actor, true
}

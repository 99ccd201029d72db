package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/logging"
	"github.com/bslive-dev/bslive/lib/router"
	"github.com/bslive-dev/bslive/lib/syncutil"
)

// Listen errors, mirroring the closed error taxonomy a ServerActor can
// report back to the supervisor.
var (
	ErrAddrInUse      = errors.New("server: address already in use")
	ErrInvalidAddress = errors.New("server: invalid bind address")
	ErrClosed         = errors.New("server: closed")
)

// Actor is one HTTP server: identity, current route manifest, the mounted
// router, and the WebSocket broadcast hub its handlers share.
type Actor struct {
	identity config.ServerIdentity

	mu       syncutil.RWMutex
	cfg      config.Server
	manifest config.RoutesManifest
	handler  http.Handler

	hub     *hub
	metrics *actorMetrics

	listener net.Listener
	httpSrv  *http.Server

	tlsConfig *tls.Config

	// Addr is filled in after a successful Listen, for named identities that
	// bind an ephemeral port.
	Addr string
}

// Option configures an Actor at construction time.
type Option func(*Actor)

// WithTLS makes the Actor terminate TLS using cfg, instead of plain HTTP.
// The CLI builds cfg from lib/tlsutil once at startup and threads it down
// through the Supervisor when --https is set.
func WithTLS(cfg *tls.Config) Option {
	return func(a *Actor) { a.tlsConfig = cfg }
}

// New builds an Actor for cfg; it does not bind or serve until Serve runs.
func New(cfg config.Server, opts ...Option) *Actor {
	a := &Actor{
		identity: cfg.Identity,
		cfg:      cfg,
		manifest: config.NewRoutesManifest(cfg.Routes),
		hub:      newHub(),
		metrics:  newActorMetrics(cfg.Identity.String()),
		mu:       syncutil.NewRWMutex(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.handler = a.buildHandler()
	return a
}

func (a *Actor) Identity() config.ServerIdentity { return a.identity }

// Serve implements suture.Service: it binds, serves until ctx is
// cancelled, then gracefully shuts down.
func (a *Actor) Serve(ctx context.Context) error {
	log := logging.With("component", "server", "identity", a.identity.String())

	ln, err := a.bind()
	if err != nil {
		return err
	}
	a.listener = ln
	a.Addr = ln.Addr().String()

	a.httpSrv = &http.Server{Handler: a.metrics.middleware(http.HandlerFunc(a.serveHTTP)), TLSConfig: a.tlsConfig}

	errCh := make(chan error, 1)
	go func() {
		if a.tlsConfig != nil {
			errCh <- a.httpSrv.ServeTLS(ln, "", "")
		} else {
			errCh <- a.httpSrv.Serve(ln)
		}
	}()

	log.Info("listening", "addr", a.Addr, "tls", a.tlsConfig != nil)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.httpSrv.Shutdown(shutdownCtx)
		log.Info("stopped")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *Actor) String() string { return "server(" + a.identity.String() + ")" }

// bind resolves the identity into a listenable address.
func (a *Actor) bind() (net.Listener, error) {
	addr := a.bindAddress()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %s", ErrAddrInUse, addr)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, addr, err)
	}
	return ln, nil
}

func (a *Actor) bindAddress() string {
	id := a.identity
	switch id.Kind {
	case config.IdentityAddress:
		return id.Address
	case config.IdentityNamedAddress:
		return id.Address
	case config.IdentityPort:
		return "127.0.0.1:" + strconv.Itoa(id.Port)
	case config.IdentityNamedPort:
		return "127.0.0.1:" + strconv.Itoa(id.Port)
	default:
		return "127.0.0.1:0"
	}
}

func (a *Actor) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := a.builtinHandler(r.URL.Path); ok {
		h.ServeHTTP(w, r)
		return
	}
	a.mu.RLock()
	h := a.handler
	a.mu.RUnlock()
	h.ServeHTTP(w, r)
}

// Patch rebuilds the route table from newCfg, diffs it against the current
// manifest, and broadcasts a Change event for everything that differs.
func (a *Actor) Patch(newCfg config.Server) config.RouteChangeSet {
	newManifest := config.NewRoutesManifest(newCfg.Routes)

	a.mu.Lock()
	diff := a.manifest.Diff(newManifest)
	a.cfg = newCfg
	a.manifest = newManifest
	a.handler = a.buildHandler()
	a.mu.Unlock()

	if !diff.Empty() {
		for _, c := range changesFromManifestDiff(diff) {
			a.hub.broadcast(changeEvent(c))
		}
	}
	return diff
}

// NotifyChange broadcasts an externally-triggered change (from a
// NotifyServer task), bypassing the route manifest diff entirely.
func (a *Actor) NotifyChange(paths []string) {
	if len(paths) == 1 {
		a.hub.broadcast(changeEvent(Change{Path: paths[0], Kind: ChangeChanged}))
		return
	}
	cs := make([]Change, len(paths))
	for i, p := range paths {
		cs[i] = Change{Path: p, Kind: ChangeChanged}
	}
	a.hub.broadcast(manyEvent(cs))
}

func (a *Actor) buildHandler() http.Handler {
	return router.Build(a.cfg.Routes)
}

func (a *Actor) routesSnapshot() []config.Route {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Routes
}


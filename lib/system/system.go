// Package system implements BsSystem: the top-level actor that owns the
// ServersSupervisor and every PathMonitor, classifies incoming filesystem
// events as input-reload vs user-change, and drives the TaskScopeRunner.
package system

import (
	"context"
	"crypto/tls"
	"path/filepath"

	"github.com/thejerf/suture/v4"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/events"
	"github.com/bslive-dev/bslive/lib/fswatcher"
	"github.com/bslive-dev/bslive/lib/logging"
	"github.com/bslive-dev/bslive/lib/pathmonitor"
	"github.com/bslive-dev/bslive/lib/server"
	"github.com/bslive-dev/bslive/lib/supervisor"
	"github.com/bslive-dev/bslive/lib/suturewrap"
	"github.com/bslive-dev/bslive/lib/syncutil"
	"github.com/bslive-dev/bslive/lib/taskscope"
)

// monitorEntry tracks one live PathMonitor so it can be stopped when its
// watchable drops out of a reloaded input.
type monitorEntry struct {
	watchable config.Watchable
	cancel    context.CancelFunc
}

// System is BsSystem: it wires the Wrapper, ServersSupervisor, PathMonitors
// and TaskScopeRunner together into one reactive loop.
type System struct {
	Wrapper   *config.Wrapper
	Events    *events.Logger
	InputPath string

	sup    *supervisor.Supervisor
	runner taskscope.Runner

	mu       syncutil.Mutex
	monitors map[uint64]*monitorEntry
	inflight map[fswatcher.Context]bool

	grouping chan pathmonitor.Tagged
}

// New builds a System around an already-constructed Wrapper. The caller is
// responsible for calling Wrapper.Subscribe(sys) before running Serve so
// reloads reach Changed. tlsConfig is optional; when non-nil, every
// ServerActor the System starts terminates TLS with it instead of plain
// HTTP.
func New(wrapper *config.Wrapper, inputPath string, evtLogger *events.Logger, tlsConfig *tls.Config) *System {
	var supOpts []supervisor.Option
	if tlsConfig != nil {
		supOpts = append(supOpts, supervisor.WithTLS(tlsConfig))
	}
	s := &System{
		Wrapper:   wrapper,
		Events:    evtLogger,
		InputPath: inputPath,
		sup:       supervisor.New(supOpts...),
		mu:        syncutil.NewMutex(),
		monitors:  make(map[uint64]*monitorEntry),
		inflight:  make(map[fswatcher.Context]bool),
		grouping:  make(chan pathmonitor.Tagged, 64),
	}
	s.runner = taskscope.Runner{Notify: s.notifyServer, Publish: s.publishExternal}
	return s
}

// Serve runs the supervisor tree (the ServersSupervisor and the config
// Wrapper), starts every PathMonitor in its own goroutine, and runs the
// event-grouping dispatch loop until ctx is cancelled.
func (s *System) Serve(ctx context.Context) error {
	root := suture.NewSimple("bs-system")
	root.Add(s.sup)
	root.Add(suturewrap.AsService(s.Wrapper.Serve, "config-wrapper"))

	rootDone := make(chan error, 1)
	go func() { rootDone <- root.Serve(ctx) }()

	s.reconcile(s.Wrapper.Raw())
	s.monitorWatchables(ctx, s.Wrapper.Raw())
	s.monitorInputFile(ctx)

	for {
		select {
		case tagged := <-s.grouping:
			s.handleGrouping(ctx, tagged)
		case <-ctx.Done():
			return ctx.Err()
		case err := <-rootDone:
			return err
		}
	}
}

func (s *System) String() string { return "bs-system" }

// Actor exposes the live ServerActor for id, used by the CLI to print
// bound addresses and by tests.
func (s *System) Actor(id config.ServerIdentity) (*server.Actor, bool) {
	return s.sup.Actor(id)
}

// Changed implements config.Handler: called by Wrapper.Serve whenever the
// input document is replaced (either by a reload or an external override).
// It reconciles servers only; running PathMonitors are left as they are.
func (s *System) Changed(from, to config.Input) {
	s.reconcile(to)
	s.Events.Log(events.ServersChanged, to)
}

func (s *System) reconcile(input config.Input) {
	results := s.sup.Reconcile(input)
	log := logging.With("component", "system")
	for _, r := range results {
		log.Info("reconciled server", "identity", r.Identity.String(), "kind", r.Kind, "addr", r.Addr)
	}
}

// monitorWatchables diffs the currently-running PathMonitors against the
// watchable set implied by input, stopping dropped ones and starting new
// ones with a freshly-computed FsEventContext.
func (s *System) monitorWatchables(ctx context.Context, input config.Input) {
	incoming := input.Watchables()
	seen := make(map[uint64]bool, len(incoming))

	s.mu.Lock()
	existing := make(map[uint64]*monitorEntry, len(s.monitors))
	for h, m := range s.monitors {
		existing[h] = m
	}
	s.mu.Unlock()

	for _, w := range incoming {
		h := w.Hash()
		seen[h] = true
		if _, ok := existing[h]; ok {
			continue
		}
		s.startMonitor(ctx, w, h)
	}

	for h, m := range existing {
		if !seen[h] {
			m.cancel()
			s.mu.Lock()
			delete(s.monitors, h)
			s.mu.Unlock()
		}
	}
}

func (s *System) startMonitor(ctx context.Context, w config.Watchable, hash uint64) {
	id := hash
	if w.Server != nil {
		id = w.Server.Hash()
	}
	fsCtx := fswatcher.Context{ID: id, OriginID: hash}

	monCtx, cancel := context.WithCancel(ctx)
	mon := pathmonitor.New(w, fsCtx, s.grouping)

	s.mu.Lock()
	s.monitors[hash] = &monitorEntry{watchable: w, cancel: cancel}
	s.mu.Unlock()

	go func() {
		if err := mon.Serve(monCtx); err != nil && monCtx.Err() == nil {
			logging.With("component", "system").Warn("path monitor stopped", "error", err)
		}
	}()
	s.Events.Log(events.Watching, w)
}

// monitorInputFile watches the loaded input file itself (RootContext),
// reusing the same PathMonitor machinery with a single-path, server-less
// Watchable.
func (s *System) monitorInputFile(ctx context.Context) {
	if s.InputPath == "" {
		return
	}
	w := config.Watchable{
		Kind:  config.WatchableAny,
		Paths: []string{filepath.Dir(s.InputPath)},
		Spec:  config.WatchableSpec{Filter: []config.PathFilter{{Kind: config.FilterList, List: []config.PathFilter{{Kind: config.FilterGlob, Value: filepath.Base(s.InputPath)}}}}},
	}
	monCtx, cancel := context.WithCancel(ctx)
	mon := pathmonitor.New(w, fswatcher.RootContext, s.grouping)

	s.mu.Lock()
	s.monitors[0] = &monitorEntry{watchable: w, cancel: cancel}
	s.mu.Unlock()

	go func() {
		if err := mon.Serve(monCtx); err != nil && monCtx.Err() == nil {
			logging.With("component", "system").Warn("input file monitor stopped", "error", err)
		}
	}()
}

// handleGrouping classifies an incoming FsEvent grouping: (0,0) triggers an
// input reload, anything else looks up the originating watchable and runs
// its task graph, unless one is already in flight for that context.
func (s *System) handleGrouping(ctx context.Context, tagged pathmonitor.Tagged) {
	fsCtx := groupingContext(tagged.Grouping)

	if fsCtx.IsRoot() {
		s.reloadInput()
		return
	}

	s.mu.Lock()
	if s.inflight[fsCtx] {
		s.mu.Unlock()
		return
	}
	s.inflight[fsCtx] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, fsCtx)
			s.mu.Unlock()
		}()
		s.runTaskGraph(ctx, tagged)
	}()
}

func groupingContext(g fswatcher.Grouping) fswatcher.Context {
	if g.Singular != nil {
		return g.Singular.Ctx
	}
	if g.Buffered != nil {
		return g.Buffered.Ctx
	}
	return fswatcher.Context{}
}

func (s *System) reloadInput() {
	reg := config.NewRegistry()
	in, path, err := reg.LoadFile(s.InputPath, filepath.Dir(s.InputPath))
	if err != nil {
		s.Events.Log(events.InputError, err)
		return
	}
	s.Events.Log(events.InputFileChanged, path)
	s.Wrapper.Replace(in)
	s.Events.Log(events.InputAccepted, in)
}

func (s *System) runTaskGraph(ctx context.Context, tagged pathmonitor.Tagged) {
	spec := tagged.Watchable.Spec.Run
	if spec == nil {
		spec = config.DefaultTaskSpec()
	}

	trig := taskscope.Trigger{Ctx: groupingContext(tagged.Grouping), Paths: groupingPaths(tagged.Grouping), Reason: "fs change"}
	report := s.runner.Run(ctx, spec, trig)
	if !report.Ok() {
		logging.With("component", "system").Warn("task graph failed", "kind", report.Kind, "message", report.Message)
	}
}

func groupingPaths(g fswatcher.Grouping) []string {
	if g.Singular != nil {
		return []string{g.Singular.Path.Absolute}
	}
	if g.Buffered != nil {
		paths := make([]string, len(g.Buffered.Paths))
		for i, p := range g.Buffered.Paths {
			paths[i] = p.Absolute
		}
		return paths
	}
	return nil
}

func (s *System) notifyServer(ctx context.Context, trig taskscope.Trigger) error {
	for _, srv := range s.Wrapper.Raw().Servers {
		if srv.Identity.Hash() == trig.Ctx.ID {
			if actor, ok := s.sup.Actor(srv.Identity); ok {
				actor.NotifyChange(trig.Paths)
			}
			break
		}
	}
	s.Events.Log(events.FilesChanged, trig.Paths)
	return nil
}

func (s *System) publishExternal(trig taskscope.Trigger) {
	s.Events.Log(events.FilesChanged, trig.Paths)
}

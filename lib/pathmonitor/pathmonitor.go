// Package pathmonitor implements PathMonitor: a thin actor that owns one
// FsWatcher per path in a single watchable and forwards their debounced
// output upward, tagged with the watchable's FsEventContext.
package pathmonitor

import (
	"context"
	"sync"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/fswatcher"
	"github.com/bslive-dev/bslive/lib/logging"
)

// Monitor owns zero or more fswatcher.Watchers for a single Watchable.
type Monitor struct {
	Watchable config.Watchable
	Ctx       fswatcher.Context
	Out       chan<- Tagged

	watchers []*fswatcher.Watcher
}

// Tagged is a Grouping forwarded upward along with the Watchable it came
// from, so BsSystem can look the watchable back up by hash without storing
// a side table of channel identities.
type Tagged struct {
	Watchable config.Watchable
	Grouping  fswatcher.Grouping
}

// New builds a Monitor for watchable, correlated by ctx (computed by
// BsSystem: id is the server-identity hash when the watchable belongs to a
// server, else the watchable hash; origin_id is always the watchable
// hash).
func New(w config.Watchable, ctx fswatcher.Context, out chan<- Tagged) *Monitor {
	return &Monitor{Watchable: w, Ctx: ctx, Out: out}
}

// Serve spawns one Watcher per path and blocks, re-tagging and forwarding
// every Grouping they produce, until ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context) error {
	log := logging.With("component", "pathmonitor", "paths", m.Watchable.Paths)

	debounce := fswatcher.Debounce{Kind: m.Watchable.Spec.DebounceKind, Duration: m.Watchable.Spec.Debounce}
	if debounce.Duration == 0 {
		debounce = fswatcher.DefaultDebounce
	}

	inner := make(chan fswatcher.Grouping, 64)
	var wg sync.WaitGroup
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, path := range m.Watchable.Paths {
		watcher := fswatcher.New(path, m.Watchable.Spec.Filter, m.Watchable.Spec.Ignore, debounce, m.Ctx, inner)
		m.watchers = append(m.watchers, watcher)
		wg.Add(1)
		go func(w *fswatcher.Watcher) {
			defer wg.Done()
			if err := w.Serve(innerCtx); err != nil && innerCtx.Err() == nil {
				log.Warn("watcher stopped", "error", err)
			}
		}(watcher)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case g := <-inner:
			select {
			case m.Out <- Tagged{Watchable: m.Watchable, Grouping: g}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			// Every watcher exited (e.g. every root failed to resolve).
			return nil
		}
	}
}

package fswatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/syncthing/notify"

	"github.com/bslive-dev/bslive/internal/slogutil"
	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/logging"
)

// Watcher is the FsWatcher actor: it wraps one native recursive watch on a
// single root path, applies the 3-stage filter pipeline, debounces the
// survivors, and emits Groupings to a single recipient channel.
//
// A PathMonitor owns one Watcher per path in its watchable.
type Watcher struct {
	Root      string
	Include   []config.PathFilter
	Ignore    []config.PathFilter
	Debounce  Debounce
	Ctx       Context
	Recipient chan<- Grouping

	mu      sync.Mutex
	stopped bool
}

// New constructs a Watcher. Call Serve (directly, or via a suture
// supervisor) to start it.
func New(root string, include, ignore []config.PathFilter, debounce Debounce, ctx Context, recipient chan<- Grouping) *Watcher {
	return &Watcher{
		Root:      filepath.Clean(root),
		Include:   include,
		Ignore:    ignore,
		Debounce:  debounce,
		Ctx:       ctx,
		Recipient: recipient,
	}
}

// Serve starts the native watch, filters and debounces its output, and
// blocks until ctx is cancelled or the watch itself fails. On failure it
// emits a PathNotFoundError event and returns a non-nil error (the
// supervisor does not restart a watcher whose root vanished).
func (w *Watcher) Serve(ctx context.Context) error {
	log := logging.With("component", "fswatcher", slogutil.FilePath(w.Root))

	evCh := make(chan notify.EventInfo, 256)
	if err := notify.Watch(filepath.Join(w.Root, "..."), evCh, notify.All); err != nil {
		log.Error("watch failed", slogutil.Error(err))
		w.emit(Event{Kind: PathNotFoundError, Path: PathDescription{Absolute: w.Root}, Ctx: w.Ctx})
		return fmt.Errorf("fswatcher: watch %s: %w", w.Root, err)
	}
	defer notify.Stop(evCh)

	w.emit(Event{Kind: PathAdded, Path: newPathDescription(filepath.Dir(w.Root), w.Root), Ctx: w.Ctx})

	filtered := make(chan PathDescription, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.runDebounce(ctx, filtered)
	}()

	for {
		select {
		case <-ctx.Done():
			close(filtered)
			<-done
			return ctx.Err()
		case ev, ok := <-evCh:
			if !ok {
				close(filtered)
				<-done
				return nil
			}
			w.handleRaw(ev, filtered, log)
		}
	}
}

func (w *Watcher) handleRaw(ev notify.EventInfo, filtered chan<- PathDescription, log interface {
	Debug(string, ...any)
}) {
	path := ev.Path()
	op := classify(ev.Event())
	if !platformAccepts(op, w.Root, path) {
		return
	}
	if !acceptPath(w.Include, w.Ignore, path) {
		return
	}
	log.Debug("accepted fs event", "path", path)
	select {
	case filtered <- newPathDescription(w.Root, path):
	default:
		// Debounce stage is slow; drop rather than block the OS watch.
	}
}

func classify(e notify.Event) platformOp {
	switch e {
	case notify.Write:
		return opWrite
	case notify.Create:
		return opCreate
	case notify.Remove:
		return opRemove
	case notify.Rename:
		return opRename
	default:
		return opMetadata
	}
}

// runDebounce is the debounce stage: Trailing emits the single latest
// event after `duration` of silence; Buffered accumulates and dedups by
// path over rolling `duration` windows.
func (w *Watcher) runDebounce(ctx context.Context, in <-chan PathDescription) {
	switch w.Debounce.Kind {
	case config.DebounceBuffered:
		w.runBuffered(ctx, in)
	default:
		w.runTrailing(ctx, in)
	}
}

func (w *Watcher) runTrailing(ctx context.Context, in <-chan PathDescription) {
	var timer *time.Timer
	var pending *PathDescription
	var timerC <-chan time.Time

	for {
		select {
		case pd, ok := <-in:
			if !ok {
				return
			}
			cp := pd
			pending = &cp
			if timer == nil {
				timer = time.NewTimer(w.Debounce.Duration)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.Debounce.Duration)
			}
			timerC = timer.C
		case <-timerC:
			if pending != nil {
				w.emit(Event{Kind: Change, Path: *pending, Ctx: w.Ctx})
				pending = nil
			}
			timerC = nil
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) runBuffered(ctx context.Context, in <-chan PathDescription) {
	var timer *time.Timer
	var timerC <-chan time.Time
	seen := map[string]PathDescription{}

	flush := func() {
		if len(seen) == 0 {
			return
		}
		batch := BufferedChangeEvent{Ctx: w.Ctx}
		for _, pd := range seen {
			batch.Paths = append(batch.Paths, pd)
		}
		w.emitGrouping(Grouping{Buffered: &batch})
		seen = map[string]PathDescription{}
	}

	for {
		select {
		case pd, ok := <-in:
			if !ok {
				flush()
				return
			}
			seen[pd.Absolute] = pd
			if timer == nil {
				timer = time.NewTimer(w.Debounce.Duration)
				timerC = timer.C
			}
		case <-timerC:
			flush()
			timer = nil
			timerC = nil
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) emit(e Event) {
	w.emitGrouping(Grouping{Singular: &e})
}

func (w *Watcher) emitGrouping(g Grouping) {
	select {
	case w.Recipient <- g:
	default:
		// A blocked recipient should not stall the watcher's internal
		// goroutines; PathMonitor's channel is sized generously, so hitting
		// this path means the consumer has stopped reading.
	}
}

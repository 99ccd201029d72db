// Package fswatcher wraps a native recursive filesystem watch
// (github.com/syncthing/notify) and turns its raw, noisy event stream into
// filtered, debounced FsEvents for a single PathMonitor recipient.
package fswatcher

import (
	"path/filepath"
	"time"

	"github.com/bslive-dev/bslive/lib/config"
)

// Context is the two-part identifier routing a filesystem event to both a
// server (for client notification) and a watchable (for task lookup). The
// zero value, (0,0), is reserved for the input-file watcher.
type Context struct {
	ID       uint64
	OriginID uint64
}

// IsRoot reports whether this is the reserved input-file watching context.
func (c Context) IsRoot() bool { return c.ID == 0 && c.OriginID == 0 }

// RootContext is the reserved context used only for watching the input
// document itself.
var RootContext = Context{}

// PathDescription carries both the absolute path and, when available, the
// path relative to the watcher's root.
type PathDescription struct {
	Absolute string
	Relative string
}

func newPathDescription(root, absolute string) PathDescription {
	pd := PathDescription{Absolute: absolute}
	if rel, err := filepath.Rel(root, absolute); err == nil {
		pd.Relative = rel
	}
	return pd
}

// Kind is the closed set of event shapes an FsWatcher can emit.
type Kind int

const (
	Change Kind = iota
	PathAdded
	PathRemoved
	PathNotFoundError
)

// Event is a single occurrence reported by a Watcher.
type Event struct {
	Kind Kind
	Path PathDescription
	Ctx  Context
}

// Grouping is what a PathMonitor forwards upward: either a single Change
// (Trailing debounce mode) or a deduplicated batch (Buffered mode).
type Grouping struct {
	Singular *Event
	Buffered *BufferedChangeEvent
}

// BufferedChangeEvent is the deduplicated-by-path batch a Buffered-mode
// debounce window produces.
type BufferedChangeEvent struct {
	Paths []PathDescription
	Ctx   Context
}

// DroppingAbsolute returns a copy of the batch with any entry matching path
// removed, for excluding one file (such as the input file itself) from a
// directory-wide buffered batch. Nothing in this module calls it.
func (b BufferedChangeEvent) DroppingAbsolute(path string) BufferedChangeEvent {
	out := BufferedChangeEvent{Ctx: b.Ctx}
	for _, p := range b.Paths {
		if p.Absolute != path {
			out.Paths = append(out.Paths, p)
		}
	}
	return out
}

// Debounce selects one of the two exposed debounce stream adapters by its
// Kind. Each Kind runs its own loop because their output invariants differ:
// Trailing always emits a single value, Buffered emits a deduplicated set.
type Debounce struct {
	Kind     config.DebounceKind
	Duration time.Duration
}

func TrailingMS(ms int64) Debounce {
	return Debounce{Kind: config.DebounceTrailing, Duration: time.Duration(ms) * time.Millisecond}
}

func BufferedMS(ms int64) Debounce {
	return Debounce{Kind: config.DebounceBuffered, Duration: time.Duration(ms) * time.Millisecond}
}

// DefaultDebounce matches the original implementation's default: trailing,
// 300ms.
var DefaultDebounce = TrailingMS(300)

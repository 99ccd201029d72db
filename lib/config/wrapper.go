// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"context"

	"github.com/bslive-dev/bslive/lib/syncutil"
)

// Handler is notified whenever the wrapped Input is replaced. BsSystem is
// the primary handler: on Changed it asks the supervisor to reconcile. It
// does not recompute watchables; its PathMonitors keep the set computed
// from the Input it started with.
type Handler interface {
	Changed(from, to Input)
}

// HandlerFunc adapts a plain func to Handler.
type HandlerFunc func(from, to Input)

func (f HandlerFunc) Changed(from, to Input) { f(from, to) }

// Wrapper owns the live Input and fans out every Replace to its
// subscribers, serializing delivery through a single internal goroutine so
// handlers never race each other's Changed calls.
type Wrapper struct {
	cfg      Input
	path     string
	mut      syncutil.RWMutex
	replaces chan Input
	subs     []Handler
}

// Wrap returns a Wrapper around an already-parsed Input, associated with
// path for diagnostics (e.g. reporting where a later parse error occurred).
func Wrap(path string, cfg Input) *Wrapper {
	return &Wrapper{
		cfg:      cfg,
		path:     path,
		mut:      syncutil.NewRWMutex(),
		replaces: make(chan Input, 4),
	}
}

// Serve drains the replace queue, invoking every subscribed Handler in
// order for each replacement, until ctx is cancelled. Intended to run as a
// suture.Service inside BsSystem's supervisor tree.
func (w *Wrapper) Serve(ctx context.Context) error {
	for {
		select {
		case next := <-w.replaces:
			w.mut.Lock()
			prev := w.cfg
			w.cfg = next
			subs := append([]Handler(nil), w.subs...)
			w.mut.Unlock()
			for _, s := range subs {
				s.Changed(prev, next)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe registers h to be called on every future Replace. h is not
// called for the Wrapper's current value; callers needing the initial
// state should call Raw first.
func (w *Wrapper) Subscribe(h Handler) {
	w.mut.Lock()
	defer w.mut.Unlock()
	w.subs = append(w.subs, h)
}

// Raw returns the current Input.
func (w *Wrapper) Raw() Input {
	w.mut.RLock()
	defer w.mut.RUnlock()
	return w.cfg
}

// Path returns the path the wrapper was loaded from, or "" if constructed
// in-memory (e.g. from CLI path arguments with no config file).
func (w *Wrapper) Path() string {
	return w.path
}

// Replace enqueues a new Input to be delivered to every Handler in Serve's
// goroutine. Up to 4 replacements are queued without blocking; beyond that,
// Replace blocks until Serve takes the next one.
func (w *Wrapper) Replace(cfg Input) {
	w.replaces <- cfg
}

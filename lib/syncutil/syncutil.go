// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package syncutil provides wrappers for sync.Mutex, sync.RWMutex and
// sync.WaitGroup that optionally log held-too-long critical sections. bslive
// actors hold very few locks (mainly a ServerActor's route table) so the
// debug build is cheap insurance against reintroducing accidental blocking
// inside a request path.
package syncutil

import (
	"runtime"
	"sync"
	"time"

	"github.com/bslive-dev/bslive/lib/logging"
)

// threshold is the hold duration above which a lock acquisition is logged.
// Kept as a var, not a const, so tests can lower it.
var threshold = 100 * time.Millisecond

// debug toggles the logging wrappers on. Off by default; flip with
// SetDebug(true). The CLI has no flag for it.
var debug = false

// SetDebug enables or disables lock-hold logging process-wide.
func SetDebug(v bool) {
	debug = v
}

type Mutex interface {
	Lock()
	Unlock()
}

type RWMutex interface {
	Mutex
	RLock()
	RUnlock()
}

type WaitGroup interface {
	Add(int)
	Done()
	Wait()
}

func NewMutex() Mutex {
	if debug {
		return &loggedMutex{}
	}
	return &sync.Mutex{}
}

func NewRWMutex() RWMutex {
	if debug {
		return &loggedRWMutex{}
	}
	return &sync.RWMutex{}
}

func NewWaitGroup() WaitGroup {
	if debug {
		return &loggedWaitGroup{}
	}
	return &sync.WaitGroup{}
}

type loggedMutex struct {
	sync.Mutex
	start time.Time
}

func (m *loggedMutex) Lock() {
	m.Mutex.Lock()
	m.start = time.Now()
}

func (m *loggedMutex) Unlock() {
	d := time.Since(m.start)
	if d >= threshold {
		logHeld("mutex", d)
	}
	m.Mutex.Unlock()
}

type loggedRWMutex struct {
	sync.RWMutex
	start time.Time
}

func (m *loggedRWMutex) Lock() {
	m.RWMutex.Lock()
	m.start = time.Now()
}

func (m *loggedRWMutex) Unlock() {
	d := time.Since(m.start)
	if d >= threshold {
		logHeld("rwmutex", d)
	}
	m.RWMutex.Unlock()
}

type loggedWaitGroup struct {
	sync.WaitGroup
	start time.Time
	once  sync.Once
}

func (wg *loggedWaitGroup) Add(delta int) {
	wg.once.Do(func() { wg.start = time.Now() })
	wg.WaitGroup.Add(delta)
}

func (wg *loggedWaitGroup) Wait() {
	wg.WaitGroup.Wait()
	if d := time.Since(wg.start); d >= threshold {
		logHeld("waitgroup", d)
	}
}

func logHeld(kind string, d time.Duration) {
	pc, file, line, _ := runtime.Caller(2)
	fn := runtime.FuncForPC(pc)
	logging.With("component", "syncutil").Debug("long critical section",
		"kind", kind, "held", d, "at", file, "line", line, "func", funcName(fn))
}

func funcName(fn *runtime.Func) string {
	if fn == nil {
		return "?"
	}
	return fn.Name()
}

// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package suturewrap adapts plain context-taking functions and bslive's own
// actor-shaped types to suture.Service, so every actor in the reactive
// engine (FsWatcher, PathMonitor, ServerActor, ServersSupervisor, BsSystem)
// can be registered on a common supervisor.Supervisor tree.
package suturewrap

import (
	"context"
	"fmt"
)

// Service is the subset of suture.Service bslive actors implement directly.
type Service interface {
	Serve(ctx context.Context) error
}

// AsService wraps a simple "run until ctx is done" function as a
// suture.Service, giving it a name for supervisor logging and panic
// reports. fn must return (nil or an error) promptly once ctx is done.
func AsService(fn func(ctx context.Context) error, name string) *funcService {
	return &funcService{fn: fn, name: name}
}

type funcService struct {
	fn      func(ctx context.Context) error
	name    string
	started bool
}

// Serve runs the wrapped function until ctx is cancelled or it returns.
// Calling Serve a second time on the same instance is a programmer error
// and panics with the service's name, mirroring suture's own contract that
// a Service value is not meant to be reused across registrations.
func (s *funcService) Serve(ctx context.Context) error {
	if s.started {
		panic(fmt.Sprintf("suturewrap: Serve called twice on service %q", s.name))
	}
	s.started = true
	return s.fn(ctx)
}

func (s *funcService) String() string {
	return s.name
}

// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"hash/fnv"
)

// RouteIdentity identifies a route independent of its content, so the
// manifest can tell "the route at this path/kind changed" from "a route
// was added/removed".
type RouteIdentity struct {
	Path    string
	KindTag RouteKind
}

// RoutesManifest maps a RouteIdentity to a structural hash of its full
// content, letting ServerActor.Patch diff an old manifest against a new one
// into added/removed/changed sets without reflecting on the whole Route.
type RoutesManifest map[RouteIdentity]uint64

// NewRoutesManifest builds a manifest from a server's ordered route list.
func NewRoutesManifest(routes []Route) RoutesManifest {
	m := make(RoutesManifest, len(routes))
	for _, r := range routes {
		m[RouteIdentity{Path: r.Path, KindTag: r.Kind}] = hashRoute(r)
	}
	return m
}

func hashRoute(r Route) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%+v", r)
	return h.Sum64()
}

// RouteChangeSet is the result of diffing two manifests.
type RouteChangeSet struct {
	Added   []RouteIdentity
	Removed []RouteIdentity
	Changed []RouteIdentity
}

func (c RouteChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// Diff computes the change set transitioning from prev to next.
func (prev RoutesManifest) Diff(next RoutesManifest) RouteChangeSet {
	var out RouteChangeSet
	for id, hash := range next {
		if oldHash, ok := prev[id]; !ok {
			out.Added = append(out.Added, id)
		} else if oldHash != hash {
			out.Changed = append(out.Changed, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			out.Removed = append(out.Removed, id)
		}
	}
	return out
}

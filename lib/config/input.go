// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config holds the Input data model — the root document produced by
// a Loader and consumed by the supervisor and monitor initialisation — plus
// the Wrapper that lets the rest of the system subscribe to hot reloads.
package config

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"
)

// Input is the root document: a list of Server definitions plus a keyed map
// of named Run recipes referenced by Watchable.Spec.Run.
type Input struct {
	Servers []Server            `yaml:"servers" json:"servers"`
	Runs    map[string]*TaskSpec `yaml:"runs,omitempty" json:"runs,omitempty"`
}

// Watchables returns every Watchable implied by this input: one per server
// that declares Watchers, plus one per directory-backed Route that opts
// into watching.
func (in Input) Watchables() []Watchable {
	var out []Watchable
	for _, srv := range in.Servers {
		id := srv.Identity
		for _, w := range srv.Watchers {
			w.Server = &id
			out = append(out, w)
		}
		for _, r := range srv.Routes {
			if r.Kind != RouteKindDir || r.Opts.Watch == nil || !*r.Opts.Watch {
				continue
			}
			out = append(out, Watchable{
				Kind:      WatchableRoute,
				Server:    &id,
				RoutePath: r.Path,
				Paths:     r.Dirs,
				Spec:      r.Opts.WatchSpec,
			})
		}
	}
	return out
}

// IdentityKind enumerates ServerIdentity's closed set of shapes.
type IdentityKind int

const (
	IdentityNamed IdentityKind = iota
	IdentityAddress
	IdentityNamedAddress
	IdentityPort
	IdentityNamedPort
)

// ServerIdentity identifies a Server. It is hashable and total-ordered,
// which is exactly what ServersSupervisor needs to use it as a diff key.
type ServerIdentity struct {
	Kind    IdentityKind
	Name    string
	Address string
	Port    int
}

func NamedIdentity(name string) ServerIdentity { return ServerIdentity{Kind: IdentityNamed, Name: name} }
func AddressIdentity(addr string) ServerIdentity {
	return ServerIdentity{Kind: IdentityAddress, Address: addr}
}
func NamedAddressIdentity(name, addr string) ServerIdentity {
	return ServerIdentity{Kind: IdentityNamedAddress, Name: name, Address: addr}
}
func PortIdentity(port int) ServerIdentity { return ServerIdentity{Kind: IdentityPort, Port: port} }
func NamedPortIdentity(name string, port int) ServerIdentity {
	return ServerIdentity{Kind: IdentityNamedPort, Name: name, Port: port}
}

// String renders the identity for logs and the /__bs_api/servers inventory.
func (id ServerIdentity) String() string {
	switch id.Kind {
	case IdentityNamed:
		return id.Name
	case IdentityAddress:
		return id.Address
	case IdentityNamedAddress:
		return fmt.Sprintf("%s (%s)", id.Name, id.Address)
	case IdentityPort:
		return fmt.Sprintf(":%d", id.Port)
	case IdentityNamedPort:
		return fmt.Sprintf("%s (:%d)", id.Name, id.Port)
	default:
		return "?"
	}
}

// Less gives ServerIdentity a total order: first by kind, then by fields,
// so it can be used as a stable sort key wherever diff output is rendered
// deterministically (e.g. ChildResult lists).
func (id ServerIdentity) Less(other ServerIdentity) bool {
	if id.Kind != other.Kind {
		return id.Kind < other.Kind
	}
	if id.Name != other.Name {
		return id.Name < other.Name
	}
	if id.Address != other.Address {
		return id.Address < other.Address
	}
	return id.Port < other.Port
}

// Hash returns a stable uint64 fingerprint, used as the FsEventContext.id
// correlating filesystem events back to this server's ServerActor.
func (id ServerIdentity) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s|%d", id.Kind, id.Name, id.Address, id.Port)
	return h.Sum64()
}

// Server is one HTTP server definition: identity, ordered routes, watched
// paths, and an optional playground.
type Server struct {
	Identity   ServerIdentity `json:"identity"`
	Routes     []Route        `yaml:"routes" json:"routes"`
	Watchers   []Watchable    `yaml:"watchers,omitempty" json:"watchers,omitempty"`
	Playground *Playground    `yaml:"playground,omitempty" json:"playground,omitempty"`
}

// Playground is a titled, ordered list of named snippet routes rendered at
// GET /__bslive/playground.
type Playground struct {
	Title string             `yaml:"title" json:"title"`
	Items []PlaygroundItem   `yaml:"items" json:"items"`
}

type PlaygroundItem struct {
	Name  string `yaml:"name" json:"name"`
	Route string `yaml:"route" json:"route"`
}

// RouteKind is the closed set of ways a Route can answer a request.
type RouteKind int

const (
	RouteKindRaw RouteKind = iota
	RouteKindProxy
	RouteKindDir
)

// RawKind further distinguishes a RouteKindRaw route's content type.
type RawKind int

const (
	RawHTML RawKind = iota
	RawJSON
	RawPlain
	RawSSE
)

// RewriteKind controls proxy path composition: Nested strips the mount
// prefix before forwarding; Alias preserves the full incoming path.
type RewriteKind int

const (
	RewriteNested RewriteKind = iota
	RewriteAlias
)

// RewriteKindFromBool mirrors the input format's `rewrite_uri: bool`
// field: unset/true means Nested, explicit false means Alias.
func RewriteKindFromBool(v *bool) RewriteKind {
	if v != nil && !*v {
		return RewriteAlias
	}
	return RewriteNested
}

// Route is one entry in a Server's ordered route list.
type Route struct {
	Path     string      `yaml:"path" json:"path"`
	Kind     RouteKind   `json:"kind"`
	Raw      *RawPayload `yaml:"raw,omitempty" json:"raw,omitempty"`
	Proxy    *ProxyOpts  `yaml:"proxy,omitempty" json:"proxy,omitempty"`
	Dirs     []string    `yaml:"dirs,omitempty" json:"dirs,omitempty"`
	Opts     RouteOpts   `yaml:"opts,omitempty" json:"opts,omitempty"`
	When     []WhenGuard `yaml:"when,omitempty" json:"when,omitempty"`
	WhenBody []WhenBodyGuard `yaml:"when_body,omitempty" json:"when_body,omitempty"`
	Fallback bool        `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

type RawPayload struct {
	Kind RawKind
	Body string
}

type ProxyOpts struct {
	Target      string            `yaml:"target" json:"target"`
	RewriteKind RewriteKind       `json:"rewrite_kind"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	PathMirror  string            `yaml:"path_mirror,omitempty" json:"path_mirror,omitempty"`
}

// RouteOpts carries the cross-cutting behaviors a Route can opt into.
type RouteOpts struct {
	CORS             bool            `yaml:"cors,omitempty" json:"cors,omitempty"`
	DelayMS          int             `yaml:"delay_ms,omitempty" json:"delay_ms,omitempty"`
	Compression      bool            `yaml:"compression,omitempty" json:"compression,omitempty"`
	CacheDefault     bool            `yaml:"cache_default,omitempty" json:"cache_default,omitempty"`
	Inject           []string        `yaml:"inject,omitempty" json:"inject,omitempty"`
	ResponseHeaders  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Watch            *bool           `yaml:"watch,omitempty" json:"watch,omitempty"`
	WatchSpec        WatchableSpec   `yaml:"watch_spec,omitempty" json:"watch_spec,omitempty"`
	Base             string          `yaml:"base,omitempty" json:"base,omitempty"`
}

// WhenGuard filters which requests a route will answer.
type WhenGuard struct {
	ExactURI   string `yaml:"exact_uri,omitempty" json:"exact_uri,omitempty"`
	QueryHas   string `yaml:"query_has,omitempty" json:"query_has,omitempty"`
	QueryIs    [2]string `yaml:"query_is,omitempty" json:"query_is,omitempty"`
	QueryNot   string `yaml:"query_not_has,omitempty" json:"query_not_has,omitempty"`
	AcceptHTML bool   `yaml:"accept_html,omitempty" json:"accept_html,omitempty"`
}

// WhenBodyGuard, JsonGuard and JsonPropGuard implement JSON-Pointer based
// body matching, ported from the original Rust guard taxonomy.
type WhenBodyGuard struct {
	Never bool
	JSON  *JsonGuard
}

type JsonGuard struct {
	ArrayLast *ArrayLastGuard
	ArrayAny  *ArrayGuard
	ArrayAll  *ArrayGuard
	Path      *JsonPropGuard
}

type ArrayLastGuard struct {
	Items string
	Last  []JsonPropGuard
}

type ArrayGuard struct {
	Items string
	Props []JsonPropGuard
}

type JsonPropGuard struct {
	Path   string
	Is     *string
	Has    *string
	NotHas *string
}

// WatchableKind is the closed set of reactivity units.
type WatchableKind int

const (
	WatchableServer WatchableKind = iota
	WatchableRoute
	WatchableAny
)

// Watchable is the unit of reactivity: a set of watched paths plus a spec
// describing debounce, filters, and the task graph to run on change.
type Watchable struct {
	Kind      WatchableKind   `json:"kind"`
	Server    *ServerIdentity `json:"server,omitempty"`
	RoutePath string          `yaml:"route_path,omitempty" json:"route_path,omitempty"`
	Paths     []string        `yaml:"paths" json:"paths"`
	Spec      WatchableSpec   `yaml:"spec,omitempty" json:"spec,omitempty"`
}

// Hash is a stable fingerprint used as FsEventContext.origin_id.
func (w Watchable) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%v|%s|", w.Kind, w.Server, w.RoutePath)
	paths := append([]string(nil), w.Paths...)
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(h, "%s,", p)
	}
	return h.Sum64()
}

// DebounceKind picks between the two exposed debounce stream adapters.
type DebounceKind int

const (
	DebounceTrailing DebounceKind = iota
	DebounceBuffered
)

// WatchableSpec configures a Watchable's debounce, filters, and reactions.
type WatchableSpec struct {
	DebounceKind DebounceKind    `yaml:"debounce_kind,omitempty" json:"debounce_kind,omitempty"`
	Debounce     time.Duration   `yaml:"debounce,omitempty" json:"debounce,omitempty"`
	Filter       []PathFilter    `yaml:"filter,omitempty" json:"filter,omitempty"`
	Ignore       []PathFilter    `yaml:"ignore,omitempty" json:"ignore,omitempty"`
	BeforeRun    *TaskSpec       `yaml:"before_run,omitempty" json:"before_run,omitempty"`
	Run          *TaskSpec       `yaml:"run,omitempty" json:"run,omitempty"`
	RunRef       string          `yaml:"run_ref,omitempty" json:"run_ref,omitempty"`
}

// PathFilterKind enumerates the include/ignore filter taxonomy shared by
// both filter stages of the FsWatcher pipeline.
type PathFilterKind int

const (
	FilterExtension PathFilterKind = iota
	FilterGlob
	FilterAny
	FilterList
)

type PathFilter struct {
	Kind  PathFilterKind
	Value string
	List  []PathFilter
}

// RunKind controls how a Many node's children execute.
type RunKind int

const (
	RunSequence RunKind = iota
	RunOverlapping
)

// TaskKind is the closed set of TaskSpec node shapes.
type TaskKind int

const (
	TaskNotifyServer TaskKind = iota
	TaskPublishExternalEvent
	TaskShell
	TaskMany
)

// TaskSpec is a tree: leaves are NotifyServer/PublishExternalEvent/Sh,
// interior nodes are Many carrying a RunKind over child TaskSpecs.
type TaskSpec struct {
	Kind TaskKind `json:"kind"`

	// TaskShell fields.
	ShCommand string `yaml:"command,omitempty" json:"command,omitempty"`
	ShName    string `yaml:"name,omitempty" json:"name,omitempty"`
	ShPrefix  string `yaml:"prefix,omitempty" json:"prefix,omitempty"`

	// TaskMany fields.
	RunKind        RunKind    `yaml:"run_kind,omitempty" json:"run_kind,omitempty"`
	MaxConcurrent  int        `yaml:"max_concurrent_items,omitempty" json:"max_concurrent_items,omitempty"`
	ExitOnFailure  bool       `yaml:"exit_on_failure,omitempty" json:"exit_on_failure,omitempty"`
	Children       []TaskSpec `yaml:"tasks,omitempty" json:"tasks,omitempty"`
}

// DefaultTaskSpec is used when a Watchable has no explicit `run`: notify
// affected ServerActors, then republish the change as an external event.
func DefaultTaskSpec() *TaskSpec {
	return &TaskSpec{
		Kind:          TaskMany,
		RunKind:       RunSequence,
		ExitOnFailure: false,
		Children: []TaskSpec{
			{Kind: TaskNotifyServer},
			{Kind: TaskPublishExternalEvent},
		},
	}
}

// Hash is a deterministic structural fingerprint of the subtree, combined
// with idx (the child's position in its parent) to disambiguate identical
// sibling subtrees — the identity TaskScopeRunner uses to correlate
// invocations with reports.
func (t TaskSpec) Hash(idx int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s|%d|%d|%v|",
		idx, t.Kind, t.ShCommand, t.ShName, t.ShPrefix, t.RunKind, t.MaxConcurrent, t.ExitOnFailure)
	for i, c := range t.Children {
		fmt.Fprintf(h, "%d,", c.Hash(i))
	}
	return h.Sum64()
}

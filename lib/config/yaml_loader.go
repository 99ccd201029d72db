// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLLoader is the primary, fully-implemented Loader. It decodes directly
// into a yamlInput shadow tree (whose field shapes match the data model's
// yaml tags) rather than Input itself, because Route/Watchable carry Go
// sum-type fields (Raw/Proxy/Dirs, When guards) that need small amounts of
// post-decode normalization.
type YAMLLoader struct{}

func (YAMLLoader) CanLoad(path string) bool {
	return strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")
}

type yamlInput struct {
	Servers []yamlServer         `yaml:"servers"`
	Runs    map[string]yamlTask  `yaml:"runs"`
}

type yamlServer struct {
	Name       string          `yaml:"name"`
	Address    string          `yaml:"address"`
	Port       int             `yaml:"port"`
	Routes     []yamlRoute     `yaml:"routes"`
	Watchers   []yamlWatchable `yaml:"watchers"`
	Playground *Playground     `yaml:"playground"`
}

type yamlRoute struct {
	Path        string            `yaml:"path"`
	Raw         string            `yaml:"raw"`
	HTML        string            `yaml:"html"`
	JSON        string            `yaml:"json"`
	SSE         string            `yaml:"sse"`
	Proxy       string            `yaml:"proxy"`
	RewriteURI  *bool             `yaml:"rewrite_uri"`
	ProxyHeaders map[string]string `yaml:"proxy_headers"`
	Dir         string            `yaml:"dir"`
	Dirs        []string          `yaml:"dirs"`
	Opts        yamlOpts          `yaml:"opts"`
	Inject      *bool             `yaml:"inject"`
	Fallback    bool              `yaml:"fallback"`
}

type yamlOpts struct {
	CORS        bool              `yaml:"cors"`
	DelayMS     int               `yaml:"delay_ms"`
	Compression bool              `yaml:"compression"`
	Cache       string            `yaml:"cache"`
	Headers     map[string]string `yaml:"headers"`
	Watch       *bool             `yaml:"watch"`
	Base        string            `yaml:"base"`
}

type yamlWatchable struct {
	Paths    []string `yaml:"paths"`
	Debounce string   `yaml:"debounce"`
	Run      string   `yaml:"run"`
}

type yamlTask struct {
	Command       string     `yaml:"command"`
	Name          string     `yaml:"name"`
	RunKind       string     `yaml:"run_kind"`
	ExitOnFailure bool       `yaml:"exit_on_failure"`
	MaxConcurrent int        `yaml:"max_concurrent_items"`
	Tasks         []yamlTask `yaml:"tasks"`
}

func (YAMLLoader) Load(path string, data []byte) (Input, error) {
	var y yamlInput
	if err := yaml.Unmarshal(data, &y); err != nil {
		var te *yaml.TypeError
		line := 0
		if ok := errorsAs(err, &te); ok && len(te.Errors) > 0 {
			line = firstLineFromTypeError(te.Errors[0])
		}
		return Input{}, &ParseError{Path: path, Line: line, Err: err}
	}

	in := Input{Runs: make(map[string]*TaskSpec, len(y.Runs))}
	for name, t := range y.Runs {
		ts := convertTask(t)
		in.Runs[name] = &ts
	}

	for _, s := range y.Servers {
		srv := Server{Identity: identityFor(s), Playground: s.Playground}
		for _, r := range s.Routes {
			srv.Routes = append(srv.Routes, convertRoute(r))
		}
		for _, w := range s.Watchers {
			srv.Watchers = append(srv.Watchers, convertWatchable(w, in.Runs))
		}
		in.Servers = append(in.Servers, srv)
	}
	return in, nil
}

func identityFor(s yamlServer) ServerIdentity {
	switch {
	case s.Name != "" && s.Address != "":
		return NamedAddressIdentity(s.Name, s.Address)
	case s.Name != "" && s.Port != 0:
		return NamedPortIdentity(s.Name, s.Port)
	case s.Name != "":
		return NamedIdentity(s.Name)
	case s.Address != "":
		return AddressIdentity(s.Address)
	default:
		return PortIdentity(s.Port)
	}
}

func convertRoute(r yamlRoute) Route {
	out := Route{Path: r.Path, Fallback: r.Fallback}
	switch {
	case r.Proxy != "":
		out.Kind = RouteKindProxy
		out.Proxy = &ProxyOpts{
			Target:      r.Proxy,
			RewriteKind: RewriteKindFromBool(r.RewriteURI),
			Headers:     r.ProxyHeaders,
		}
	case r.Dir != "" || len(r.Dirs) > 0:
		out.Kind = RouteKindDir
		out.Dirs = r.Dirs
		if r.Dir != "" {
			out.Dirs = append(out.Dirs, r.Dir)
		}
	case r.HTML != "":
		out.Kind = RouteKindRaw
		out.Raw = &RawPayload{Kind: RawHTML, Body: r.HTML}
	case r.JSON != "":
		out.Kind = RouteKindRaw
		out.Raw = &RawPayload{Kind: RawJSON, Body: r.JSON}
	case r.SSE != "":
		out.Kind = RouteKindRaw
		out.Raw = &RawPayload{Kind: RawSSE, Body: r.SSE}
	default:
		out.Kind = RouteKindRaw
		out.Raw = &RawPayload{Kind: RawPlain, Body: r.Raw}
	}

	inject := out.Kind == RouteKindRaw && out.Raw != nil && out.Raw.Kind == RawHTML
	if r.Inject != nil {
		inject = *r.Inject
	}
	var injectList []string
	if inject {
		injectList = []string{"connector"}
	}

	out.Opts = RouteOpts{
		CORS:            r.Opts.CORS,
		DelayMS:         r.Opts.DelayMS,
		Compression:     r.Opts.Compression,
		CacheDefault:    r.Opts.Cache == "default",
		Inject:          injectList,
		ResponseHeaders: r.Opts.Headers,
		Watch:           r.Opts.Watch,
		Base:            r.Opts.Base,
	}
	return out
}

func convertWatchable(w yamlWatchable, runs map[string]*TaskSpec) Watchable {
	spec := WatchableSpec{Debounce: parseDebounce(w.Debounce)}
	if w.Run != "" {
		if ts, ok := runs[w.Run]; ok {
			spec.Run = ts
		} else {
			spec.RunRef = w.Run
		}
	}
	return Watchable{Kind: WatchableServer, Paths: w.Paths, Spec: spec}
}

func parseDebounce(s string) time.Duration {
	if s == "" {
		return 300 * time.Millisecond
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 300 * time.Millisecond
}

func convertTask(t yamlTask) TaskSpec {
	if t.Command != "" {
		return TaskSpec{Kind: TaskShell, ShCommand: t.Command, ShName: t.Name}
	}
	ts := TaskSpec{Kind: TaskMany, ExitOnFailure: t.ExitOnFailure, MaxConcurrent: t.MaxConcurrent}
	if t.RunKind == "overlapping" {
		ts.RunKind = RunOverlapping
	}
	for _, c := range t.Tasks {
		ts.Children = append(ts.Children, convertTask(c))
	}
	return ts
}

func firstLineFromTypeError(msg string) int {
	// yaml.v3 TypeError messages are of the form "line N: ...".
	const p = "line "
	i := strings.Index(msg, p)
	if i < 0 {
		return 0
	}
	rest := msg[i+len(p):]
	end := strings.IndexByte(rest, ':')
	if end < 0 {
		return 0
	}
	n, _ := strconv.Atoi(rest[:end])
	return n
}

func errorsAs(err error, target **yaml.TypeError) bool {
	if te, ok := err.(*yaml.TypeError); ok {
		*target = te
		return true
	}
	return false
}

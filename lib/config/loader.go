// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned by Registry.LoadFile when no Loader
// recognizes the file's extension, and by MarkdownLoader when a document
// has no bslive_input or bslive_route block.
var ErrUnsupportedFormat = errors.New("config: unsupported input format")

// validateRoutePath enforces the shape every Route.Path must have to be
// insertable into the httprouter trie Build mounts it on: an absolute path
// with no wildcard segment of its own (Build appends the catch-all it needs
// for Dir/Proxy stacks; a user-supplied "*" would collide with that).
func validateRoutePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("route path %q must start with \"/\"", path)
	}
	if strings.Contains(path, "*") {
		return fmt.Errorf("route path %q must not contain \"*\"", path)
	}
	return nil
}

// validateInput checks every Route path across every Server, so a malformed
// path is rejected at load time with a normal ParseError instead of reaching
// httprouter.Router.Handler later, which panics on an invalid pattern.
func validateInput(path string, in Input) error {
	for _, srv := range in.Servers {
		for _, r := range srv.Routes {
			if err := validateRoutePath(r.Path); err != nil {
				return &ParseError{Path: path, Err: err}
			}
		}
	}
	return nil
}

// ParseError wraps a Loader's parse failure with the source path, so the
// CLI can render it with source-location diagnostics per the external exit
// code contract.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return e.Path + ": line " + itoa(e.Line) + ": " + e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Loader is the boundary contract every input-format implementation must
// satisfy: given raw bytes, produce an Input (or a *ParseError).
type Loader interface {
	// CanLoad reports whether this loader recognizes the given path by
	// extension, without reading it.
	CanLoad(path string) bool
	// Load parses data into an Input.
	Load(path string, data []byte) (Input, error)
}

// DefaultLookupNames is the ordered list of filenames searched in the
// current directory when --input is not given.
var DefaultLookupNames = []string{"bslive.yml", "bslive.yaml", "bslive.md", "bslive.html"}

// Registry dispatches to the first registered Loader whose CanLoad matches.
type Registry struct {
	loaders []Loader
}

// NewRegistry returns a Registry pre-populated with every known Loader: the
// YAML loader, the Markdown loader (fenced bslive_input/bslive_route
// blocks) and the HTML loader (front matter plus a single route).
func NewRegistry() *Registry {
	return &Registry{loaders: []Loader{
		&YAMLLoader{},
		&MarkdownLoader{},
		&HTMLLoader{},
	}}
}

// LoadFile resolves path (searching DefaultLookupNames under dir if path is
// empty) and loads it.
func (r *Registry) LoadFile(path, dir string) (Input, string, error) {
	if path == "" {
		for _, name := range DefaultLookupNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return Input{}, "", os.ErrNotExist
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, path, err
	}
	for _, l := range r.loaders {
		if l.CanLoad(path) {
			in, err := l.Load(path, data)
			if err != nil {
				return in, path, err
			}
			if err := validateInput(path, in); err != nil {
				return Input{}, path, err
			}
			return in, path, nil
		}
	}
	return Input{}, path, ErrUnsupportedFormat
}

// FromDirs builds a minimal Input serving each given directory as a Dir
// route on a single server, mirroring the CLI's trailing path-argument
// behavior when no config file is used.
func FromDirs(dirs []string, port int, cors bool) Input {
	identity := PortIdentity(port)
	route := Route{
		Path: "/",
		Kind: RouteKindDir,
		Dirs: dirs,
		Opts: RouteOpts{CORS: cors},
	}
	return Input{Servers: []Server{{Identity: identity, Routes: []Route{route}}}}
}

// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import "strings"

// HTMLLoader recognizes bslive's HTML input format: an optional YAML front
// matter block (delimited by `---` lines) configuring the server, with the
// remaining document served as the index route's HTML body. `playground`-
// tagged `<script type="bslive/playground">` blocks are out of scope for
// this loader (full HTML parsing is an external-collaborator concern); this
// implements only front-matter selection and the single-route fallback.
type HTMLLoader struct{}

func (HTMLLoader) CanLoad(path string) bool {
	return strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".htm")
}

func (HTMLLoader) Load(path string, data []byte) (Input, error) {
	doc := string(data)
	front, body := splitFrontMatter(doc)

	var in Input
	if front != "" {
		parsed, err := YAMLLoader{}.Load(path, []byte(front))
		if err != nil {
			return Input{}, err
		}
		in = parsed
	}

	route := Route{
		Path: "/",
		Kind: RouteKindRaw,
		Raw:  &RawPayload{Kind: RawHTML, Body: body},
		Opts: RouteOpts{Inject: []string{"connector"}},
	}
	if len(in.Servers) == 0 {
		in.Servers = []Server{{Identity: PortIdentity(0)}}
	}
	in.Servers[0].Routes = append(in.Servers[0].Routes, route)
	return in, nil
}

func splitFrontMatter(doc string) (front, body string) {
	const delim = "---"
	trimmed := strings.TrimLeft(doc, "\n\r\t ")
	if !strings.HasPrefix(trimmed, delim) {
		return "", doc
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return "", doc
	}
	front = rest[:idx]
	body = rest[idx+len("\n"+delim):]
	return strings.TrimSpace(front), strings.TrimLeft(body, "\n\r")
}

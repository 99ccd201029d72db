// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import "strings"

// MarkdownLoader recognizes bslive's Markdown input format: a document with
// fenced code blocks annotated ```bslive_input (a YAML Input block) and
// ```bslive_route (single-route YAML, appended to the nearest preceding
// server). Full Markdown document parsing is an external-collaborator
// concern (see the boundary contract in SPEC_FULL.md); this loader
// implements only the block selection/dispatch contract and defers the
// actual block bodies to YAMLLoader.
type MarkdownLoader struct{}

func (MarkdownLoader) CanLoad(path string) bool {
	return strings.HasSuffix(path, ".md")
}

const (
	fenceInput = "```bslive_input"
	fenceRoute = "```bslive_route"
	fenceClose = "```"
)

func (l MarkdownLoader) Load(path string, data []byte) (Input, error) {
	blocks := extractFencedBlocks(string(data))
	if len(blocks) == 0 {
		return Input{}, ErrUnsupportedFormat
	}

	var in Input
	for _, b := range blocks {
		switch b.tag {
		case fenceInput:
			parsed, err := YAMLLoader{}.Load(path, []byte(b.body))
			if err != nil {
				return Input{}, err
			}
			in = mergeInputs(in, parsed)
		case fenceRoute:
			// The block's single route is appended to the most recent
			// server; a bare route block with no preceding server is
			// attached to a synthetic single server, matching the CLI's
			// single-server default.
			parsed, err := YAMLLoader{}.Load(path, []byte("servers:\n- routes:\n  -\n"+indent(b.body, "    ")))
			if err != nil {
				return Input{}, err
			}
			if len(in.Servers) == 0 {
				in = mergeInputs(in, parsed)
				continue
			}
			last := &in.Servers[len(in.Servers)-1]
			last.Routes = append(last.Routes, parsed.Servers[0].Routes...)
		}
	}
	return in, nil
}

type fencedBlock struct {
	tag  string
	body string
}

func extractFencedBlocks(doc string) []fencedBlock {
	var blocks []fencedBlock
	lines := strings.Split(doc, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line != fenceInput && line != fenceRoute {
			continue
		}
		tag := line
		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == fenceClose {
				break
			}
			body = append(body, lines[j])
		}
		blocks = append(blocks, fencedBlock{tag: tag, body: strings.Join(body, "\n")})
		i = j
	}
	return blocks
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func mergeInputs(a, b Input) Input {
	a.Servers = append(a.Servers, b.Servers...)
	if a.Runs == nil {
		a.Runs = map[string]*TaskSpec{}
	}
	for k, v := range b.Runs {
		a.Runs[k] = v
	}
	return a
}

// Copyright (C) 2024 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	_ "github.com/bslive-dev/bslive/lib/automaxprocs"
	"github.com/bslive-dev/bslive/lib/build"
	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/events"
	"github.com/bslive-dev/bslive/lib/locations"
	"github.com/bslive-dev/bslive/lib/logging"
	"github.com/bslive-dev/bslive/lib/system"
	"github.com/bslive-dev/bslive/lib/tlsutil"
)

const (
	exitSuccess = 0
	exitError   = 1
)

type cli struct {
	Start   startCmd   `cmd:"" default:"1" help:"Serve one or more directories, or a config file, with live reload."`
	Export  exportCmd  `cmd:"" help:"Load a config file and print its resolved route table as JSON."`
	Version versionCmd `cmd:"" help:"Print the version and exit."`
}

type startCmd struct {
	Paths []string `arg:"" optional:"" help:"Directories to serve on a single server, ignored when --input resolves a config file."`
	Port  int      `help:"Port for the directory-serving server; 0 picks an ephemeral port." default:"0"`
	CORS  bool     `help:"Allow cross-origin requests from the directory-serving server."`
	Input string   `help:"Explicit config file path; otherwise bslive.yml/.yaml/.md/.html is looked up in the current directory."`
	HTTPS bool     `help:"Terminate TLS using a self-signed certificate under the config directory."`
}

func (c *startCmd) Run() error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	var input config.Input
	var inputPath string

	if c.Input != "" || len(c.Paths) == 0 {
		reg := config.NewRegistry()
		in, path, err := reg.LoadFile(c.Input, dir)
		if err != nil {
			return reportInputError(c.Input, err)
		}
		input, inputPath = in, path
	} else {
		input = config.FromDirs(c.Paths, c.Port, c.CORS)
	}

	wrapper := config.Wrap(inputPath, input)

	var tlsConfig *tls.Config
	if c.HTTPS {
		tlsConfig, err = buildTLSConfig()
		if err != nil {
			return fmt.Errorf("generating TLS certificate: %w", err)
		}
	}

	evtLogger := events.NewLogger()
	logExternalEvents(evtLogger)

	sys := system.New(wrapper, inputPath, evtLogger, tlsConfig)
	wrapper.Subscribe(sys)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.With("component", "cli").Info("starting", "version", build.LongVersion(), "input", inputPath)

	if err := sys.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildTLSConfig() (*tls.Config, error) {
	certFile := locations.Get(locations.GUICert)
	if err := locations.SetBaseDir("config", filepath.Dir(certFile)); err != nil {
		return nil, err
	}
	cert, err := tlsutil.LoadOrGenerate(certFile, locations.Get(locations.GUIKey), "bslive", "localhost", "127.0.0.1")
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// logExternalEvents mirrors the external event stream documented for
// tooling: every Logged event is printed as a JSON line on stdout.
func logExternalEvents(l *events.Logger) {
	sub := l.Subscribe(events.AllEvents)
	go func() {
		for ev := range sub.C() {
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(os.Stdout, `{"kind":%q,"payload":%s}`+"\n", ev.Type.String(), payload)
		}
	}()
}

type exportCmd struct {
	Paths []string `arg:"" optional:""`
	Port  int      `default:"0"`
	CORS  bool
	Input string
}

func (c *exportCmd) Run() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	var input config.Input
	if c.Input != "" || len(c.Paths) == 0 {
		reg := config.NewRegistry()
		in, _, err := reg.LoadFile(c.Input, dir)
		if err != nil {
			return reportInputError(c.Input, err)
		}
		input = in
	} else {
		input = config.FromDirs(c.Paths, c.Port, c.CORS)
	}

	return writeManifest(os.Stdout, input)
}

// writeManifest prints the resolved route table as indented JSON, one
// server per entry, the shape a CI pipeline would diff across commits.
func writeManifest(w io.Writer, input config.Input) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(input)
}

type versionCmd struct{}

func (versionCmd) Run() error {
	fmt.Println(build.LongVersion())
	return nil
}

// reportInputError renders a *config.ParseError with its source-location
// diagnostics, per the CLI's exit code contract: startup errors from a bad
// input file carry the path (and line, when known) they came from.
func reportInputError(path string, err error) error {
	var perr *config.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("%s", perr.Error())
	}
	if path == "" {
		return fmt.Errorf("no config file found (looked for %v): %w", config.DefaultLookupNames, err)
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func main() {
	var params cli
	parser := kong.Must(&params,
		kong.Name("bslived"),
		kong.Description("Development-time reverse proxy and static file server with browser hot-reload."),
		kong.UsageOnError(),
	)
	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "bslived: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

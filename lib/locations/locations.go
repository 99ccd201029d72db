// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package locations resolves the on-disk paths bslive needs outside of the
// project directory it's serving: the GUI TLS cert/key pair and the default
// log file, honoring XDG overrides before falling back to the user's home
// directory.
package locations

import (
	"os"
	"path/filepath"
)

type LocationEnum int

const (
	GUICert LocationEnum = iota
	GUIKey
	LogFile
)

var baseDirs = map[string]string{
	"config": defaultConfigDir(),
}

var locations = map[LocationEnum]string{
	GUICert: "${config}/https-cert.pem",
	GUIKey:  "${config}/https-key.pem",
	LogFile: "${config}/bslive.log",
}

// Get returns the resolved absolute path for the given location.
func Get(locEnum LocationEnum) string {
	tpl := locations[locEnum]
	return os.Expand(tpl, func(key string) string {
		return baseDirs[key]
	})
}

// SetBaseDir overrides the named base directory ("config") used to resolve
// locations, creating it if necessary.
func SetBaseDir(name, path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return err
	}
	baseDirs[name] = path
	return nil
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bslive")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bslive"
	}
	switch {
	case os.Getenv("GOOS") == "windows":
		return filepath.Join(home, "AppData", "Local", "bslive")
	default:
		return filepath.Join(home, ".config", "bslive")
	}
}

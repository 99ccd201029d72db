// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"log/slog"
	"sort"
)

// Address formats a listen or dial address, e.g. an Actor's bound "host:port".
func Address(v any) slog.Attr {
	return slog.Any("address", v)
}

func Error(err any) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// FilePath formats a watched or served filesystem path, e.g. a fswatcher
// root or a dir route's on-disk file.
func FilePath(path string) slog.Attr {
	return slog.String("path", path)
}

// URI formats a proxy target or upstream URL.
func URI(v any) slog.Attr {
	return slog.Any("uri", v)
}

// Map flattens a map into sorted-by-key slog attrs, for logging something
// like a route table's per-path stack kinds in one structured call.
func Map[T any](m map[string]T) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var attrs []any
	for _, key := range keys {
		attrs = append(attrs, slog.Any(key, m[key]))
	}
	return attrs
}

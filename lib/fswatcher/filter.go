package fswatcher

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"

	"github.com/bslive-dev/bslive/lib/config"
)

// autoExcluded lists directory names whose subtree is never watched,
// regardless of user filters: editor/VCS metadata and tool caches that
// produce constant, meaningless churn.
var autoExcluded = map[string]bool{
	"node_modules": true,
	".git":         true,
	".husky":       true,
	".vscode":      true,
	".idea":        true,
	".sass-cache":  true,
	"bslive.log":   true,
}

// platformOp is the minimal set of raw OS notifications the platform
// filter needs to classify, independent of the notify library's event
// constants.
type platformOp int

const (
	opWrite platformOp = iota
	opMetadata
	opCreate
	opRemove
	opRename
)

// platformAccepts implements the 3-stage platform filter's first stage:
// accept only content/metadata modifications; reject access/create/remove/
// rename, paths ending in "~", and any path whose first component under
// cwd is auto-excluded.
func platformAccepts(op platformOp, cwd, path string) bool {
	if strings.HasSuffix(path, "~") {
		return false
	}
	if isAutoExcluded(cwd, path) {
		return false
	}
	switch op {
	case opWrite, opMetadata:
		return true
	case opCreate:
		// Windows folds some content modifications into a create
		// notification ("any-modify"); every other platform rejects it.
		return isWindows()
	default:
		// Remove/rename are rejected at this stage on every platform; a
		// genuine add/remove is instead surfaced through the
		// RequestWatchPath/RemoveWatchPath control messages, not the data
		// stream.
		return false
	}
}

func isAutoExcluded(cwd, path string) bool {
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	first, _, _ := strings.Cut(rel, "/")
	return autoExcluded[first]
}

// matchesFilterSet reports whether path matches any filter in the set. An
// empty set is treated by the caller according to stage semantics (include:
// empty set means "no restriction"; ignore: empty set means "nothing
// ignored").
func matchesFilterSet(filters []config.PathFilter, path string) bool {
	for _, f := range filters {
		if matchesFilter(f, path) {
			return true
		}
	}
	return false
}

func matchesFilter(f config.PathFilter, path string) bool {
	base := filepath.Base(path)
	switch f.Kind {
	case config.FilterExtension:
		return strings.TrimPrefix(filepath.Ext(path), ".") == strings.TrimPrefix(f.Value, ".")
	case config.FilterGlob:
		return matchesGlob(f.Value, path, base)
	case config.FilterAny:
		return strings.Contains(path, f.Value)
	case config.FilterList:
		return matchesFilterSet(f.List, path)
	default:
		return defaultStringMatch(f.Value, path, base)
	}
}

// defaultStringMatch implements the input format's bare-string filter
// shorthand: treated as a glob when it contains '*', else a plain
// substring match.
func defaultStringMatch(pattern, path, base string) bool {
	if strings.Contains(pattern, "*") {
		return matchesGlob(pattern, path, base)
	}
	return strings.Contains(path, pattern)
}

func matchesGlob(pattern, path, base string) bool {
	if ok, err := doublestar.Match(pattern, filepath.ToSlash(path)); err == nil && ok {
		return true
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false
	}
	return g.Match(filepath.ToSlash(path)) || g.Match(base)
}

// acceptPath runs the include/ignore stages (2 and 3) of the pipeline.
func acceptPath(include, ignore []config.PathFilter, path string) bool {
	if len(include) > 0 && !matchesFilterSet(include, path) {
		return false
	}
	if matchesFilterSet(ignore, path) {
		return false
	}
	return true
}

// isWindows reports whether the platform filter should additionally accept
// "any-modify" events, per the platform filter's Windows carve-out.
func isWindows() bool {
	return runtime.GOOS == "windows"
}

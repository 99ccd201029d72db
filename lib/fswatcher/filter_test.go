package fswatcher

import (
	"testing"

	"github.com/bslive-dev/bslive/lib/config"
)

func TestPlatformAcceptsRejectsTilde(t *testing.T) {
	if platformAccepts(opWrite, "/repo", "/repo/file.txt~") {
		t.Fatal("expected rejection of tilde-suffixed path")
	}
}

func TestPlatformAcceptsRejectsAutoExcluded(t *testing.T) {
	cases := []string{
		"/repo/node_modules/pkg/index.js",
		"/repo/.git/HEAD",
		"/repo/.husky/pre-commit",
		"/repo/.vscode/settings.json",
		"/repo/.idea/workspace.xml",
		"/repo/.sass-cache/x",
		"/repo/bslive.log",
	}
	for _, c := range cases {
		if platformAccepts(opWrite, "/repo", c) {
			t.Errorf("expected rejection of auto-excluded path %s", c)
		}
	}
}

func TestPlatformAcceptsContentWrite(t *testing.T) {
	if !platformAccepts(opWrite, "/repo", "/repo/src/index.js") {
		t.Fatal("expected acceptance of a plain content write")
	}
}

func TestPlatformRejectsCreateRemoveRename(t *testing.T) {
	for _, op := range []platformOp{opCreate, opRemove, opRename} {
		if op == opCreate && isWindows() {
			continue
		}
		if platformAccepts(op, "/repo", "/repo/src/index.js") {
			t.Errorf("expected rejection of op %d on non-windows", op)
		}
	}
}

func TestAcceptPathIncludeFilter(t *testing.T) {
	include := []config.PathFilter{{Kind: config.FilterExtension, Value: "js"}}
	if !acceptPath(include, nil, "/repo/src/index.js") {
		t.Fatal("expected .js to match extension filter")
	}
	if acceptPath(include, nil, "/repo/src/index.css") {
		t.Fatal("expected .css to be rejected by extension filter")
	}
}

func TestAcceptPathIgnoreFilter(t *testing.T) {
	ignore := []config.PathFilter{{Kind: config.FilterAny, Value: "vendor"}}
	if acceptPath(nil, ignore, "/repo/vendor/lib.go") {
		t.Fatal("expected ignore filter to reject path containing vendor")
	}
	if !acceptPath(nil, ignore, "/repo/src/lib.go") {
		t.Fatal("expected path without vendor to pass")
	}
}

func TestAcceptPathGlob(t *testing.T) {
	include := []config.PathFilter{{Kind: config.FilterGlob, Value: "**/*.scss"}}
	if !acceptPath(include, nil, "/repo/assets/styles/app.scss") {
		t.Fatal("expected glob match for nested .scss file")
	}
}

func TestDefaultStringMatch(t *testing.T) {
	if !defaultStringMatch("*.go", "main.go", "main.go") {
		t.Fatal("expected glob-shorthand match")
	}
	if !defaultStringMatch("main", "src/main.go", "main.go") {
		t.Fatal("expected substring-shorthand match")
	}
}

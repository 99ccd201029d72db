// Package server implements ServerActor: one HTTP(S) server per server identity,
// its WebSocket client fan-out, and the built-in /__bs_* control endpoints.
package server

import "github.com/bslive-dev/bslive/lib/config"

// ChangeKind is the closed set of route-table deltas a client is told about.
type ChangeKind string

const (
	ChangeChanged ChangeKind = "Changed"
	ChangeAdded   ChangeKind = "Added"
	ChangeRemoved ChangeKind = "Removed"
)

// Change is one path's delta, broadcast to WebSocket clients so the
// injected connector can decide whether to reload the page or hot-patch a
// stylesheet.
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"change_kind"`
}

// ClientEvent is the tagged union sent down every WebSocket connection.
type ClientEvent struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

func changeEvent(c Change) ClientEvent {
	return ClientEvent{Kind: "Change", Payload: c}
}

func manyEvent(cs []Change) ClientEvent {
	return ClientEvent{Kind: "FsMany", Payload: cs}
}

// changesFromManifestDiff renders a RouteChangeSet as the Change events a
// ServerActor broadcasts after a Patch.
func changesFromManifestDiff(diff config.RouteChangeSet) []Change {
	var out []Change
	for _, id := range diff.Added {
		out = append(out, Change{Path: id.Path, Kind: ChangeAdded})
	}
	for _, id := range diff.Removed {
		out = append(out, Change{Path: id.Path, Kind: ChangeRemoved})
	}
	for _, id := range diff.Changed {
		out = append(out, Change{Path: id.Path, Kind: ChangeChanged})
	}
	return out
}

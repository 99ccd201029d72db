package router

import (
	"encoding/json"
	"testing"

	"github.com/bslive-dev/bslive/lib/config"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid json fixture: %v", err)
	}
	return v
}

func TestMatchPropIs(t *testing.T) {
	v := decode(t, `{"kind":"added"}`)
	is := "added"
	g := config.JsonPropGuard{Path: "/kind", Is: &is}
	if !matchProp(v, g) {
		t.Fatalf("expected match")
	}
}

func TestMatchOneJSONArrayLast(t *testing.T) {
	v := decode(t, `{"events":[{"kind":"a"},{"kind":"removed"}]}`)
	is := "removed"
	guard := config.WhenBodyGuard{JSON: &config.JsonGuard{
		ArrayLast: &config.ArrayLastGuard{Items: "/events", Last: []config.JsonPropGuard{{Path: "/kind", Is: &is}}},
	}}
	if !matchOneJSON(v, guard) {
		t.Fatalf("expected last element to match")
	}
}

func TestMatchOneJSONArrayAnyEmptyFails(t *testing.T) {
	v := decode(t, `{"events":[]}`)
	is := "removed"
	guard := config.WhenBodyGuard{JSON: &config.JsonGuard{
		ArrayAny: &config.ArrayGuard{Items: "/events", Props: []config.JsonPropGuard{{Path: "/kind", Is: &is}}},
	}}
	if matchOneJSON(v, guard) {
		t.Fatalf("expected empty array to never match")
	}
}

func TestMatchOneJSONNeverGuard(t *testing.T) {
	v := decode(t, `{}`)
	guard := config.WhenBodyGuard{Never: true}
	if matchOneJSON(v, guard) {
		t.Fatalf("Never guard should never match")
	}
}

func TestJSONPointerArrayIndex(t *testing.T) {
	v := decode(t, `{"items":["a","b","c"]}`)
	got, ok := matchJSONPointer(v, "/items/1")
	if !ok || got != "b" {
		t.Fatalf("expected b, got %v ok=%v", got, ok)
	}
}

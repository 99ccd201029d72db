package fswatcher

import (
	"context"
	"testing"
	"time"
)

func TestTrailingDebounceCollapsesBurst(t *testing.T) {
	w := &Watcher{Debounce: TrailingMS(40), Ctx: Context{ID: 1, OriginID: 1}, Recipient: make(chan Grouping, 16)}
	in := make(chan PathDescription, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.runTrailing(ctx, in)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		in <- PathDescription{Absolute: "/repo/a.txt"}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case g := <-w.Recipient:
		if g.Singular == nil || g.Singular.Kind != Change {
			t.Fatalf("expected a singular Change event, got %+v", g)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced event")
	}

	select {
	case g := <-w.Recipient:
		t.Fatalf("expected exactly one event for the burst, got extra %+v", g)
	case <-time.After(80 * time.Millisecond):
	}

	close(in)
	<-done
}

func TestBufferedDebounceDedupsByPath(t *testing.T) {
	w := &Watcher{Debounce: BufferedMS(40), Ctx: Context{ID: 2, OriginID: 2}, Recipient: make(chan Grouping, 16)}
	in := make(chan PathDescription, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.runBuffered(ctx, in)
		close(done)
	}()

	in <- PathDescription{Absolute: "/repo/a.txt"}
	in <- PathDescription{Absolute: "/repo/a.txt"}
	in <- PathDescription{Absolute: "/repo/b.txt"}

	select {
	case g := <-w.Recipient:
		if g.Buffered == nil {
			t.Fatalf("expected a buffered batch, got %+v", g)
		}
		if len(g.Buffered.Paths) != 2 {
			t.Fatalf("expected 2 deduplicated paths, got %d: %+v", len(g.Buffered.Paths), g.Buffered.Paths)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for buffered batch")
	}

	close(in)
	<-done
}

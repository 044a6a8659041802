package linkstate

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeSource is a scriptable Source: tests push verdicts and observe
// attach/detach through the watching/stopped channels.
type fakeSource struct {
	verdict  bool
	push     chan bool
	watching chan struct{}
	stopped  chan struct{}
}

func newFakeSource(initial bool) *fakeSource {
	return &fakeSource{
		verdict:  initial,
		push:     make(chan bool),
		watching: make(chan struct{}, 1),
		stopped:  make(chan struct{}, 1),
	}
}

func (f *fakeSource) Watch(ctx context.Context, updates chan<- bool) {
	defer close(updates)
	f.watching <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			f.stopped <- struct{}{}
			return
		case v := <-f.push:
			select {
			case updates <- v:
			case <-ctx.Done():
				f.stopped <- struct{}{}
				return
			}
		}
	}
}

func (f *fakeSource) Evaluate() bool { return f.verdict }

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func recvBool(t *testing.T, ch <-chan bool, what string) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return false
	}
}

func TestSnapshotWithoutSubscribers(t *testing.T) {
	src := newFakeSource(true)
	m := NewMonitor(src, zap.NewNop())
	if !m.Snapshot() {
		t.Fatal("Snapshot() = false, want true")
	}
	src.verdict = false
	if m.Snapshot() {
		t.Fatal("Snapshot() = true, want false")
	}
}

func TestForwardsFlipsAndDedupes(t *testing.T) {
	src := newFakeSource(true)
	m := NewMonitor(src, zap.NewNop())

	got := make(chan bool, 8)
	cancel := m.Subscribe(func(up bool) { got <- up })
	defer cancel()
	waitSignal(t, src.watching, "source attach")

	src.push <- false
	if v := recvBool(t, got, "offline flip"); v {
		t.Fatal("first callback = true, want false")
	}
	// Repeating the same verdict must not notify.
	src.push <- false
	src.push <- true
	if v := recvBool(t, got, "online flip"); !v {
		t.Fatal("second callback = false, want true")
	}
	select {
	case v := <-got:
		t.Fatalf("unexpected extra callback %v", v)
	case <-time.After(100 * time.Millisecond):
	}
	if !m.Snapshot() {
		t.Fatal("Snapshot() = false after online flip")
	}
}

func TestDetachOnLastUnsubscribe(t *testing.T) {
	src := newFakeSource(true)
	m := NewMonitor(src, zap.NewNop())

	cancelA := m.Subscribe(func(bool) {})
	waitSignal(t, src.watching, "source attach")
	cancelB := m.Subscribe(func(bool) {})

	cancelA()
	select {
	case <-src.stopped:
		t.Fatal("source detached while a subscriber remained")
	case <-time.After(100 * time.Millisecond):
	}

	cancelB()
	waitSignal(t, src.stopped, "source detach")

	// Cancelling twice is harmless.
	cancelB()
}

func TestReattachAfterDetach(t *testing.T) {
	src := newFakeSource(false)
	m := NewMonitor(src, zap.NewNop())

	cancel := m.Subscribe(func(bool) {})
	waitSignal(t, src.watching, "first attach")
	cancel()
	waitSignal(t, src.stopped, "detach")

	src.verdict = true
	got := make(chan bool, 1)
	cancel = m.Subscribe(func(up bool) { got <- up })
	defer cancel()
	waitSignal(t, src.watching, "second attach")

	if !m.Snapshot() {
		t.Fatal("Snapshot() = false, want fresh evaluation after re-attach")
	}
	src.push <- false
	if v := recvBool(t, got, "flip after re-attach"); v {
		t.Fatal("callback = true, want false")
	}
}

package world

import (
	"testing"
	"time"
)

func TestNotifier_MonotonicRevisions(t *testing.T) {
	n := NewNotifier(16)

	var last uint64
	for i := 0; i < 10; i++ {
		ev := n.Publish("TEST", nil)
		if ev.Revision <= last {
			t.Fatalf("revision %d after %d", ev.Revision, last)
		}
		last = ev.Revision
	}
	if got := n.Revision(); got != last {
		t.Fatalf("Revision() = %d, want %d", got, last)
	}
}

func TestNotifier_DeliversToSubscribers(t *testing.T) {
	n := NewNotifier(16)
	sub := n.Subscribe(4)
	defer n.Unsubscribe(sub)

	n.Publish("A", map[string]any{"k": 1})
	n.Publish("B", nil)

	ev := <-sub.C()
	if ev.Kind != "A" || ev.Revision != 1 {
		t.Fatalf("first = %+v", ev)
	}
	ev = <-sub.C()
	if ev.Kind != "B" || ev.Revision != 2 {
		t.Fatalf("second = %+v", ev)
	}
}

func TestNotifier_SlowSubscriberDropped(t *testing.T) {
	n := NewNotifier(16)
	sub := n.Subscribe(2)

	for i := 0; i < 3; i++ {
		n.Publish("FLOOD", nil)
	}
	if got := n.subscriberCount(); got != 0 {
		t.Fatalf("subscriberCount = %d, want 0", got)
	}

	// The channel is closed after the buffered events drain.
	seen := 0
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				if seen != 2 {
					t.Fatalf("drained %d events before close, want 2", seen)
				}
				return
			}
			seen++
		case <-time.After(time.Second):
			t.Fatal("channel never closed")
		}
	}
}

func TestNotifier_UnsubscribeIdempotent(t *testing.T) {
	n := NewNotifier(16)
	sub := n.Subscribe(1)
	n.Unsubscribe(sub)
	n.Unsubscribe(sub)
	n.Unsubscribe(nil)
	if got := n.subscriberCount(); got != 0 {
		t.Fatalf("subscriberCount = %d", got)
	}
}

func TestNotifier_SinceWindow(t *testing.T) {
	n := NewNotifier(4)
	for i := 0; i < 8; i++ {
		n.Publish("E", nil)
	}

	// Ring holds revisions 5..8 only.
	evs := n.Since(0, 100)
	if len(evs) != 4 || evs[0].Revision != 5 || evs[3].Revision != 8 {
		t.Fatalf("Since(0) = %+v", evs)
	}

	evs = n.Since(6, 100)
	if len(evs) != 2 || evs[0].Revision != 7 {
		t.Fatalf("Since(6) = %+v", evs)
	}

	evs = n.Since(6, 1)
	if len(evs) != 1 || evs[0].Revision != 7 {
		t.Fatalf("Since(6, 1) = %+v", evs)
	}

	if evs = n.Since(8, 100); len(evs) != 0 {
		t.Fatalf("Since(latest) = %+v", evs)
	}
}

func TestNotifier_SetRevisionOnlyRaises(t *testing.T) {
	n := NewNotifier(16)
	n.setRevision(40)
	n.setRevision(10)
	if ev := n.Publish("E", nil); ev.Revision != 41 {
		t.Fatalf("revision = %d, want 41", ev.Revision)
	}
}

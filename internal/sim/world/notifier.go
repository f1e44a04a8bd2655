package world

import (
	"sync"
	"time"
)

// ChangeEvent is one externally-visible state change. Revision numbers are
// assigned at publish time on the world loop goroutine, so revision order
// equals commit order.
type ChangeEvent struct {
	Kind     string         `json:"kind"`
	Payload  map[string]any `json:"payload,omitempty"`
	Revision uint64         `json:"revision"`
	At       time.Time      `json:"at"`
}

// Notifier fans committed change events out to subscribers. Delivery is
// fire-and-forget: each subscriber has a bounded buffer and is dropped,
// not waited on, when it falls behind. A bounded ring of recent events
// backs cursor-based polling.
type Notifier struct {
	mu      sync.Mutex
	nextRev uint64
	nextSub uint64
	subs    map[uint64]*Subscription

	ring    []ChangeEvent
	ringCap int
}

type Subscription struct {
	id      uint64
	ch      chan ChangeEvent
	dropped bool
}

// C yields events in strictly increasing revision order. The channel is
// closed when the subscription is dropped or closed.
func (s *Subscription) C() <-chan ChangeEvent { return s.ch }

func NewNotifier(ringCap int) *Notifier {
	if ringCap <= 0 {
		ringCap = 1024
	}
	return &Notifier{
		subs:    map[uint64]*Subscription{},
		ringCap: ringCap,
	}
}

func (n *Notifier) Subscribe(buf int) *Subscription {
	if buf <= 0 {
		buf = 64
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextSub++
	sub := &Subscription{id: n.nextSub, ch: make(chan ChangeEvent, buf)}
	n.subs[sub.id] = sub
	return sub
}

func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.subs[sub.id]; ok && cur == sub {
		delete(n.subs, sub.id)
		close(sub.ch)
	}
}

// Publish assigns the next revision and delivers to current subscribers.
// A full subscriber buffer drops that subscriber rather than blocking the
// publisher.
func (n *Notifier) Publish(kind string, payload map[string]any) ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextRev++
	ev := ChangeEvent{Kind: kind, Payload: payload, Revision: n.nextRev, At: time.Now().UTC()}

	n.ring = append(n.ring, ev)
	if len(n.ring) > n.ringCap {
		n.ring = n.ring[len(n.ring)-n.ringCap:]
	}

	for id, sub := range n.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped = true
			delete(n.subs, id)
			close(sub.ch)
		}
	}
	return ev
}

// Since returns up to limit retained events with revision > rev, oldest
// first. Events older than the ring are gone; callers needing full history
// replay from the commit log instead.
func (n *Notifier) Since(rev uint64, limit int) []ChangeEvent {
	if limit <= 0 {
		limit = 100
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []ChangeEvent
	for _, ev := range n.ring {
		if ev.Revision <= rev {
			continue
		}
		out = append(out, ev)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Revision reports the last assigned revision number.
func (n *Notifier) Revision() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nextRev
}

// setRevision seeds the counter when resuming from a snapshot, keeping
// revisions monotone across restarts.
func (n *Notifier) setRevision(rev uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if rev > n.nextRev {
		n.nextRev = rev
	}
}

func (n *Notifier) subscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

package coordinator

import "sync"

// busCapacity mirrors the Rust original's tokio::sync::broadcast(16): the
// reference capacity for the coordinator's shared message channel.
const busCapacity = 16

// Bus is a publish-subscribe broadcast channel: every subscriber receives
// every published message, independent of how many other subscribers there
// are. It stands in for the Rust original's tokio broadcast channel, which
// has no direct equivalent in the standard library or anywhere in this
// corpus — the semantics here (buffered per-subscriber channel, drop on a
// full/lagging subscriber) are simple enough that hand-rolling it is more
// honest than pulling in an event-bus dependency to replace a few lines.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Message]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Message]struct{})}
}

// Subscribe registers a new subscriber and returns its channel. Callers
// must Unsubscribe when done to avoid leaking the channel from the
// subscriber set.
func (b *Bus) Subscribe() chan Message {
	ch := make(chan Message, busCapacity)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(ch chan Message) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish fans msg out to every current subscriber. A subscriber whose
// channel is full is skipped rather than blocked on — spec.md §4.E/§5
// tolerate a lagging subscriber observing stale or missing messages, since
// replies are filtered by reference identity anyway.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

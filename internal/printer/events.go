package printer

import (
	"sync"
	"time"
)

// EventType classifies a state-machine transition event.
type EventType string

const (
	// EventError signals a transition into Offline or Error.
	EventError EventType = "error"

	// EventRecovery signals a transition back to Online.
	EventRecovery EventType = "recovery"
)

// Event describes one state-machine transition.
type Event struct {
	Type     EventType `json:"type"`
	Previous Status    `json:"previous"`
	Current  Status    `json:"current"`
	Kind     ErrorKind `json:"kind,omitempty"`
	At       time.Time `json:"at"`
}

// defaultSubscriptionBuffer is the channel depth for subscribers that do
// not request one explicitly.
const defaultSubscriptionBuffer = 16

// Subscription is one observer registration. Events arrive on C in
// transition order. Delivery is at most once: if the subscriber falls
// behind and its buffer fills, further events are dropped rather than
// blocking the machine.
type Subscription struct {
	C <-chan Event

	events chan Event
	once   sync.Once
	cancel func(*Subscription)
}

// Cancel removes the subscription. It is safe to call more than once;
// the channel is closed after removal.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel(s)
		close(s.events)
	})
}

// dispatcher fans transition events out to subscribers. Its lock is taken
// before the state lock is released (see publishLocked), which keeps
// delivery in transition order without exposing the state lock to
// subscriber code.
type dispatcher struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscribe registers an observer with the given channel buffer depth.
// A depth of zero or less selects the default.
func (m *Machine) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, events: ch, cancel: m.unsubscribe}

	m.dispatch.mu.Lock()
	if m.dispatch.subs == nil {
		m.dispatch.subs = make(map[*Subscription]struct{})
	}
	m.dispatch.subs[sub] = struct{}{}
	m.dispatch.mu.Unlock()
	return sub
}

func (m *Machine) unsubscribe(sub *Subscription) {
	m.dispatch.mu.Lock()
	delete(m.dispatch.subs, sub)
	m.dispatch.mu.Unlock()
}

// publishLocked hands ev to every subscriber and releases the state lock.
// The dispatch lock is acquired before the state lock is released so that
// concurrent transitions deliver their events in transition order.
// Callers must hold m.mu; it is unlocked on return.
func (m *Machine) publishLocked(ev Event) {
	m.dispatch.mu.Lock()
	m.mu.Unlock()
	for sub := range m.dispatch.subs {
		select {
		case sub.events <- ev:
		default:
			// Subscriber buffer full: drop rather than block transitions.
		}
	}
	m.dispatch.mu.Unlock()
}

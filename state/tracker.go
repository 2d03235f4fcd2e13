package state

import (
	"sync"

	"github.com/vibewire/vibewire/eventbus"
	"github.com/vibewire/vibewire/wire"
)

// Tracker owns the live snapshot for one session and emits a change event
// on every replacement. All mutation funnels through Apply and
// SetConnection; readers get value copies and never see a half-applied
// transition.
type Tracker struct {
	mu  sync.Mutex
	cur State
	bus *eventbus.Bus
}

// NewTracker creates a tracker at the initial state, publishing changes on
// bus.
func NewTracker(bus *eventbus.Bus) *Tracker {
	return &Tracker{cur: Initial(), bus: bus}
}

// State returns the current snapshot.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// Apply reduces one message into the state and emits the change event.
func (t *Tracker) Apply(msg *wire.Message) {
	t.mu.Lock()
	prev := t.cur
	next := Reduce(prev, msg)
	t.cur = next
	t.mu.Unlock()

	t.bus.Emit(EventChange, Change{Prev: prev, Next: next})
}

// SetConnection replaces only the connection sub-machine. Driven by
// transport lifecycle events rather than server messages.
func (t *Tracker) SetConnection(cs ConnectionStatus) {
	t.mu.Lock()
	prev := t.cur
	next := prev
	next.Connection = cs
	t.cur = next
	t.mu.Unlock()

	if prev.Connection != cs {
		t.bus.Emit(EventChange, Change{Prev: prev, Next: next})
	}
}

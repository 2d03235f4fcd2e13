// Package eventbus provides a small synchronous publish/subscribe bus keyed
// by event name. It is the only channel through which the transport, the
// state tracker, the workspace, and callers' own subscribers communicate.
//
// Delivery is synchronous and ordered: Emit calls every subscriber for the
// event in registration order, then every wildcard subscriber, on the
// emitting goroutine. A panic in one subscriber is recovered and logged so
// the remaining subscribers still run.
package eventbus

import (
	"log"
	"sync"
)

// Handler receives the payload published under a single event name.
type Handler func(payload any)

// AnyHandler receives every event published on the bus.
type AnyHandler func(event string, payload any)

type subscriber struct {
	id int
	fn Handler
}

type anySubscriber struct {
	id int
	fn AnyHandler
}

// Bus is a synchronous in-memory event bus. The zero value is not usable;
// construct with New.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscriber
	any    []anySubscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// On registers fn for the given event name and returns an unsubscribe
// function. Unsubscribing twice is harmless.
func (b *Bus) On(event string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscriber{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[event]
		for i, s := range list {
			if s.id == id {
				b.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// OnAny registers fn for every event and returns an unsubscribe function.
// Wildcard subscribers run after the event's own subscribers.
func (b *Bus) OnAny(fn AnyHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.any = append(b.any, anySubscriber{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.any {
			if s.id == id {
				b.any = append(b.any[:i:i], b.any[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers payload to every subscriber registered for event at the
// moment of the call, in registration order, then to every wildcard
// subscriber. Subscribers registered or removed by a running handler take
// effect from the next Emit.
func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs[event]))
	copy(subs, b.subs[event])
	anySubs := make([]anySubscriber, len(b.any))
	copy(anySubs, b.any)
	b.mu.Unlock()

	for _, s := range subs {
		call(event, s.fn, payload)
	}
	for _, s := range anySubs {
		callAny(event, s.fn, payload)
	}
}

// Clear removes every subscription. Used on session close.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscriber)
	b.any = nil
}

func call(event string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[eventbus] subscriber panic on %q: %v", event, r)
		}
	}()
	fn(payload)
}

func callAny(event string, fn AnyHandler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[eventbus] wildcard subscriber panic on %q: %v", event, r)
		}
	}()
	fn(event, payload)
}

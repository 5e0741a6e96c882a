/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"context"
	"sync"
)

// Engine-level event names.
const (
	EventAppeared       = "appeared"
	EventDisappeared    = "disappeared"
	EventCreated        = "created"
	EventDeleted        = "deleted"
	EventStateChanged   = "stateChanged"
	EventAction         = "action"
	EventEngineReloaded = "engineReloaded"
)

// Event is what travels over the Bus.
//
// Which fields are populated depends on the event.  Lifecycle events
// carry Concept and a single Context whose Target is the instance id.
// EventStateChanged additionally carries Property, Value, and Old.
// EventAction carries Action and When ("before" or "after").
type Event struct {
	Name     string
	Concept  *Concept
	Contexts []*Context
	Property string
	Value    interface{}
	Old      interface{}
	Action   string
	When     string
}

// Handler receives Events.  An error returned by a Handler aborts
// delivery to later subscribers and propagates to the emitter; there
// is deliberately no isolation between subscribers (see the package
// notes on behaviour dispatch).
type Handler func(ctx context.Context, ev *Event) error

type subscription struct {
	id int
	h  Handler
}

// Bus is a process-local event bus keyed by event name.
//
// Subscription and emission can interleave: Emit iterates over a
// snapshot of the subscriber list, so a handler can subscribe or
// cancel without corrupting an in-flight delivery.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscription
	next int
}

// NewBus makes an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*subscription, 16),
	}
}

// Subscribe registers a handler for the named event and returns a
// cancel function.  Cancel is idempotent.
func (b *Bus) Subscribe(name string, h Handler) func() {
	b.mu.Lock()
	b.next++
	sub := &subscription{id: b.next, h: h}
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		subs := b.subs[name]
		for i, s := range subs {
			if s.id == sub.id {
				b.subs[name] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}
}

// Emit delivers the Event to every current subscriber in subscription
// order.  The first handler error stops delivery.
func (b *Bus) Emit(ctx context.Context, ev *Event) error {
	b.mu.Lock()
	subs := b.subs[ev.Name]
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		if err := sub.h(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

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

// Package datastore defines the contract a property backing store
// satisfies, and a registry of named store kinds.
//
// A store attaches a named get/set Provider to each property it's
// asked to back.  Stores are best-effort, eventually-consistent
// mirrors of property state: there are no transactions across stores,
// and a property mapped to several stores fans writes out to all of
// them while reads take the first answer.
package datastore

import (
	"context"
	"errors"
	"sync"

	"github.com/Comcast/concepts/core"
)

// Datastore is the full backing-store contract.  core.Store is the
// subset the engine calls back into.
type Datastore interface {
	core.Store

	// Init prepares the store (open files, create tables).
	Init(ctx context.Context) error

	// Destroy releases the store's resources.
	Destroy(ctx context.Context) error

	// MappedProperties reports which of the concept's properties
	// this store backs.
	MappedProperties(c *core.Concept) []string
}

// Factory builds a configured store instance.
type Factory func(name string, options map[string]interface{}, e *core.Engine) (Datastore, error)

// Registry maps store kind names to factories.  Like the engine's
// registries, it's injectable: make one per engine (or per test).
type Registry struct {
	mu    sync.Mutex
	kinds map[string]Factory
}

// NewRegistry makes an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Factory, 8),
	}
}

// RegisterType adds (or replaces) a store kind.
func (r *Registry) RegisterType(kind string, f Factory) {
	r.mu.Lock()
	r.kinds[kind] = f
	r.mu.Unlock()
}

// New builds a store of the given kind.
func (r *Registry) New(kind, name string, options map[string]interface{}, e *core.Engine) (Datastore, error) {
	r.mu.Lock()
	f, have := r.kinds[kind]
	r.mu.Unlock()
	if !have {
		return nil, errors.New(`unknown datastore kind "` + kind + `"`)
	}
	return f(name, options, e)
}

// Announcer suppresses self-triggered existence announcements.
//
// A store must never announce "appeared" for an id it is itself about
// to cause to appear (say, because its own write for a fresh id lands
// and then its change feed reports that id back).  Note ids you
// originate; Announce everything you learn about.
type Announcer struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewAnnouncer makes an empty Announcer.
func NewAnnouncer() *Announcer {
	return &Announcer{
		seen: make(map[string]bool, 64),
	}
}

// Note marks an id as already known, without announcing it.
func (a *Announcer) Note(id string) {
	a.mu.Lock()
	a.seen[id] = true
	a.mu.Unlock()
}

// Forget drops an id (say, after the instance is deleted) so a later
// re-appearance announces again.
func (a *Announcer) Forget(id string) {
	a.mu.Lock()
	delete(a.seen, id)
	a.mu.Unlock()
}

// Announce registers the id with the engine and emits "appeared",
// unless the id was already seen.
func (a *Announcer) Announce(ctx context.Context, e *core.Engine, c *core.Concept, id string) error {
	a.mu.Lock()
	if a.seen[id] {
		a.mu.Unlock()
		return nil
	}
	a.seen[id] = true
	a.mu.Unlock()
	return e.Appeared(ctx, id, c)
}

// Reset forgets everything (for engine reloads).
func (a *Announcer) Reset() {
	a.mu.Lock()
	a.seen = make(map[string]bool, 64)
	a.mu.Unlock()
}

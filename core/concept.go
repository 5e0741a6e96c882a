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

	"github.com/google/uuid"
)

// Store is the subset of the datastore contract the engine calls back
// into when a property is unmapped (via Omit or Destroy).  Package
// datastore defines the full contract.
type Store interface {
	Name() string
	CreateBackingStore(ctx context.Context, c *Concept, p *Property) error
	RemoveBackingStore(ctx context.Context, c *Concept, p *Property) error
}

// Concept is a named entity type: properties, actions, behaviours,
// triggers, and the bookkeeping of which stores back which
// properties.
//
// Concepts are built once at load time and then mutated only by Join
// and Omit.
type Concept struct {
	Name string
	Doc  string

	engine *Engine

	mu         sync.Mutex
	properties map[string]*Property
	propOrder  []string
	actions    map[string]Action
	behaviours map[string]*Behaviour
	triggers   map[string]*Trigger
	mappings   map[string][]Store
	others     map[string]bool
}

func newConcept(name string, e *Engine) *Concept {
	return &Concept{
		Name:       name,
		engine:     e,
		properties: make(map[string]*Property, 8),
		actions:    make(map[string]Action, 8),
		behaviours: make(map[string]*Behaviour, 4),
		triggers:   make(map[string]*Trigger, 4),
		mappings:   make(map[string][]Store, 8),
		others:     make(map[string]bool, 2),
	}
}

// Engine is the engine this concept is registered with.
func (c *Concept) Engine() *Engine {
	return c.engine
}

// IsA reports whether this concept satisfies the given type name:
// its own name, or a type joined in.
func (c *Concept) IsA(typeName string) bool {
	if c.Name == typeName {
		return true
	}
	c.mu.Lock()
	is := c.others[typeName]
	c.mu.Unlock()
	return is
}

// AddProperty adds (or replaces) a property, binding it to this
// concept.  Insertion order is preserved for iteration.
func (c *Concept) AddProperty(p *Property) {
	c.mu.Lock()
	if _, have := c.properties[p.Name]; !have {
		c.propOrder = append(c.propOrder, p.Name)
	}
	c.properties[p.Name] = p
	p.concept = c
	c.mu.Unlock()
}

// Property looks up a property by name.
func (c *Concept) Property(name string) (*Property, bool) {
	c.mu.Lock()
	p, have := c.properties[name]
	c.mu.Unlock()
	return p, have
}

// Properties returns the properties in insertion order.
func (c *Concept) Properties() []*Property {
	c.mu.Lock()
	acc := make([]*Property, 0, len(c.propOrder))
	for _, name := range c.propOrder {
		if p, have := c.properties[name]; have {
			acc = append(acc, p)
		}
	}
	c.mu.Unlock()
	return acc
}

// AddAction registers a directly-callable action under the given
// name.
func (c *Concept) AddAction(name string, a Action) {
	c.mu.Lock()
	c.actions[name] = a
	c.mu.Unlock()
}

// Action looks up an action by name.
func (c *Concept) Action(name string) (Action, bool) {
	c.mu.Lock()
	a, have := c.actions[name]
	c.mu.Unlock()
	return a, have
}

// ActionNames returns the names of the directly-callable actions.
func (c *Concept) ActionNames() []string {
	c.mu.Lock()
	acc := make([]string, 0, len(c.actions))
	for name := range c.actions {
		acc = append(acc, name)
	}
	c.mu.Unlock()
	return acc
}

// RemoveAction drops an action.
func (c *Concept) RemoveAction(name string) {
	c.mu.Lock()
	delete(c.actions, name)
	c.mu.Unlock()
}

// RunAction executes a named action (resolved with the standard
// precedence), emitting "action" bus events before and after so that
// action-kind triggers can hook either side.
func (c *Concept) RunAction(ctx context.Context, name string, ectxs []*Context) ([]*Context, error) {
	target := ""
	if 0 < len(ectxs) {
		target = ectxs[0].Target
	}
	a, owner, err := c.engine.LookupAction(target, c, name)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Name:     EventAction,
		Concept:  owner,
		Contexts: ectxs,
		Action:   name,
		When:     "before",
	}
	if err := c.engine.Bus().Emit(ctx, ev); err != nil {
		return nil, err
	}

	out, err := a.Exec(ctx, withSaved(ectxs))
	if err != nil {
		return out, err
	}

	after := &Event{
		Name:     EventAction,
		Concept:  owner,
		Contexts: out,
		Action:   name,
		When:     "after",
	}
	if err := c.engine.Bus().Emit(ctx, after); err != nil {
		return out, err
	}
	return out, nil
}

// AddTrigger adds a trigger.  With removeOld, a same-named trigger is
// swapped out cleanly: the old one is disabled first.
func (c *Concept) AddTrigger(ctx context.Context, t *Trigger, removeOld bool) error {
	c.mu.Lock()
	old, have := c.triggers[t.Name]
	if have && !removeOld {
		c.mu.Unlock()
		return &TriggerExists{Concept: c.Name, Name: t.Name}
	}
	c.triggers[t.Name] = t
	t.concept = c
	t.engine = c.engine
	c.mu.Unlock()

	if have {
		old.Disable()
	}
	return t.Enable(ctx)
}

// Triggers returns a snapshot of the concept's triggers.
func (c *Concept) Triggers() []*Trigger {
	c.mu.Lock()
	acc := make([]*Trigger, 0, len(c.triggers))
	for _, t := range c.triggers {
		acc = append(acc, t)
	}
	c.mu.Unlock()
	return acc
}

// Trigger looks up a trigger by name.
func (c *Concept) Trigger(name string) (*Trigger, bool) {
	c.mu.Lock()
	t, have := c.triggers[name]
	c.mu.Unlock()
	return t, have
}

// RemoveTrigger disables and drops a trigger.
func (c *Concept) RemoveTrigger(name string) error {
	c.mu.Lock()
	t, have := c.triggers[name]
	delete(c.triggers, name)
	c.mu.Unlock()
	if !have {
		return &UnknownTrigger{Concept: c.Name, Name: name}
	}
	t.Disable()
	return nil
}

// AddBehaviour wires a behaviour: materializes its triggers,
// subscribes its chain, and (optionally) registers it as a callable
// action.
func (c *Concept) AddBehaviour(ctx context.Context, b *Behaviour) error {
	c.mu.Lock()
	c.behaviours[b.Name] = b
	b.concept = c
	c.mu.Unlock()
	return b.attach(ctx)
}

// Behaviours returns a snapshot of the concept's behaviours.
func (c *Concept) Behaviours() []*Behaviour {
	c.mu.Lock()
	acc := make([]*Behaviour, 0, len(c.behaviours))
	for _, b := range c.behaviours {
		acc = append(acc, b)
	}
	c.mu.Unlock()
	return acc
}

// Behaviour looks up a behaviour by name.
func (c *Concept) Behaviour(name string) (*Behaviour, bool) {
	c.mu.Lock()
	b, have := c.behaviours[name]
	c.mu.Unlock()
	return b, have
}

// RemoveBehaviour detaches and drops a behaviour.
func (c *Concept) RemoveBehaviour(name string) {
	c.mu.Lock()
	b, have := c.behaviours[name]
	delete(c.behaviours, name)
	c.mu.Unlock()
	if have {
		b.detach()
	}
}

// Fire emits the concept-scoped event for the named trigger, which
// runs every behaviour listening on it.
func (c *Concept) Fire(ctx context.Context, trigger string, ectxs []*Context) error {
	if ectxs == nil {
		ectxs = []*Context{NewContext("")}
	}
	return c.engine.Bus().Emit(ctx, &Event{
		Name:     ScopedEventName(c, trigger),
		Concept:  c,
		Contexts: ectxs,
	})
}

// NoteMapping records that the given store backs the given property.
// Stores call this from CreateBackingStore.
func (c *Concept) NoteMapping(property string, s Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, have := range c.mappings[property] {
		if have.Name() == s.Name() {
			return
		}
	}
	c.mappings[property] = append(c.mappings[property], s)
}

// DropMapping forgets a store/property pair.  Stores call this from
// RemoveBackingStore.
func (c *Concept) DropMapping(property string, storeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stores := c.mappings[property]
	for i, s := range stores {
		if s.Name() == storeName {
			c.mappings[property] = append(stores[:i:i], stores[i+1:]...)
			return
		}
	}
}

// MappedStores returns the stores currently backing a property.
func (c *Concept) MappedStores(property string) []Store {
	c.mu.Lock()
	acc := append([]Store(nil), c.mappings[property]...)
	c.mu.Unlock()
	return acc
}

// Mappings returns property name to backing store names.
func (c *Concept) Mappings() map[string][]string {
	c.mu.Lock()
	acc := make(map[string][]string, len(c.mappings))
	for prop, stores := range c.mappings {
		names := make([]string, len(stores))
		for i, s := range stores {
			names[i] = s.Name()
		}
		acc[prop] = names
	}
	c.mu.Unlock()
	return acc
}

// Create materializes an instance.
//
// With an empty id, a fresh one is generated.  An id already
// registered to this concept type is returned as-is (idempotent); an
// id registered to a different type is an IDConflict.  The sequence
// is: announce "appeared", apply initial values (individually
// suppressing stateChanged), emit "created".
func (c *Concept) Create(ctx context.Context, id string, values map[string]interface{}) (string, error) {
	if id == "" {
		id = uuid.NewString()
	} else if have := c.engine.GetConceptFromUUID(id); have != nil {
		if have == c || have.Name == c.Name {
			return id, nil
		}
		return "", &IDConflict{ID: id, Registered: have.Name, Requested: c.Name}
	}

	if err := c.engine.Appeared(ctx, id, c); err != nil {
		return "", err
	}

	for name, value := range values {
		p, have := c.Property(name)
		if !have {
			return "", &UnknownProperty{Concept: c.Name, Name: name}
		}
		if err := p.SetValueQuietly(ctx, id, value); err != nil {
			return "", err
		}
	}

	if err := c.engine.emitLifecycle(ctx, EventCreated, c, id); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes an instance: emit "deleted", then "disappeared"
// (which deregisters the id), then scrub references to it everywhere.
func (c *Concept) Delete(ctx context.Context, id string) error {
	if err := c.engine.emitLifecycle(ctx, EventDeleted, c, id); err != nil {
		return err
	}
	if err := c.engine.Disappeared(ctx, id); err != nil {
		return err
	}
	return c.engine.RemoveAllReferences(ctx, id)
}

// Clone copies an instance: every current property value is read and
// a fresh instance is created with them.
//
// In deep mode, concept-typed and concept-array-typed values are
// recursively cloned too, with a memo so that an instance referenced
// twice is cloned once.  A cycle back to an instance still being
// cloned is an error.
func (c *Concept) Clone(ctx context.Context, id string, deep bool) (string, error) {
	return c.clone(ctx, id, deep, make(map[string]string))
}

// cloning marks a memo entry whose clone isn't finished yet.
const cloning = ""

func (c *Concept) clone(ctx context.Context, id string, deep bool, memo map[string]string) (string, error) {
	memo[id] = cloning

	values := make(map[string]interface{}, 8)
	for _, p := range c.Properties() {
		if p.Derive != nil {
			continue
		}
		v, err := p.GetValue(ctx, id)
		if err != nil {
			return "", err
		}
		if deep {
			if v, err = c.deepCloneValue(ctx, p, v, memo); err != nil {
				return "", err
			}
		}
		values[p.Name] = v
	}

	newID, err := c.Create(ctx, "", values)
	if err != nil {
		return "", err
	}
	memo[id] = newID
	return newID, nil
}

func (c *Concept) deepCloneValue(ctx context.Context, p *Property, v interface{}, memo map[string]string) (interface{}, error) {
	cloneRef := func(ref interface{}) (interface{}, error) {
		rid, is := ref.(string)
		if !is || rid == "" {
			return ref, nil
		}
		if done, have := memo[rid]; have {
			if done == cloning {
				return nil, &CloneCycle{ID: rid}
			}
			return done, nil
		}
		rc := c.engine.GetConceptFromUUID(rid)
		if rc == nil {
			// Unresolvable reference; keep it.
			return ref, nil
		}
		return rc.clone(ctx, rid, true, memo)
	}

	switch p.Type {
	case ConceptType:
		return cloneRef(v)
	case Array:
		if p.Items != ConceptType {
			return v, nil
		}
		vs, is := v.([]interface{})
		if !is {
			return v, nil
		}
		acc := make([]interface{}, len(vs))
		for i, x := range vs {
			y, err := cloneRef(x)
			if err != nil {
				return nil, err
			}
			acc[i] = y
		}
		return acc, nil
	}
	return v, nil
}

// Join merges another concept into this one.  Properties and
// behaviours are duplicated (fresh copies bound here) and override
// same-named entries; the set of satisfied type names grows
// transitively.
func (c *Concept) Join(ctx context.Context, other *Concept) error {
	var derived []*Property
	for _, p := range other.Properties() {
		np := p.Copy()
		c.AddProperty(np)
		for _, s := range other.MappedStores(p.Name) {
			if err := s.CreateBackingStore(ctx, c, np); err != nil {
				return err
			}
		}
		if np.Derive != nil {
			derived = append(derived, np)
		}
	}

	// Wire the copies' upstream listeners after all of the
	// properties exist, since an upstream might itself be a copy.
	for _, np := range derived {
		if err := np.FinishSetup(); err != nil {
			return err
		}
	}

	for _, name := range other.behaviourNames() {
		b, have := other.Behaviour(name)
		if !have {
			continue
		}
		if err := c.AddBehaviour(ctx, b.Copy()); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.others[other.Name] = true
	other.mu.Lock()
	for name := range other.others {
		c.others[name] = true
	}
	other.mu.Unlock()
	c.mu.Unlock()

	return nil
}

func (c *Concept) behaviourNames() []string {
	c.mu.Lock()
	acc := make([]string, 0, len(c.behaviours))
	for name := range c.behaviours {
		acc = append(acc, name)
	}
	c.mu.Unlock()
	return acc
}

// Omit removes the named properties (cascading into store
// detachment) and the named behaviours/actions.
func (c *Concept) Omit(ctx context.Context, schema []string, actions []string) error {
	for _, name := range schema {
		p, have := c.Property(name)
		if !have {
			return &UnknownProperty{Concept: c.Name, Name: name}
		}
		if err := c.UnmapProperty(ctx, name); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.properties, name)
		for i, pn := range c.propOrder {
			if pn == name {
				c.propOrder = append(c.propOrder[:i:i], c.propOrder[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		p.destroy()
	}

	for _, name := range actions {
		if _, have := c.Behaviour(name); have {
			c.RemoveBehaviour(name)
		}
		c.RemoveAction(name)
	}
	return nil
}

// MapProperty backs the named property with the given store.
func (c *Concept) MapProperty(ctx context.Context, name string, s Store) error {
	p, have := c.Property(name)
	if !have {
		return &UnknownProperty{Concept: c.Name, Name: name}
	}
	return s.CreateBackingStore(ctx, c, p)
}

// UnmapProperty detaches every store backing the property.
func (c *Concept) UnmapProperty(ctx context.Context, name string) error {
	p, have := c.Property(name)
	if !have {
		return &UnknownProperty{Concept: c.Name, Name: name}
	}
	for _, s := range c.MappedStores(name) {
		if err := s.RemoveBackingStore(ctx, c, p); err != nil {
			return err
		}
	}
	return nil
}

// Destroy tears the concept down: triggers disabled, behaviours
// detached, properties unmapped, and the type deregistered.
func (c *Concept) Destroy(ctx context.Context) error {
	c.mu.Lock()
	triggers := make([]*Trigger, 0, len(c.triggers))
	for _, t := range c.triggers {
		triggers = append(triggers, t)
	}
	c.triggers = make(map[string]*Trigger)
	behaviours := make([]*Behaviour, 0, len(c.behaviours))
	for _, b := range c.behaviours {
		behaviours = append(behaviours, b)
	}
	c.behaviours = make(map[string]*Behaviour)
	c.mu.Unlock()

	for _, t := range triggers {
		t.Disable()
	}
	for _, b := range behaviours {
		b.detach()
	}
	for _, p := range c.Properties() {
		if err := c.UnmapProperty(ctx, p.Name); err != nil {
			return err
		}
		p.destroy()
	}

	c.engine.RemoveConcept(c)
	return nil
}

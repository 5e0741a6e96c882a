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
	"log"
	"strings"
	"sync"
)

// Engine is the process-wide registry: instance id to Concept, type
// name to Concept, plus the event bus and the primitive-action and
// trigger-kind tables.
//
// Engines are injectable, not global.  Make as many as you want.
type Engine struct {
	// Debug enables chatty logging.
	Debug bool

	mu        sync.RWMutex
	instances map[string]*Concept
	types     map[string]*Concept
	typeOrder []string

	bus          *Bus
	actions      *Actions
	triggerKinds *TriggerKinds
}

// NewEngine makes an Engine with the standard primitive actions and
// trigger kinds installed.
func NewEngine() *Engine {
	return &Engine{
		instances:    make(map[string]*Concept, 64),
		types:        make(map[string]*Concept, 16),
		bus:          NewBus(),
		actions:      StandardActions(),
		triggerKinds: StandardTriggerKinds(),
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Debug {
		log.Printf("Engine."+format, args...)
	}
}

// Bus is the engine's event bus.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// Actions is the engine's primitive-action registry.
func (e *Engine) Actions() *Actions {
	return e.actions
}

// TriggerKinds is the engine's trigger-kind registry.
func (e *Engine) TriggerKinds() *TriggerKinds {
	return e.triggerKinds
}

// NewConcept makes a Concept and registers its type with the engine.
// A same-named concept type is replaced.
func (e *Engine) NewConcept(name string) *Concept {
	c := newConcept(name, e)

	e.mu.Lock()
	if _, have := e.types[name]; !have {
		e.typeOrder = append(e.typeOrder, name)
	}
	e.types[name] = c
	e.mu.Unlock()

	return c
}

// RemoveConcept deregisters the concept's type and any instance ids
// that belong to it.
func (e *Engine) RemoveConcept(c *Concept) {
	e.mu.Lock()
	if e.types[c.Name] == c {
		delete(e.types, c.Name)
		for i, name := range e.typeOrder {
			if name == c.Name {
				e.typeOrder = append(e.typeOrder[:i:i], e.typeOrder[i+1:]...)
				break
			}
		}
	}
	for id, have := range e.instances {
		if have == c {
			delete(e.instances, id)
		}
	}
	e.mu.Unlock()
}

// RegisterConceptFromUUID binds an instance id to a concept.
//
// Binding an id that already belongs to a concept of the same type is
// a no-op (idempotent); a different type is an IDConflict.
func (e *Engine) RegisterConceptFromUUID(id string, c *Concept) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if have, ok := e.instances[id]; ok {
		if have == c || have.Name == c.Name {
			return nil
		}
		return &IDConflict{ID: id, Registered: have.Name, Requested: c.Name}
	}
	e.instances[id] = c
	return nil
}

// DeregisterConceptFromUUID unbinds an instance id.
func (e *Engine) DeregisterConceptFromUUID(id string) {
	e.mu.Lock()
	delete(e.instances, id)
	e.mu.Unlock()
}

// GetConceptFromUUID returns the concept an instance id belongs to,
// or nil.  An instance "exists" exactly when this returns non-nil.
func (e *Engine) GetConceptFromUUID(id string) *Concept {
	e.mu.RLock()
	c := e.instances[id]
	e.mu.RUnlock()
	return c
}

// GetConceptFromType returns the concept registered under the given
// type name, or nil.
func (e *Engine) GetConceptFromType(name string) *Concept {
	e.mu.RLock()
	c := e.types[name]
	e.mu.RUnlock()
	return c
}

// GetAllImplementingConcepts returns, in registration order, every
// concept that IsA the given type (same name or joined in).
func (e *Engine) GetAllImplementingConcepts(typeName string) []*Concept {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acc := make([]*Concept, 0, 4)
	for _, name := range e.typeOrder {
		if c := e.types[name]; c != nil && c.IsA(typeName) {
			acc = append(acc, c)
		}
	}
	return acc
}

// ConceptNames returns the registered type names in registration
// order.
func (e *Engine) ConceptNames() []string {
	e.mu.RLock()
	acc := append([]string(nil), e.typeOrder...)
	e.mu.RUnlock()
	return acc
}

// InstanceIDs returns a snapshot of every registered instance id.
func (e *Engine) InstanceIDs() []string {
	e.mu.RLock()
	acc := make([]string, 0, len(e.instances))
	for id := range e.instances {
		acc = append(acc, id)
	}
	e.mu.RUnlock()
	return acc
}

// LookupProperty resolves a property reference.
//
// A dotted reference "Concept.property" resolves against the named
// concept directly.  A plain name resolves with this precedence:
//
//  1. the concept of the given target instance (if any),
//  2. the locally owning concept of the running action (if any),
//  3. the first registered concept exposing a property of that name,
//     in registration order.
//
// The precedence lets one action chain serve many concepts while
// still allowing explicit disambiguation.
func (e *Engine) LookupProperty(target string, local *Concept, name string) (*Property, error) {
	if i := strings.Index(name, "."); 0 < i {
		conceptName, propName := name[:i], name[i+1:]
		c := e.GetConceptFromType(conceptName)
		if c == nil {
			return nil, &UnknownConcept{Name: conceptName}
		}
		if p, have := c.Property(propName); have {
			return p, nil
		}
		return nil, &UnknownProperty{Concept: conceptName, Name: propName}
	}

	if target != "" {
		if c := e.GetConceptFromUUID(target); c != nil {
			if p, have := c.Property(name); have {
				return p, nil
			}
		}
	}

	if local != nil {
		if p, have := local.Property(name); have {
			return p, nil
		}
	}

	e.mu.RLock()
	order := append([]string(nil), e.typeOrder...)
	e.mu.RUnlock()
	for _, tn := range order {
		if c := e.GetConceptFromType(tn); c != nil {
			if p, have := c.Property(name); have {
				return p, nil
			}
		}
	}

	localName := ""
	if local != nil {
		localName = local.Name
	}
	return nil, &UnknownProperty{Concept: localName, Name: name}
}

// LookupAction resolves an action name with the same precedence as
// LookupProperty.  Dotted references name a concept directly.
func (e *Engine) LookupAction(target string, local *Concept, name string) (Action, *Concept, error) {
	if i := strings.Index(name, "."); 0 < i {
		conceptName, actionName := name[:i], name[i+1:]
		c := e.GetConceptFromType(conceptName)
		if c == nil {
			return nil, nil, &UnknownConcept{Name: conceptName}
		}
		if a, have := c.Action(actionName); have {
			return a, c, nil
		}
		return nil, nil, &UnknownAction{Concept: conceptName, Name: actionName}
	}

	if target != "" {
		if c := e.GetConceptFromUUID(target); c != nil {
			if a, have := c.Action(name); have {
				return a, c, nil
			}
		}
	}

	if local != nil {
		if a, have := local.Action(name); have {
			return a, local, nil
		}
	}

	e.mu.RLock()
	order := append([]string(nil), e.typeOrder...)
	e.mu.RUnlock()
	for _, tn := range order {
		if c := e.GetConceptFromType(tn); c != nil {
			if a, have := c.Action(name); have {
				return a, c, nil
			}
		}
	}

	localName := ""
	if local != nil {
		localName = local.Name
	}
	return nil, nil, &UnknownAction{Concept: localName, Name: name}
}

// Appeared announces an instance: register its id and emit
// "appeared".  Datastores call this when they learn of an instance
// (on load, on remote signal); Concept.Create calls it too.
func (e *Engine) Appeared(ctx context.Context, id string, c *Concept) error {
	if err := e.RegisterConceptFromUUID(id, c); err != nil {
		return err
	}
	e.logf("Appeared %s %s", c.Name, id)
	return e.emitLifecycle(ctx, EventAppeared, c, id)
}

// Disappeared deregisters an instance id and emits "disappeared".
func (e *Engine) Disappeared(ctx context.Context, id string) error {
	c := e.GetConceptFromUUID(id)
	e.DeregisterConceptFromUUID(id)
	if c == nil {
		return nil
	}
	e.logf("Disappeared %s %s", c.Name, id)
	return e.emitLifecycle(ctx, EventDisappeared, c, id)
}

// RemoveAllReferences scrubs a deleted instance id out of every
// registered instance's concept-typed and concept-array-typed
// properties: scalars are nulled, array elements are removed.
func (e *Engine) RemoveAllReferences(ctx context.Context, id string) error {
	for _, iid := range e.InstanceIDs() {
		c := e.GetConceptFromUUID(iid)
		if c == nil {
			continue
		}
		for _, p := range c.Properties() {
			if p.Derive != nil {
				continue
			}
			switch {
			case p.Type == ConceptType:
				v, err := p.GetValue(ctx, iid)
				if err != nil {
					continue
				}
				if s, is := v.(string); is && s == id {
					if err := p.SetValue(ctx, iid, nil); err != nil {
						return err
					}
				}
			case p.Type == Array && p.Items == ConceptType:
				v, err := p.GetValue(ctx, iid)
				if err != nil {
					continue
				}
				vs, is := v.([]interface{})
				if !is {
					continue
				}
				kept := make([]interface{}, 0, len(vs))
				for _, x := range vs {
					if s, isS := x.(string); isS && s == id {
						continue
					}
					kept = append(kept, x)
				}
				if len(kept) != len(vs) {
					if err := p.SetValue(ctx, iid, kept); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Reload drops every registered instance id and emits
// "engineReloaded".  Datastores re-announce what they hold.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	e.instances = make(map[string]*Concept, 64)
	e.mu.Unlock()
	e.logf("Reload")
	return e.bus.Emit(ctx, &Event{Name: EventEngineReloaded})
}

func (e *Engine) emitLifecycle(ctx context.Context, name string, c *Concept, id string) error {
	return e.bus.Emit(ctx, &Event{
		Name:     name,
		Concept:  c,
		Contexts: []*Context{NewContext(id)},
	})
}

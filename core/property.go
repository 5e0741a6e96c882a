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
	"regexp"
	"sync"
)

// Type is a property's declared type.
type Type int

const (
	// Number is a float64 (ints are coerced on the way in).
	Number Type = iota

	// String is a string, optionally constrained by an enum or a
	// regexp.
	String

	// Boolean is a bool.
	Boolean

	// Array is a []interface{}, optionally with a declared item
	// type.
	Array

	// ConceptType means the value is the id of an instance of
	// some named concept.  See Property.Of.
	ConceptType
)

func (t Type) String() string {
	switch t {
	case Number:
		return "number"
	case String:
		return "string"
	case Boolean:
		return "boolean"
	case Array:
		return "array"
	case ConceptType:
		return "concept"
	}
	return "unknown"
}

// ParseType maps a definition-format type name to a Type.  A name
// that isn't a builtin is a concept type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "number":
		return Number, true
	case "string":
		return String, true
	case "boolean":
		return Boolean, true
	case "array":
		return Array, true
	}
	return ConceptType, false
}

// Getter reads an instance's value from a backing store.
type Getter func(ctx context.Context, id string) (interface{}, error)

// Setter writes an instance's value to a backing store.
type Setter func(ctx context.Context, id string, value interface{}) error

// Provider is one backing store's named get/set capability for a
// property.  Providers are consulted in attach order: the first
// Getter to succeed wins a read, and a write fans out to every
// Setter.
type Provider struct {
	ID  string
	Get Getter
	Set Setter
}

// Update describes a committed property write (or a derived
// recomputation) to subscribers.
type Update struct {
	ID    string
	Value interface{}
	Old   interface{}

	// SkipStateChange is set when the write should not emit a
	// stateChanged event: initial values during Create, and
	// derived recomputations.
	SkipStateChange bool
}

// UpdateFunc receives Updates.
type UpdateFunc func(ctx context.Context, u *Update)

// Property is a typed, validated, optionally derived field on a
// Concept.
//
// A Property holds no per-instance state itself (aside from the
// derived-value cache); values live in whatever Providers are
// attached.
type Property struct {
	Name string

	Type Type

	// Of is the concept type name when Type is ConceptType, or
	// the item concept type name when Type is Array and Items is
	// ConceptType.
	Of string

	// Items is the declared item type for an Array.
	Items Type

	Default interface{}
	Min     *float64
	Max     *float64
	Enum    []string

	// Matches constrains String values.  MatchesSource is kept for
	// copying and rendering.
	Matches       *regexp.Regexp
	MatchesSource string

	// Derive, if set, makes this a derived property: no direct
	// setter, recomputed from upstream properties.
	Derive *Derivation

	concept *Concept

	mu        sync.Mutex
	providers []Provider
	subs      []*updateSub
	nextSub   int
	cache     map[string]interface{}
	unwire    []func()
}

type updateSub struct {
	id int
	f  UpdateFunc
}

// NewProperty makes a property of the given type.  The property does
// nothing useful until it's added to a Concept and mapped to at least
// one store.
func NewProperty(name string, t Type) *Property {
	return &Property{
		Name:  name,
		Type:  t,
		cache: make(map[string]interface{}, 8),
	}
}

// Concept is the concept this property belongs to (nil until added).
func (p *Property) Concept() *Concept {
	return p.concept
}

// Copy makes a fresh, unbound property with the same definition.
// Providers, subscribers, and the derived cache do not carry over;
// Join maps the copy to stores itself.
func (p *Property) Copy() *Property {
	np := NewProperty(p.Name, p.Type)
	np.Of = p.Of
	np.Items = p.Items
	np.Default = p.Default
	np.Min = p.Min
	np.Max = p.Max
	np.Enum = append([]string(nil), p.Enum...)
	np.Matches = p.Matches
	np.MatchesSource = p.MatchesSource
	if p.Derive != nil {
		np.Derive = p.Derive.Copy()
	}
	return np
}

// AttachProvider adds a backing capability.  Attaching an ID that's
// already present is silently ignored, so a store can re-map a pair
// without bookkeeping.
func (p *Property) AttachProvider(pr Provider) {
	p.mu.Lock()
	for _, have := range p.providers {
		if have.ID == pr.ID {
			p.mu.Unlock()
			return
		}
	}
	p.providers = append(p.providers, pr)
	p.mu.Unlock()
}

// DetachProvider removes the provider with the given ID.  Detaching
// an unknown ID is an error.
func (p *Property) DetachProvider(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, have := range p.providers {
		if have.ID == id {
			p.providers = append(p.providers[:i:i], p.providers[i+1:]...)
			return nil
		}
	}
	concept := ""
	if p.concept != nil {
		concept = p.concept.Name
	}
	return &Unmapped{Concept: concept, Property: p.Name, Op: "detach from"}
}

// Providers returns a snapshot of the attached providers.
func (p *Property) Providers() []Provider {
	p.mu.Lock()
	acc := make([]Provider, len(p.providers))
	copy(acc, p.providers)
	p.mu.Unlock()
	return acc
}

// OnUpdated subscribes to committed writes (and derived
// recomputations).  The returned function cancels the subscription.
func (p *Property) OnUpdated(f UpdateFunc) func() {
	p.mu.Lock()
	p.nextSub++
	sub := &updateSub{id: p.nextSub, f: f}
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		for i, s := range p.subs {
			if s.id == sub.id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
	}
}

func (p *Property) conceptName() string {
	if p.concept == nil {
		return ""
	}
	return p.concept.Name
}

func (p *Property) engine() *Engine {
	if p.concept == nil {
		return nil
	}
	return p.concept.engine
}

// GetValue reads the instance's value.
//
// A derived property recomputes.  Otherwise the attached Getters are
// tried in order and the first success wins.  If there are no
// Getters at all, that's an Unmapped error; if every Getter fails,
// the declared default (else the type's zero value) is returned.
func (p *Property) GetValue(ctx context.Context, id string) (interface{}, error) {
	if p.Derive != nil {
		return p.Recompute(ctx, id)
	}

	providers := p.Providers()
	if len(providers) == 0 {
		return nil, &Unmapped{Concept: p.conceptName(), Property: p.Name, Op: "get"}
	}

	for _, pr := range providers {
		if pr.Get == nil {
			continue
		}
		v, err := pr.Get(ctx, id)
		if err == nil {
			return v, nil
		}
	}

	return p.fallback(), nil
}

// fallback gives the declared default or the type's zero value.
func (p *Property) fallback() interface{} {
	if p.Default != nil {
		return copyValue(p.Default)
	}
	switch p.Type {
	case Number:
		return float64(0)
	case String:
		return ""
	case Boolean:
		return false
	case Array:
		return []interface{}{}
	case ConceptType:
		return nil
	}
	log.Printf(`warning: property "%s" has unknown type %d`, p.Name, p.Type)
	return nil
}

// SetValue validates and writes the instance's value, then notifies
// subscribers and emits a stateChanged event.
func (p *Property) SetValue(ctx context.Context, id string, value interface{}) error {
	return p.setValue(ctx, id, value, false)
}

// SetValueQuietly is SetValue without the stateChanged emission.
// Concept.Create uses it for initial values.
func (p *Property) SetValueQuietly(ctx context.Context, id string, value interface{}) error {
	return p.setValue(ctx, id, value, true)
}

func (p *Property) setValue(ctx context.Context, id string, value interface{}, quiet bool) error {
	if p.Derive != nil {
		return &DerivedReadOnly{Concept: p.conceptName(), Property: p.Name}
	}
	if err := p.Validate(value); err != nil {
		return err
	}

	providers := p.Providers()
	setters := 0
	for _, pr := range providers {
		if pr.Set != nil {
			setters++
		}
	}
	if setters == 0 {
		return &Unmapped{Concept: p.conceptName(), Property: p.Name, Op: "set"}
	}

	// Best effort; a failure to read the old value is not a
	// failure to write the new one.
	var old interface{}
	for _, pr := range providers {
		if pr.Get == nil {
			continue
		}
		if v, err := pr.Get(ctx, id); err == nil {
			old = v
			break
		}
	}

	for _, pr := range providers {
		if pr.Set == nil {
			continue
		}
		if err := pr.Set(ctx, id, value); err != nil {
			return err
		}
	}

	p.fireUpdated(ctx, &Update{
		ID:              id,
		Value:           value,
		Old:             old,
		SkipStateChange: quiet,
	})
	return nil
}

// fireUpdated notifies subscribers (over a snapshot of the list) and,
// unless suppressed, emits stateChanged.
func (p *Property) fireUpdated(ctx context.Context, u *Update) {
	p.mu.Lock()
	snapshot := make([]*updateSub, len(p.subs))
	copy(snapshot, p.subs)
	p.mu.Unlock()

	for _, sub := range snapshot {
		sub.f(ctx, u)
	}

	if u.SkipStateChange {
		return
	}
	if e := p.engine(); e != nil {
		// A stateChanged handler error has nowhere useful to
		// go: the write is already committed.
		if err := e.Bus().Emit(ctx, &Event{
			Name:     EventStateChanged,
			Concept:  p.concept,
			Contexts: []*Context{NewContext(u.ID)},
			Property: p.Name,
			Value:    u.Value,
			Old:      u.Old,
		}); err != nil && !IsStopped(err) {
			log.Printf(`stateChanged handler for "%s.%s": %v`, p.conceptName(), p.Name, err)
		}
	}
}

// destroy detaches everything.  Called when the owning concept is
// destroyed or the property is omitted.
func (p *Property) destroy() {
	p.mu.Lock()
	unwire := p.unwire
	p.unwire = nil
	p.providers = nil
	p.subs = nil
	p.cache = make(map[string]interface{})
	p.mu.Unlock()
	for _, cancel := range unwire {
		cancel()
	}
}

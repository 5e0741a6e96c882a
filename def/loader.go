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

package def

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"

	"github.com/Comcast/concepts/core"
	"github.com/Comcast/concepts/datastore"
)

// Loader wires parsed documents into an engine: datastores first,
// then concept types, then properties, mappings, triggers, and
// behaviours.
//
// One Loader can load many documents; later documents can reference
// datastores and concepts from earlier ones.
type Loader struct {
	// Debug enables chatty logging.
	Debug bool

	Engine *core.Engine
	Stores *datastore.Registry

	mu         sync.Mutex
	datastores map[string]datastore.Datastore
	derived    []*core.Property
}

// NewLoader makes a Loader.
func NewLoader(e *core.Engine, r *datastore.Registry) *Loader {
	return &Loader{
		Engine:     e,
		Stores:     r,
		datastores: make(map[string]datastore.Datastore, 4),
	}
}

func (l *Loader) logf(format string, args ...interface{}) {
	if l.Debug {
		log.Printf("Loader."+format, args...)
	}
}

// Datastore looks up a datastore instance by name.
func (l *Loader) Datastore(name string) (datastore.Datastore, bool) {
	l.mu.Lock()
	d, have := l.datastores[name]
	l.mu.Unlock()
	return d, have
}

// Datastores returns the names of the loaded datastore instances.
func (l *Loader) Datastores() []string {
	l.mu.Lock()
	acc := make([]string, 0, len(l.datastores))
	for name := range l.datastores {
		acc = append(acc, name)
	}
	l.mu.Unlock()
	return acc
}

// LoadBytes parses and loads one document.
func (l *Loader) LoadBytes(ctx context.Context, bs []byte) error {
	doc, err := ParseDocument(bs)
	if err != nil {
		return err
	}
	return l.Load(ctx, doc)
}

// Load wires one parsed document into the engine.
//
// Order matters: every concept type is registered before any
// property, trigger, or behaviour is wired, so that cross-concept
// references within one document resolve regardless of declaration
// order.  Derived-property plumbing is finished last for the same
// reason.
func (l *Loader) Load(ctx context.Context, doc *Document) error {
	for _, name := range sortedKeys(doc.Datastores) {
		if err := l.loadDatastore(ctx, doc.Datastores[name]); err != nil {
			return err
		}
	}

	concepts := make(map[string]*core.Concept, len(doc.Concepts))
	for _, name := range sortedKeys(doc.Concepts) {
		c := l.Engine.NewConcept(name)
		c.Doc = doc.Concepts[name].Doc
		concepts[name] = c
		l.logf("Load concept %s", name)
	}

	for _, name := range sortedKeys(doc.Concepts) {
		if err := l.loadConcept(ctx, concepts[name], doc.Concepts[name]); err != nil {
			return err
		}
	}

	// Joins after all of the document's concepts exist.
	for _, name := range sortedKeys(doc.Concepts) {
		cd := doc.Concepts[name]
		c := concepts[name]
		for _, otherName := range cd.Join {
			other := l.Engine.GetConceptFromType(otherName)
			if other == nil {
				return fmt.Errorf(`concept "%s": join: unknown concept "%s"`, name, otherName)
			}
			if err := c.Join(ctx, other); err != nil {
				return err
			}
		}
		if 0 < len(cd.OmitProperties) || 0 < len(cd.OmitActions) {
			if err := c.Omit(ctx, cd.OmitProperties, cd.OmitActions); err != nil {
				return err
			}
		}
	}

	l.mu.Lock()
	derived := l.derived
	l.derived = nil
	l.mu.Unlock()
	for _, p := range derived {
		if err := p.FinishSetup(); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) loadDatastore(ctx context.Context, dd *DatastoreDef) error {
	l.mu.Lock()
	_, have := l.datastores[dd.Name]
	l.mu.Unlock()
	if have {
		// Redeclaration across documents is fine; the first one
		// wins.
		return nil
	}

	d, err := l.Stores.New(dd.Kind, dd.Name, dd.Options, l.Engine)
	if err != nil {
		return fmt.Errorf(`datastore "%s": %v`, dd.Name, err)
	}
	if err := d.Init(ctx); err != nil {
		return fmt.Errorf(`datastore "%s": %v`, dd.Name, err)
	}

	l.mu.Lock()
	l.datastores[dd.Name] = d
	l.mu.Unlock()
	l.logf("Load datastore %s (%s)", dd.Name, dd.Kind)
	return nil
}

func (l *Loader) loadConcept(ctx context.Context, c *core.Concept, cd *ConceptDef) error {
	oops := func(format string, args ...interface{}) error {
		return fmt.Errorf(`concept "%s": %s`, cd.Name, fmt.Sprintf(format, args...))
	}

	for _, name := range sortedKeys(cd.Properties) {
		p, err := l.buildProperty(c, cd.Properties[name])
		if err != nil {
			return oops("%v", err)
		}
		c.AddProperty(p)
	}

	// Mappings right after properties so that defaults and initial
	// values have somewhere to live.
	for _, pname := range sortedKeys(cd.Mappings) {
		p, have := c.Property(pname)
		if !have {
			return oops(`mapping for unknown property "%s"`, pname)
		}
		if p.Derive != nil {
			return oops(`property "%s" is derived and cannot be mapped`, pname)
		}
		for _, storeName := range cd.Mappings[pname] {
			d, have := l.Datastore(storeName)
			if !have {
				return oops(`mapping for "%s": unknown datastore "%s"`, pname, storeName)
			}
			if err := c.MapProperty(ctx, p.Name, d); err != nil {
				return oops(`mapping for "%s": %v`, pname, err)
			}
		}
	}

	for _, name := range sortedKeys(cd.Actions) {
		a, err := l.Engine.MakeAction(c, cd.Actions[name])
		if err != nil {
			return oops(`action "%s": %v`, name, err)
		}
		c.AddAction(name, a)
	}

	for _, name := range sortedKeys(cd.Triggers) {
		td := cd.Triggers[name]
		t := core.NewTrigger(td.Name, td.Kind, td.Options)
		if err := c.AddTrigger(ctx, t, true); err != nil {
			return oops(`trigger "%s": %v`, name, err)
		}
	}

	for _, name := range sortedKeys(cd.Behaviours) {
		bd := cd.Behaviours[name]
		chain, err := l.Engine.MakeChain(c, bd.Do)
		if err != nil {
			return oops(`behaviour "%s": %v`, name, err)
		}
		b := core.NewBehaviour(bd.Name, bd.Triggers, chain)
		b.OverrideActionName = bd.OverrideActionName
		if err := c.AddBehaviour(ctx, b); err != nil {
			return oops(`behaviour "%s": %v`, name, err)
		}
	}

	return nil
}

func (l *Loader) buildProperty(c *core.Concept, pd *PropertyDef) (*core.Property, error) {
	if pd.Derive != nil {
		chain, err := l.Engine.MakeChain(c, pd.Derive.Transform)
		if err != nil {
			return nil, fmt.Errorf(`property "%s": %v`, pd.Name, err)
		}
		p := core.NewProperty(pd.Name, core.Number)
		p.Derive = &core.Derivation{
			Properties: pd.Derive.Properties,
			Transform:  chain,
			As:         pd.Derive.As,
		}
		l.mu.Lock()
		l.derived = append(l.derived, p)
		l.mu.Unlock()
		return p, nil
	}

	t, builtin := core.ParseType(pd.TypeName)
	p := core.NewProperty(pd.Name, t)
	if !builtin {
		p.Of = pd.TypeName
	}

	opts := pd.Options
	if opts == nil {
		return p, nil
	}
	oops := func(format string, args ...interface{}) error {
		return fmt.Errorf(`property "%s": %s`, pd.Name, fmt.Sprintf(format, args...))
	}

	if v, have := opts["default"]; have {
		p.Default = v
	}
	if v, have := opts["min"]; have {
		f, ok := asFloat(v)
		if !ok {
			return nil, oops(`"min" should be a number`)
		}
		p.Min = &f
	}
	if v, have := opts["max"]; have {
		f, ok := asFloat(v)
		if !ok {
			return nil, oops(`"max" should be a number`)
		}
		p.Max = &f
	}
	if v, have := opts["enum"]; have {
		names, err := strings_(v)
		if err != nil {
			return nil, oops(`"enum": %v`, err)
		}
		p.Enum = names
	}
	if v, have := opts["matches"]; have {
		s, is := v.(string)
		if !is {
			return nil, oops(`"matches" should be a string`)
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, oops(`"matches": %v`, err)
		}
		p.Matches = re
		p.MatchesSource = s
	}
	if v, have := opts["items"]; have {
		s, is := v.(string)
		if !is {
			return nil, oops(`"items" should be a type name`)
		}
		it, builtin := core.ParseType(s)
		p.Items = it
		if !builtin {
			p.Of = s
		}
	}

	if err := p.Validate(p.Default); err != nil {
		return nil, oops("bad default: %v", err)
	}

	return p, nil
}

// asFloat coerces the numeric types YAML and JSON hand back.
func asFloat(x interface{}) (float64, bool) {
	switch v := x.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

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
)

// Derivation makes a property computed instead of stored.
//
// Properties names the upstream properties whose updates trigger a
// recomputation.  Transform is a pipeline run against a synthetic
// single context whose target is the instance being recomputed; the
// variable named by As (default: the property's own name) becomes the
// derived value.
//
// Derived values are cached per instance.  A recomputation that
// produces a different value notifies subscribers with the
// state-change suppression flag set: derived changes propagate to
// other subscribers (including derived-of-derived properties) but are
// not themselves user-facing state changes.
type Derivation struct {
	Properties []string
	Transform  *Chain
	As         string
}

// Copy shares the Transform chain, which is immutable after
// normalization.
func (d *Derivation) Copy() *Derivation {
	return &Derivation{
		Properties: append([]string(nil), d.Properties...),
		Transform:  d.Transform,
		As:         d.As,
	}
}

func (d *Derivation) out(name string) string {
	if d.As != "" {
		return d.As
	}
	return name
}

// Recompute runs the derivation pipeline for the given instance and
// returns the derived value.
func (p *Property) Recompute(ctx context.Context, id string) (interface{}, error) {
	d := p.Derive
	if d == nil {
		return nil, &NoDerivedOutput{Concept: p.conceptName(), Property: p.Name}
	}

	ectx := NewContext(id)

	// Pre-bind upstream values as variables for the transform's
	// convenience.  Best effort: a transform that really needs a
	// value will read it with a property operand and get a real
	// error there.
	if e := p.engine(); e != nil {
		for _, name := range d.Properties {
			up, err := e.LookupProperty(id, p.concept, name)
			if err != nil {
				continue
			}
			if v, err := up.GetValue(ctx, id); err == nil {
				ectx.Vars[name] = v
			}
		}
	}

	out := d.out(p.Name)

	ectxs, err := d.Transform.Exec(ctx, withSaved([]*Context{ectx}))
	if err != nil && !IsStopped(err) {
		return nil, err
	}
	if err == nil && 0 < len(ectxs) {
		ectx = ectxs[0]
	}

	value, have := ectx.Vars[out]
	if !have {
		// Also covers an intentional stop that fired before the
		// output variable was bound.
		return nil, &NoDerivedOutput{Concept: p.conceptName(), Property: p.Name}
	}

	p.mu.Lock()
	prev, had := p.cache[id]
	changed := !had || !IsSame(prev, value)
	if changed {
		p.cache[id] = copyValue(value)
	}
	p.mu.Unlock()

	if changed {
		p.fireUpdated(ctx, &Update{
			ID:              id,
			Value:           value,
			Old:             prev,
			SkipStateChange: true,
		})
	}

	return value, nil
}

// FinishSetup wires a derived property to its upstream properties so
// that their updates trigger recomputation.  Call once, after all of
// the owning engine's concepts and properties exist (upstream names
// can resolve across concepts).
func (p *Property) FinishSetup() error {
	if p.Derive == nil {
		return nil
	}
	e := p.engine()
	if e == nil {
		return &UnknownConcept{Name: p.conceptName()}
	}

	for _, name := range p.Derive.Properties {
		up, err := e.LookupProperty("", p.concept, name)
		if err != nil {
			return err
		}
		cancel := up.OnUpdated(func(ctx context.Context, u *Update) {
			if _, err := p.Recompute(ctx, u.ID); err != nil && !IsStopped(err) {
				log.Printf(`recompute of "%s.%s": %v`, p.conceptName(), p.Name, err)
			}
		})
		p.mu.Lock()
		p.unwire = append(p.unwire, cancel)
		p.mu.Unlock()
	}

	return nil
}

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
)

// Behaviour binds triggers to an action chain.
//
// Triggers names triggers on the owning concept; a TriggerSpec with
// an empty name is anonymous and gets materialized as a fresh,
// uniquely named trigger when the behaviour is attached.
//
// Dispatch: when one of the triggers fires, the behaviour copies the
// event's contexts and runs its chain.  An intentional stop is normal
// termination.  A genuine error propagates to the emitter -- and so
// aborts dispatch to sibling behaviours bound to the same event.
// Callers wanting isolation wrap the work in "run" with
// stopOnError:false.
type Behaviour struct {
	Name     string
	Triggers []*TriggerSpec
	Chain    *Chain

	// OverrideActionName, if non-empty, also registers the chain
	// as a directly-callable action under that name.
	OverrideActionName string

	concept *Concept
	cancels []func()
}

// TriggerSpec names an existing trigger or describes an anonymous
// one.
type TriggerSpec struct {
	Name    string
	Kind    string
	Options map[string]interface{}
}

// NewBehaviour makes a behaviour; wire it with Concept.AddBehaviour.
func NewBehaviour(name string, triggers []*TriggerSpec, chain *Chain) *Behaviour {
	return &Behaviour{
		Name:     name,
		Triggers: triggers,
		Chain:    chain,
	}
}

// Copy makes an unbound duplicate (for Concept.Join).  The chain is
// shared; it's immutable after normalization.
func (b *Behaviour) Copy() *Behaviour {
	triggers := make([]*TriggerSpec, len(b.Triggers))
	copy(triggers, b.Triggers)
	return &Behaviour{
		Name:               b.Name,
		Triggers:           triggers,
		Chain:              b.Chain,
		OverrideActionName: b.OverrideActionName,
	}
}

// attach materializes triggers and subscribes the chain to their
// scoped events.
func (b *Behaviour) attach(ctx context.Context) error {
	c := b.concept

	for _, ts := range b.Triggers {
		name := ts.Name
		if name == "" {
			// Anonymous trigger literal.
			name = b.Name + "-" + Gensym(8)
			ts.Name = name
		}
		if _, have := c.Trigger(name); !have {
			t := NewTrigger(name, ts.Kind, ts.Options)
			if err := c.AddTrigger(ctx, t, true); err != nil {
				return err
			}
		}

		cancel := c.engine.Bus().Subscribe(ScopedEventName(c, name), b.dispatch)
		b.cancels = append(b.cancels, cancel)
	}

	if b.OverrideActionName != "" {
		c.AddAction(b.OverrideActionName, b.Chain)
	}
	return nil
}

// dispatch runs the chain over a copy of the event's contexts.
func (b *Behaviour) dispatch(ctx context.Context, ev *Event) error {
	ectxs := CopyContexts(ev.Contexts)
	for _, ectx := range ectxs {
		// Fresh side channel per invocation.
		ectx.Saved = nil
	}
	if _, err := b.Chain.Exec(ctx, withSaved(ectxs)); err != nil {
		if IsStopped(err) {
			return nil
		}
		return err
	}
	return nil
}

// detach unsubscribes everything.
func (b *Behaviour) detach() {
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	if b.OverrideActionName != "" && b.concept != nil {
		b.concept.RemoveAction(b.OverrideActionName)
	}
}

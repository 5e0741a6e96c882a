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
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

// ScopedEventName is the bus event a trigger re-emits when its filter
// matches, and the event behaviours subscribe to.  Engine-global
// triggers (nil concept) get a leading slash.
func ScopedEventName(c *Concept, trigger string) string {
	if c == nil {
		return "/" + trigger
	}
	return c.Name + "/" + trigger
}

// EnableFunc subscribes a trigger's machinery and returns cancel
// functions that Disable runs.
type EnableFunc func(ctx context.Context, t *Trigger) ([]func(), error)

// TriggerKinds is a registry of trigger kinds.  An Engine owns one;
// see StandardTriggerKinds.
type TriggerKinds struct {
	mu    sync.Mutex
	kinds map[string]EnableFunc
}

// NewTriggerKinds makes an empty registry.
func NewTriggerKinds() *TriggerKinds {
	return &TriggerKinds{
		kinds: make(map[string]EnableFunc, 8),
	}
}

// Register adds (or replaces) a kind.
func (ks *TriggerKinds) Register(kind string, f EnableFunc) {
	ks.mu.Lock()
	ks.kinds[kind] = f
	ks.mu.Unlock()
}

func (ks *TriggerKinds) get(kind string) (EnableFunc, bool) {
	ks.mu.Lock()
	f, have := ks.kinds[kind]
	ks.mu.Unlock()
	return f, have
}

// StandardTriggerKinds returns a registry with the builtin kinds:
// "" (a plain named event), "stateChanged", "action", and
// "interval".
func StandardTriggerKinds() *TriggerKinds {
	ks := NewTriggerKinds()
	ks.Register("", enableNamed)
	ks.Register("stateChanged", enableStateChanged)
	ks.Register("action", enableAction)
	ks.Register("interval", enableInterval)
	return ks
}

// Trigger is a named, enable/disable-able event source.  While
// enabled it watches the bus for its kind's events and re-emits a
// concept-scoped event when its filter matches.
type Trigger struct {
	Name    string
	Kind    string
	Options map[string]interface{}

	concept *Concept
	engine  *Engine

	mu      sync.Mutex
	enabled bool
	cancels []func()
}

// NewTrigger makes a trigger.  It does nothing until added to a
// concept (Concept.AddTrigger) or bound to an engine (Bind) and
// enabled.
func NewTrigger(name, kind string, options map[string]interface{}) *Trigger {
	return &Trigger{
		Name:    name,
		Kind:    kind,
		Options: options,
	}
}

// Bind attaches an engine (and optionally a concept) to the trigger.
// Engine-global triggers such as intervals pass a nil concept.
func (t *Trigger) Bind(e *Engine, c *Concept) {
	t.engine = e
	t.concept = c
}

// Concept is the owning concept (nil for engine-global triggers).
func (t *Trigger) Concept() *Concept {
	return t.concept
}

// Scoped is the event name this trigger re-emits.
func (t *Trigger) Scoped() string {
	return ScopedEventName(t.concept, t.Name)
}

// Enabled reports the trigger's state.
func (t *Trigger) Enabled() bool {
	t.mu.Lock()
	enabled := t.enabled
	t.mu.Unlock()
	return enabled
}

// Enable subscribes the trigger.  Enabling an enabled trigger just
// re-subscribes.
func (t *Trigger) Enable(ctx context.Context) error {
	t.Disable()

	if t.engine == nil {
		return &UnknownTrigger{Name: t.Name}
	}
	enable, have := t.engine.TriggerKinds().get(t.Kind)
	if !have {
		concept := ""
		if t.concept != nil {
			concept = t.concept.Name
		}
		return &UnknownTrigger{Concept: concept, Name: t.Name + " (kind " + t.Kind + ")"}
	}

	cancels, err := enable(ctx, t)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.enabled = true
	t.cancels = cancels
	t.mu.Unlock()
	return nil
}

// Disable unsubscribes the trigger.  Idempotent.
func (t *Trigger) Disable() {
	t.mu.Lock()
	cancels := t.cancels
	t.cancels = nil
	t.enabled = false
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// emitScoped re-emits the concept-scoped event.  A handler error
// propagates (behaviour dispatch has no sibling isolation).
func (t *Trigger) emitScoped(ctx context.Context, ectxs []*Context) error {
	return t.engine.Bus().Emit(ctx, &Event{
		Name:     t.Scoped(),
		Concept:  t.concept,
		Contexts: ectxs,
	})
}

func (t *Trigger) optString(key, def string) string {
	if t.Options != nil {
		if v, have := t.Options[key]; have {
			if s, is := v.(string); is {
				return s
			}
		}
	}
	return def
}

// enableNamed is the default kind: the trigger listens for a bus
// event with its own name and re-emits it scoped.  Concept.Fire
// emits the scoped event directly, so this path only matters for
// bus-wide custom events.
func enableNamed(ctx context.Context, t *Trigger) ([]func(), error) {
	cancel := t.engine.Bus().Subscribe(t.Name, func(cx context.Context, ev *Event) error {
		return t.emitScoped(cx, ev.Contexts)
	})
	return []func(){cancel}, nil
}

// enableStateChanged filters stateChanged events by concept and
// (optionally) property name.  The re-emitted contexts carry
// "property", "value", and "old" variables.
func enableStateChanged(ctx context.Context, t *Trigger) ([]func(), error) {
	conceptName := ""
	if t.concept != nil {
		conceptName = t.concept.Name
	}
	conceptName = t.optString("concept", conceptName)
	property := t.optString("property", "")

	cancel := t.engine.Bus().Subscribe(EventStateChanged, func(cx context.Context, ev *Event) error {
		if conceptName != "" && (ev.Concept == nil || !ev.Concept.IsA(conceptName)) {
			return nil
		}
		if property != "" && ev.Property != property {
			return nil
		}
		ectxs := CopyContexts(ev.Contexts)
		for _, ectx := range ectxs {
			ectx.Vars.Extend("property", ev.Property)
			ectx.Vars.Extend("value", ev.Value)
			ectx.Vars.Extend("old", ev.Old)
		}
		return t.emitScoped(cx, ectxs)
	})
	return []func(){cancel}, nil
}

// enableAction filters action hook events by action name and
// before/after side.
func enableAction(ctx context.Context, t *Trigger) ([]func(), error) {
	actionName := t.optString("action", "")
	if actionName == "" {
		return nil, &BadOptions{Kind: "action trigger", Reason: `missing "action" option`}
	}
	when := t.optString("when", "after")

	cancel := t.engine.Bus().Subscribe(EventAction, func(cx context.Context, ev *Event) error {
		if ev.Action != actionName || ev.When != when {
			return nil
		}
		if t.concept != nil && ev.Concept != nil && !ev.Concept.IsA(t.concept.Name) {
			return nil
		}
		return t.emitScoped(cx, CopyContexts(ev.Contexts))
	})
	return []func(){cancel}, nil
}

// enableInterval fires the trigger on a schedule: "every" (seconds,
// or a Go duration string) or "cron" (a cron expression).
func enableInterval(ctx context.Context, t *Trigger) ([]func(), error) {
	var next func(time.Time) time.Time

	if expr := t.optString("cron", ""); expr != "" {
		c, err := cronexpr.Parse(expr)
		if err != nil {
			return nil, &BadOptions{Kind: "interval trigger", Reason: err.Error()}
		}
		next = c.Next
	} else {
		d, err := intervalEvery(t.Options)
		if err != nil {
			return nil, err
		}
		next = func(now time.Time) time.Time {
			return now.Add(d)
		}
	}

	stop := make(chan struct{})
	go func() {
		for {
			now := time.Now()
			at := next(now)
			if at.IsZero() {
				return
			}
			timer := time.NewTimer(at.Sub(now))
			select {
			case <-stop:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if err := t.emitScoped(ctx, []*Context{NewContext("")}); err != nil && !IsStopped(err) {
				log.Printf(`interval trigger "%s": %v`, t.Scoped(), err)
			}
		}
	}()

	return []func(){func() { close(stop) }}, nil
}

func intervalEvery(options map[string]interface{}) (time.Duration, error) {
	bad := func(reason string) error {
		return &BadOptions{Kind: "interval trigger", Reason: reason}
	}
	if options == nil {
		return 0, bad(`missing "every" or "cron" option`)
	}
	v, have := options["every"]
	if !have {
		return 0, bad(`missing "every" or "cron" option`)
	}
	if s, is := v.(string); is {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, bad(err.Error())
		}
		return d, nil
	}
	if f, ok := asFloat(v); ok {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, bad(`"every" should be seconds or a duration string`)
}

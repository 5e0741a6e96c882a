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
	"errors"
	"testing"
	"time"
)

func addBehaviour(t *testing.T, c *Concept, name string, triggers []*TriggerSpec, specs []interface{}) *Behaviour {
	chain, err := c.Engine().MakeChain(c, specs)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBehaviour(name, triggers, chain)
	if err := c.AddBehaviour(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCounterScenario(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	tr := NewTrigger("bump", "", nil)
	if err := counter.AddTrigger(ctx, tr, true); err != nil {
		t.Fatal(err)
	}

	addBehaviour(t, counter, "bumped", []*TriggerSpec{{Name: "bump"}}, []interface{}{
		map[string]interface{}{"increment": "count"},
	})

	for i := 0; i < 3; i++ {
		if err := counter.Fire(ctx, "bump", []*Context{NewContext(id)}); err != nil {
			t.Fatal(err)
		}
	}

	if got := countOf(t, counter, id); got != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestBehaviourSwallowsStop(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	tr := NewTrigger("bump", "", nil)
	if err := counter.AddTrigger(ctx, tr, true); err != nil {
		t.Fatal(err)
	}

	addBehaviour(t, counter, "bumped", []*TriggerSpec{{Name: "bump"}}, []interface{}{
		map[string]interface{}{"increment": "count"},
		"exit",
		map[string]interface{}{"increment": "count"},
	})

	// The stop must not surface to the firer.
	if err := counter.Fire(ctx, "bump", []*Context{NewContext(id)}); err != nil {
		t.Fatal(err)
	}
	if got := countOf(t, counter, id); got != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestAnonymousTrigger(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	flag := NewProperty("flag", Boolean)
	counter.AddProperty(flag)
	if err := s.CreateBackingStore(ctx, counter, flag); err != nil {
		t.Fatal(err)
	}

	// An anonymous stateChanged trigger literal.
	b := addBehaviour(t, counter, "onFlag",
		[]*TriggerSpec{{Kind: "stateChanged", Options: map[string]interface{}{"property": "flag"}}},
		[]interface{}{map[string]interface{}{"increment": "count"}})

	// The literal got materialized as a real, named trigger.
	if b.Triggers[0].Name == "" {
		t.Fatal("anonymous trigger got no name")
	}
	if _, have := counter.Trigger(b.Triggers[0].Name); !have {
		t.Fatal("anonymous trigger not on the concept")
	}

	if err := flag.SetValue(ctx, id, true); err != nil {
		t.Fatal(err)
	}
	if got := countOf(t, counter, id); got != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestStateChangedTriggerFilters(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	door := e.NewConcept("Door")
	open := NewProperty("open", Boolean)
	door.AddProperty(open)
	if err := s.CreateBackingStore(ctx, door, open); err != nil {
		t.Fatal(err)
	}
	doorID, err := door.Create(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTrigger("doorChanged", "stateChanged", map[string]interface{}{
		"concept":  "Door",
		"property": "open",
	})
	if err := counter.AddTrigger(ctx, tr, true); err != nil {
		t.Fatal(err)
	}

	var got []*Context
	e.Bus().Subscribe(tr.Scoped(), func(ctx context.Context, ev *Event) error {
		got = append(got, ev.Contexts...)
		return nil
	})

	if err := open.SetValue(ctx, doorID, true); err != nil {
		t.Fatal(err)
	}
	// A different concept's write must not match.  (This write is
	// to the Counter's own property, which also emits
	// stateChanged.)
	count, _ := counter.Property("count")
	if err := count.SetValue(ctx, id, float64(9)); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("wanted 1 firing, got %d", len(got))
	}
	if got[0].Target != doorID {
		t.Fatalf("got target %s", got[0].Target)
	}
	if got[0].Vars["property"] != "open" || got[0].Vars["value"] != true {
		t.Fatalf("got vars %#v", got[0].Vars)
	}
}

func TestActionTrigger(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	bump, err := e.MakeAction(counter, map[string]interface{}{"increment": "count"})
	if err != nil {
		t.Fatal(err)
	}
	counter.AddAction("bump", bump)

	tr := NewTrigger("afterBump", "action", map[string]interface{}{"action": "bump"})
	if err := counter.AddTrigger(ctx, tr, true); err != nil {
		t.Fatal(err)
	}

	fired := 0
	e.Bus().Subscribe(tr.Scoped(), func(ctx context.Context, ev *Event) error {
		fired++
		return nil
	})

	if _, err := counter.RunAction(ctx, "bump", []*Context{NewContext(id)}); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Fatalf("wanted 1 firing (after only), got %d", fired)
	}
}

func TestIntervalTrigger(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	counter := e.NewConcept("Ticker")

	tr := NewTrigger("tick", "interval", map[string]interface{}{"every": 0.01})
	if err := counter.AddTrigger(ctx, tr, true); err != nil {
		t.Fatal(err)
	}

	ticks := make(chan struct{}, 64)
	e.Bus().Subscribe(tr.Scoped(), func(ctx context.Context, ev *Event) error {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}

	tr.Disable()
	// Drain, then verify silence.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-ticks:
			continue
		default:
		}
		break
	}
	select {
	case <-ticks:
		t.Fatal("ticked after disable")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAddTriggerRemoveOld(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	counter := e.NewConcept("Counter")

	old := NewTrigger("bump", "", nil)
	if err := counter.AddTrigger(ctx, old, true); err != nil {
		t.Fatal(err)
	}

	replacement := NewTrigger("bump", "", nil)
	err := counter.AddTrigger(ctx, replacement, false)
	if err == nil {
		t.Fatal("without removeOld, a duplicate should fail")
	}
	var exists *TriggerExists
	if !errors.As(err, &exists) {
		t.Fatalf("wanted TriggerExists, got %T", err)
	}
	if err := counter.AddTrigger(ctx, replacement, true); err != nil {
		t.Fatal(err)
	}

	if old.Enabled() {
		t.Fatal("the old trigger should be disabled")
	}
	if !replacement.Enabled() {
		t.Fatal("the replacement should be enabled")
	}
}

func TestOverrideActionName(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	chain, err := e.MakeChain(counter, []interface{}{
		map[string]interface{}{"increment": "count"},
	})
	if err != nil {
		t.Fatal(err)
	}
	b := NewBehaviour("bumped", []*TriggerSpec{{Name: "bump"}}, chain)
	b.OverrideActionName = "bump"
	if err := counter.AddBehaviour(ctx, b); err != nil {
		t.Fatal(err)
	}

	// Callable directly, not just via the trigger.
	if _, err := counter.RunAction(ctx, "bump", []*Context{NewContext(id)}); err != nil {
		t.Fatal(err)
	}
	if got := countOf(t, counter, id); got != 1 {
		t.Fatalf("got %v", got)
	}

	counter.RemoveBehaviour("bumped")
	if _, have := counter.Action("bump"); have {
		t.Fatal("the override action should go with the behaviour")
	}
}

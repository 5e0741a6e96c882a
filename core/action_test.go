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
)

// makeCounter builds a Counter concept with a mapped "count" and a
// created instance, which most of these tests want.
func makeCounter(t *testing.T, e *Engine, s *testStore) (*Concept, string) {
	ctx := context.Background()
	counter := e.NewConcept("Counter")
	count := NewProperty("count", Number)
	count.Default = float64(0)
	counter.AddProperty(count)
	if err := s.CreateBackingStore(ctx, counter, count); err != nil {
		t.Fatal(err)
	}
	id, err := counter.Create(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return counter, id
}

func exec(t *testing.T, e *Engine, c *Concept, spec interface{}, ectxs []*Context) []*Context {
	a, err := e.MakeAction(c, spec)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Exec(context.Background(), withSaved(ectxs))
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func countOf(t *testing.T, c *Concept, id string) float64 {
	p, _ := c.Property("count")
	v, err := p.GetValue(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	f, _ := asFloat(v)
	return f
}

func TestIncrementDecrement(t *testing.T) {
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	exec(t, e, counter, map[string]interface{}{"increment": "count"}, []*Context{NewContext(id)})
	exec(t, e, counter, map[string]interface{}{"increment": "count"}, []*Context{NewContext(id)})
	exec(t, e, counter, map[string]interface{}{
		"decrement": map[string]interface{}{"property": "count", "by": float64(0.5)},
	}, []*Context{NewContext(id)})

	if got := countOf(t, counter, id); got != 1.5 {
		t.Fatalf("got %v", got)
	}
}

func TestSetWithOperands(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	label := NewProperty("label", String)
	counter.AddProperty(label)
	if err := s.CreateBackingStore(ctx, counter, label); err != nil {
		t.Fatal(err)
	}

	// Literal, with a type cast.
	exec(t, e, counter, map[string]interface{}{
		"set": map[string]interface{}{"property": "count", "value": "42"},
	}, []*Context{NewContext(id)})
	if got := countOf(t, counter, id); got != 42 {
		t.Fatalf("got %v", got)
	}

	// Property operand.
	exec(t, e, counter, map[string]interface{}{
		"set": map[string]interface{}{"property": "label", "value": map[string]interface{}{"property": "count"}},
	}, []*Context{NewContext(id)})
	v, _ := label.GetValue(ctx, id)
	if v != "42" {
		t.Fatalf("got %#v", v)
	}

	// Variable operand, via the "value" default.
	ectx := NewContext(id)
	ectx.Vars.Extend("value", float64(7))
	exec(t, e, counter, map[string]interface{}{"set": "count"}, []*Context{ectx})
	if got := countOf(t, counter, id); got != 7 {
		t.Fatalf("got %v", got)
	}
}

func TestGetToggle(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	open := NewProperty("open", Boolean)
	counter.AddProperty(open)
	if err := s.CreateBackingStore(ctx, counter, open); err != nil {
		t.Fatal(err)
	}

	out := exec(t, e, counter, map[string]interface{}{
		"get": map[string]interface{}{"property": "count", "as": "n"},
	}, []*Context{NewContext(id)})
	if out[0].Vars["n"] != float64(0) {
		t.Fatalf("got %#v", out[0].Vars["n"])
	}

	exec(t, e, counter, map[string]interface{}{"toggle": "open"}, []*Context{NewContext(id)})
	v, _ := open.GetValue(ctx, id)
	if v != true {
		t.Fatalf("got %#v", v)
	}
}

func TestConcatSplitTransform(t *testing.T) {
	e := NewEngine()
	counter := e.NewConcept("Scratch")

	out := exec(t, e, counter, []interface{}{
		map[string]interface{}{
			"concat": map[string]interface{}{
				"strings": []interface{}{"hello", " ", map[string]interface{}{"variable": "who"}},
				"as":      "greeting",
			},
		},
		map[string]interface{}{
			"textTransform": map[string]interface{}{
				"value":     map[string]interface{}{"variable": "greeting"},
				"transform": "titlecase",
				"as":        "title",
			},
		},
		map[string]interface{}{
			"split": map[string]interface{}{
				"value": map[string]interface{}{"variable": "title"},
				"as":    "words",
			},
		},
	}, []*Context{{Target: "", Vars: NewVars().Extend("who", "world")}})

	if out[0].Vars["greeting"] != "hello world" {
		t.Fatalf("got %#v", out[0].Vars["greeting"])
	}
	if out[0].Vars["title"] != "Hello World" {
		t.Fatalf("got %#v", out[0].Vars["title"])
	}
	words, is := out[0].Vars["words"].([]interface{})
	if !is || len(words) != 2 || words[0] != "Hello" {
		t.Fatalf("got %#v", out[0].Vars["words"])
	}
}

func TestCalculate(t *testing.T) {
	e := NewEngine()
	scratch := e.NewConcept("Scratch")

	out := exec(t, e, scratch, map[string]interface{}{
		"calculate": map[string]interface{}{"formula": "n * 2 + 1", "as": "m"},
	}, []*Context{{Target: "", Vars: NewVars().Extend("n", float64(3))}})

	if out[0].Vars["m"] != float64(7) {
		t.Fatalf("got %#v", out[0].Vars["m"])
	}
}

func TestRandom(t *testing.T) {
	e := NewEngine()
	scratch := e.NewConcept("Scratch")

	for i := 0; i < 20; i++ {
		out := exec(t, e, scratch, map[string]interface{}{
			"random": map[string]interface{}{"min": float64(1), "max": float64(6), "integer": true, "as": "roll"},
		}, []*Context{NewContext("")})
		roll, ok := asFloat(out[0].Vars["roll"])
		if !ok || roll < 1 || 6 < roll || roll != float64(int(roll)) {
			t.Fatalf("got %#v", out[0].Vars["roll"])
		}
	}
}

func TestChainStopsAtExit(t *testing.T) {
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	a, err := e.MakeAction(counter, []interface{}{
		map[string]interface{}{"increment": "count"},
		"exit",
		map[string]interface{}{"increment": "count"},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Exec(context.Background(), withSaved([]*Context{NewContext(id)}))
	if !IsStopped(err) {
		t.Fatalf("wanted the stop to surface from the chain, got %v", err)
	}
	if got := countOf(t, counter, id); got != 1 {
		t.Fatalf("the step after exit ran: count %v", got)
	}
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	kind := NewProperty("kind", String)
	counter.AddProperty(kind)
	if err := s.CreateBackingStore(ctx, counter, kind); err != nil {
		t.Fatal(err)
	}
	if err := kind.SetValue(ctx, id, "taco"); err != nil {
		t.Fatal(err)
	}

	spec := map[string]interface{}{
		"switch": []interface{}{
			map[string]interface{}{
				"where": map[string]interface{}{"property": "kind", "equals": "queso"},
				"then":  map[string]interface{}{"increment": map[string]interface{}{"property": "count", "by": float64(10)}},
			},
			map[string]interface{}{
				"where": map[string]interface{}{"property": "kind", "equals": "taco"},
				"then":  map[string]interface{}{"increment": "count"},
			},
			map[string]interface{}{
				// No where: always matches, but the break above
				// should keep us from getting here.
				"then": map[string]interface{}{"increment": map[string]interface{}{"property": "count", "by": float64(100)}},
			},
		},
	}
	exec(t, e, counter, spec, []*Context{NewContext(id)})
	if got := countOf(t, counter, id); got != 1 {
		t.Fatalf("got %v", got)
	}

	// With break: false, evaluation continues.
	spec = map[string]interface{}{
		"switch": []interface{}{
			map[string]interface{}{
				"where": map[string]interface{}{"property": "kind", "equals": "taco"},
				"then":  map[string]interface{}{"increment": "count"},
				"break": false,
			},
			map[string]interface{}{
				"then": map[string]interface{}{"increment": "count"},
			},
		},
	}
	exec(t, e, counter, spec, []*Context{NewContext(id)})
	if got := countOf(t, counter, id); got != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	bump, err := e.MakeAction(counter, map[string]interface{}{"increment": "count"})
	if err != nil {
		t.Fatal(err)
	}
	counter.AddAction("bump", bump)

	exec(t, e, counter, map[string]interface{}{"run": "bump"}, []*Context{NewContext(id)})
	if got := countOf(t, counter, id); got != 1 {
		t.Fatalf("got %v", got)
	}

	// A nested stop is normal termination.
	counter.AddAction("stopper", ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		return ectxs, Stopped{}
	}))
	exec(t, e, counter, map[string]interface{}{"run": "stopper"}, []*Context{NewContext(id)})

	// A genuine error propagates by default ...
	boom := errors.New("boom")
	counter.AddAction("failer", ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		return nil, boom
	}))
	a, err := e.MakeAction(counter, map[string]interface{}{"run": "failer"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Exec(ctx, withSaved([]*Context{NewContext(id)})); err != boom {
		t.Fatalf("wanted boom, got %v", err)
	}

	// ... and is swallowed with stopOnError: false.
	exec(t, e, counter, map[string]interface{}{
		"run": map[string]interface{}{"action": "failer", "stopOnError": false},
	}, []*Context{NewContext(id)})
}

func TestRunClonesContexts(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	scratch := e.NewConcept("Scratch")

	// The nested action mutates its (cloned) context; with
	// stopOnError false plus a failure, the caller's context
	// must come back untouched.
	boom := errors.New("boom")
	scratch.AddAction("meddler", ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			ectx.Vars.Extend("salsa", "verde")
		}
		return nil, boom
	}))

	a, err := e.MakeAction(scratch, map[string]interface{}{
		"run": map[string]interface{}{"action": "meddler", "stopOnError": false},
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Exec(ctx, withSaved([]*Context{NewContext("")}))
	if err != nil {
		t.Fatal(err)
	}
	if _, have := out[0].Vars["salsa"]; have {
		t.Fatal("the nested mutation leaked out")
	}
}

func TestRunActionHooks(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	counter, id := makeCounter(t, e, s)

	bump, err := e.MakeAction(counter, map[string]interface{}{"increment": "count"})
	if err != nil {
		t.Fatal(err)
	}
	counter.AddAction("bump", bump)

	var whens []string
	e.Bus().Subscribe(EventAction, func(ctx context.Context, ev *Event) error {
		if ev.Action == "bump" {
			whens = append(whens, ev.When)
		}
		return nil
	})

	if _, err := counter.RunAction(ctx, "bump", []*Context{NewContext(id)}); err != nil {
		t.Fatal(err)
	}
	if len(whens) != 2 || whens[0] != "before" || whens[1] != "after" {
		t.Fatalf("got %v", whens)
	}
}

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

// makeFullNamePerson builds the classic derived-property setup:
// fullName = first + " " + last.
func makeFullNamePerson(t *testing.T, e *Engine, s *testStore) (*Concept, *Property) {
	ctx := context.Background()
	person := e.NewConcept("Person")

	for _, name := range []string{"first", "last"} {
		p := NewProperty(name, String)
		person.AddProperty(p)
		if err := s.CreateBackingStore(ctx, person, p); err != nil {
			t.Fatal(err)
		}
	}

	chain, err := e.MakeChain(person, []interface{}{
		map[string]interface{}{
			"concat": map[string]interface{}{
				"strings": []interface{}{
					map[string]interface{}{"property": "first"},
					" ",
					map[string]interface{}{"property": "last"},
				},
				"as": "fullName",
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	full := NewProperty("fullName", String)
	full.Derive = &Derivation{
		Properties: []string{"first", "last"},
		Transform:  chain,
	}
	person.AddProperty(full)
	if err := full.FinishSetup(); err != nil {
		t.Fatal(err)
	}

	return person, full
}

func TestDerivedProperty(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	person, full := makeFullNamePerson(t, e, s)

	id, err := person.Create(ctx, "", map[string]interface{}{
		"first": "Ada", "last": "Lovelace",
	})
	if err != nil {
		t.Fatal(err)
	}

	v, err := full.GetValue(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if v != "Ada Lovelace" {
		t.Fatalf("got %#v", v)
	}
}

func TestDerivedRecomputesOnUpstreamChange(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	person, full := makeFullNamePerson(t, e, s)

	id, err := person.Create(ctx, "", map[string]interface{}{
		"first": "Ada", "last": "Lovelace",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Prime the cache.
	if _, err := full.GetValue(ctx, id); err != nil {
		t.Fatal(err)
	}

	var got []*Update
	full.OnUpdated(func(ctx context.Context, u *Update) {
		got = append(got, u)
	})

	first, _ := person.Property("first")
	if err := first.SetValue(ctx, id, "Augusta"); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("wanted 1 recomputation notice, got %d", len(got))
	}
	if got[0].Value != "Augusta Lovelace" || got[0].Old != "Ada Lovelace" {
		t.Fatalf("got %#v -> %#v", got[0].Old, got[0].Value)
	}
	// Derived updates are not user-facing state changes.
	if !got[0].SkipStateChange {
		t.Fatal("derived update should suppress stateChanged")
	}

	// Writing the same value again must not re-notify.
	if err := first.SetValue(ctx, id, "Augusta"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("unchanged recomputation notified: %d", len(got))
	}
}

func TestDerivedHasNoSetter(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	person, full := makeFullNamePerson(t, e, s)

	id, err := person.Create(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := full.SetValue(ctx, id, "nope"); err == nil {
		t.Fatal("writing a derived property should fail")
	}

	// Even with a backing store attached, a derived property
	// refuses direct writes.
	if err := s.CreateBackingStore(ctx, person, full); err != nil {
		t.Fatal(err)
	}
	err = full.SetValue(ctx, id, "nope")
	if err == nil {
		t.Fatal("a mapped derived property still has no setter")
	}
	var ro *DerivedReadOnly
	if !errors.As(err, &ro) {
		t.Fatalf("wanted DerivedReadOnly, got %T", err)
	}
}

func TestJoinDerived(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	person, _ := makeFullNamePerson(t, e, s)

	employee := e.NewConcept("Employee")
	if err := employee.Join(ctx, person); err != nil {
		t.Fatal(err)
	}

	id, err := employee.Create(ctx, "", map[string]interface{}{
		"first": "Grace", "last": "Hopper",
	})
	if err != nil {
		t.Fatal(err)
	}

	full, have := employee.Property("fullName")
	if !have {
		t.Fatal("no copied fullName")
	}
	// Prime the cache.
	v, err := full.GetValue(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if v != "Grace Hopper" {
		t.Fatalf("got %#v", v)
	}

	// The copy's upstream listeners were wired by Join, so an
	// upstream change recomputes without any further setup.
	var got []*Update
	full.OnUpdated(func(ctx context.Context, u *Update) {
		got = append(got, u)
	})
	first, _ := employee.Property("first")
	if err := first.SetValue(ctx, id, "Amazing"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("wanted 1 recomputation notice, got %d", len(got))
	}
	if got[0].Value != "Amazing Hopper" {
		t.Fatalf("got %#v", got[0].Value)
	}
}

func TestDerivedNoOutput(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	person := e.NewConcept("Person")

	chain, err := e.MakeChain(person, []interface{}{"exit"})
	if err != nil {
		t.Fatal(err)
	}
	p := NewProperty("ghost", String)
	p.Derive = &Derivation{Transform: chain}
	person.AddProperty(p)

	if _, err := p.GetValue(ctx, "whoever"); err == nil {
		t.Fatal("a derivation that stops before producing output should fail")
	} else if _, is := err.(*NoDerivedOutput); !is {
		t.Fatalf("wanted NoDerivedOutput, got %T", err)
	}
}

func TestDerivedOfDerived(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")
	person, _ := makeFullNamePerson(t, e, s)

	chain, err := e.MakeChain(person, []interface{}{
		map[string]interface{}{
			"textTransform": map[string]interface{}{
				"value":     map[string]interface{}{"property": "fullName"},
				"transform": "uppercase",
				"as":        "shouted",
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	shouted := NewProperty("shouted", String)
	shouted.Derive = &Derivation{
		Properties: []string{"fullName"},
		Transform:  chain,
	}
	person.AddProperty(shouted)
	if err := shouted.FinishSetup(); err != nil {
		t.Fatal(err)
	}

	id, err := person.Create(ctx, "", map[string]interface{}{
		"first": "Ada", "last": "Lovelace",
	})
	if err != nil {
		t.Fatal(err)
	}

	v, err := shouted.GetValue(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if v != "ADA LOVELACE" {
		t.Fatalf("got %#v", v)
	}

	// A chained upstream change flows through both derivations.
	var got []*Update
	shouted.OnUpdated(func(ctx context.Context, u *Update) {
		got = append(got, u)
	})
	first, _ := person.Property("first")
	if err := first.SetValue(ctx, id, "Augusta"); err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("no propagation through the derived chain")
	}
	if got[len(got)-1].Value != "AUGUSTA LOVELACE" {
		t.Fatalf("got %#v", got[len(got)-1].Value)
	}
}

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
	"regexp"
	"testing"
)

func f64(f float64) *float64 {
	return &f
}

func TestValidate(t *testing.T) {
	queso := NewProperty("queso", Number)
	queso.Min = f64(0)
	queso.Max = f64(10)

	salsa := NewProperty("salsa", String)
	salsa.Enum = []string{"mild", "hot"}

	name := NewProperty("name", String)
	name.Matches = regexp.MustCompile("^[a-z]+$")
	name.MatchesSource = "^[a-z]+$"

	tacos := NewProperty("tacos", Array)
	tacos.Max = f64(2)

	open := NewProperty("open", Boolean)

	for i, tc := range []struct {
		p     *Property
		value interface{}
		ok    bool
	}{
		{queso, float64(5), true},
		{queso, 5, true},
		{queso, nil, true},
		{queso, float64(-1), false},
		{queso, float64(11), false},
		{queso, "much", false},
		{salsa, "hot", true},
		{salsa, "medium", false},
		{salsa, 3, false},
		{name, "chips", true},
		{name, "Chips", false},
		{tacos, []interface{}{"a", "b"}, true},
		{tacos, []interface{}{"a", "b", "c"}, false},
		{tacos, "a", false},
		{open, true, true},
		{open, "true", false},
	} {
		err := tc.p.Validate(tc.value)
		if tc.ok && err != nil {
			t.Fatalf("%d: %s should accept %#v: %v", i, tc.p.Name, tc.value, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%d: %s should reject %#v", i, tc.p.Name, tc.value)
		}
	}
}

func TestValidateConceptRef(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")

	door := e.NewConcept("Door")
	lock := e.NewConcept("Lock")
	np := NewProperty("nearest", ConceptType)
	np.Of = "Door"
	lock.AddProperty(np)
	if err := s.CreateBackingStore(ctx, lock, np); err != nil {
		t.Fatal(err)
	}

	doorID, err := door.Create(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	lockID, err := lock.Create(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := np.SetValue(ctx, lockID, doorID); err != nil {
		t.Fatal(err)
	}
	if err := np.SetValue(ctx, lockID, lockID); err == nil {
		t.Fatal("a Lock is not a Door")
	}
	// Unregistered ids are tolerated (announcement order).
	if err := np.SetValue(ctx, lockID, "somewhere-else"); err != nil {
		t.Fatal(err)
	}
	// nil clears.
	if err := np.SetValue(ctx, lockID, nil); err != nil {
		t.Fatal(err)
	}
}

func TestPropertyRoundtrip(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")

	c := e.NewConcept("Snack")
	p := NewProperty("queso", Number)
	p.Default = float64(1)
	c.AddProperty(p)
	if err := s.CreateBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}

	// Unset: the default.
	v, err := p.GetValue(ctx, "bowl")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(1) {
		t.Fatalf("wanted the default, got %#v", v)
	}

	if err := p.SetValue(ctx, "bowl", float64(3)); err != nil {
		t.Fatal(err)
	}
	v, err = p.GetValue(ctx, "bowl")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(3) {
		t.Fatalf("got %#v", v)
	}

	// Another instance is still at the default.
	v, err = p.GetValue(ctx, "cup")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(1) {
		t.Fatalf("got %#v", v)
	}
}

func TestPropertyUnmapped(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()

	c := e.NewConcept("Snack")
	p := NewProperty("queso", Number)
	c.AddProperty(p)

	if _, err := p.GetValue(ctx, "bowl"); err == nil {
		t.Fatal("read of an unmapped property should fail")
	} else if _, is := err.(*Unmapped); !is {
		t.Fatalf("wanted Unmapped, got %T", err)
	}

	if err := p.SetValue(ctx, "bowl", float64(1)); err == nil {
		t.Fatal("write of an unmapped property should fail")
	} else if _, is := err.(*Unmapped); !is {
		t.Fatalf("wanted Unmapped, got %T", err)
	}
}

func TestProviderAttachDetach(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")

	c := e.NewConcept("Snack")
	p := NewProperty("queso", Number)
	c.AddProperty(p)

	if err := s.CreateBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := s.CreateBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}
	if n := len(p.Providers()); n != 1 {
		t.Fatalf("wanted 1 provider, got %d", n)
	}

	if err := s.RemoveBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}
	// Not idempotent.
	if err := s.RemoveBackingStore(ctx, c, p); err == nil {
		t.Fatal("second detach should fail")
	}
}

func TestOnUpdated(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")

	c := e.NewConcept("Snack")
	p := NewProperty("queso", Number)
	c.AddProperty(p)
	if err := s.CreateBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}

	got := make([]*Update, 0, 2)
	cancel := p.OnUpdated(func(ctx context.Context, u *Update) {
		got = append(got, u)
	})

	if err := p.SetValue(ctx, "bowl", float64(1)); err != nil {
		t.Fatal(err)
	}
	if err := p.SetValue(ctx, "bowl", float64(2)); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := p.SetValue(ctx, "bowl", float64(3)); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("wanted 2 updates, got %d", len(got))
	}
	if got[1].Old != float64(1) || got[1].Value != float64(2) {
		t.Fatalf("got %#v -> %#v", got[1].Old, got[1].Value)
	}
}

func TestStateChangedEmission(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	s := newTestStore("mem")

	c := e.NewConcept("Snack")
	p := NewProperty("queso", Number)
	c.AddProperty(p)
	if err := s.CreateBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}

	events := 0
	e.Bus().Subscribe(EventStateChanged, func(ctx context.Context, ev *Event) error {
		events++
		if ev.Property != "queso" {
			t.Fatalf("got property %s", ev.Property)
		}
		return nil
	})

	if err := p.SetValue(ctx, "bowl", float64(1)); err != nil {
		t.Fatal(err)
	}
	if err := p.SetValueQuietly(ctx, "bowl", float64(2)); err != nil {
		t.Fatal(err)
	}

	if events != 1 {
		t.Fatalf("wanted 1 stateChanged, got %d", events)
	}
}

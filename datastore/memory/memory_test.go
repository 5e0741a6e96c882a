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

package memory

import (
	"context"
	"testing"

	"github.com/Comcast/concepts/core"
	"github.com/Comcast/concepts/datastore"
)

func TestRegistry(t *testing.T) {
	r := datastore.NewRegistry()
	Register(r)

	e := core.NewEngine()
	d, err := r.New("memory", "main", nil, e)
	if err != nil {
		t.Fatal(err)
	}
	if d.Name() != "main" {
		t.Fatalf("got %s", d.Name())
	}

	if _, err = r.New("papier", "main", nil, e); err == nil {
		t.Fatal("unknown kind should fail")
	}
}

func TestRoundtrip(t *testing.T) {
	ctx := context.Background()
	e := core.NewEngine()
	s := NewStore("main")
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}

	c := e.NewConcept("Counter")
	p := core.NewProperty("count", core.Number)
	p.Default = float64(0)
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
	if props := s.MappedProperties(c); len(props) != 1 || props[0] != "count" {
		t.Fatalf("got %v", props)
	}

	// Unset: the default.
	v, err := p.GetValue(ctx, "tally")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(0) {
		t.Fatalf("got %#v", v)
	}

	if err := p.SetValue(ctx, "tally", float64(5)); err != nil {
		t.Fatal(err)
	}
	v, err = p.GetValue(ctx, "tally")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(5) {
		t.Fatalf("got %#v", v)
	}

	if err := s.RemoveBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}
	// Detach is not idempotent.
	if err := s.RemoveBackingStore(ctx, c, p); err == nil {
		t.Fatal("second detach should fail")
	}
	// And now the property is unmapped.
	if _, err := p.GetValue(ctx, "tally"); err == nil {
		t.Fatal("read after unmap should fail")
	}
}

func TestDestroyDropsData(t *testing.T) {
	ctx := context.Background()
	e := core.NewEngine()
	s := NewStore("main")

	c := e.NewConcept("Counter")
	p := core.NewProperty("count", core.Number)
	p.Default = float64(0)
	c.AddProperty(p)
	if err := s.CreateBackingStore(ctx, c, p); err != nil {
		t.Fatal(err)
	}

	if err := p.SetValue(ctx, "tally", float64(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatal(err)
	}

	// The provider is still attached; the data is gone, so reads
	// fall back to the default.
	v, err := p.GetValue(ctx, "tally")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(0) {
		t.Fatalf("got %#v", v)
	}
}

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
	"sync"
)

// Action is a unit of execution over an ordered list of Contexts.
//
// An Action returns the (possibly replaced) list of Contexts.  A
// Stopped error is intentional early termination; any other error is
// a genuine failure.
type Action interface {
	Exec(ctx context.Context, ectxs []*Context) ([]*Context, error)
}

// ActionFunc wraps a Go function as an Action.
type ActionFunc func(ctx context.Context, ectxs []*Context) ([]*Context, error)

// Exec runs the function.
func (f ActionFunc) Exec(ctx context.Context, ectxs []*Context) ([]*Context, error) {
	return f(ctx, ectxs)
}

// Ctor builds a primitive action from its (raw, unnormalized)
// options.  The engine and the locally owning concept are available
// for name lookups at execution time.
type Ctor func(e *Engine, local *Concept, opts interface{}) (Action, error)

// Actions is a registry of primitive action constructors.  An Engine
// owns one; see StandardActions.
type Actions struct {
	mu    sync.Mutex
	ctors map[string]Ctor
}

// NewActions makes an empty registry.
func NewActions() *Actions {
	return &Actions{
		ctors: make(map[string]Ctor, 32),
	}
}

// Register adds (or replaces) a constructor.
func (as *Actions) Register(name string, ctor Ctor) {
	as.mu.Lock()
	as.ctors[name] = ctor
	as.mu.Unlock()
}

// Ctor looks up a constructor.
func (as *Actions) Ctor(name string) (Ctor, bool) {
	as.mu.Lock()
	ctor, have := as.ctors[name]
	as.mu.Unlock()
	return ctor, have
}

// MakeAction turns an action specification into an executable Action.
//
// A specification is a primitive name ("exit"), a one-entry map from
// a primitive name to its options ({"increment": "count"}), or an
// array of specifications (an implicit sequential chain).
func (e *Engine) MakeAction(local *Concept, spec interface{}) (Action, error) {
	switch v := spec.(type) {
	case string:
		return e.makePrimitive(local, v, nil)

	case []interface{}:
		return e.MakeChain(local, v)

	case map[string]interface{}:
		if len(v) != 1 {
			return nil, &BadOptions{Kind: "action", Reason: "want exactly one primitive name key, got " + JS(spec)}
		}
		for name, opts := range v {
			return e.makePrimitive(local, name, opts)
		}
	}
	return nil, &BadOptions{Kind: "action", Reason: "unsupported specification " + JS(spec)}
}

// MakeChain builds a Chain from a list of action specifications.
func (e *Engine) MakeChain(local *Concept, specs []interface{}) (*Chain, error) {
	ch := NewChain()
	for _, spec := range specs {
		a, err := e.MakeAction(local, spec)
		if err != nil {
			return nil, err
		}
		ch.Append(a)
	}
	return ch, nil
}

func (e *Engine) makePrimitive(local *Concept, name string, opts interface{}) (Action, error) {
	ctor, have := e.Actions().Ctor(name)
	if !have {
		return nil, &UnknownAction{Name: name}
	}
	return ctor(e, local, opts)
}

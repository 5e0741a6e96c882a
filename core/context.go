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

// Context describes the entity an action is currently working on.
//
// Target is the id of the current instance (possibly empty), and Vars
// carries the ambient variables that actions read and write.  Actions
// always operate on a list of Contexts; the list usually has length
// one for concept-scoped events, but the bus is list-based to allow
// bulk notification.
type Context struct {
	Target string `json:"target,omitempty" yaml:",omitempty"`
	Vars   Vars   `json:"vars,omitempty" yaml:",omitempty"`

	// Saved is a side channel shared by every Context in one chain
	// invocation.  "run" deep-clones it along with everything else.
	Saved *Saved `json:"-" yaml:"-"`
}

// Saved is the chain-wide variable side channel.
type Saved struct {
	Vars Vars
}

// NewSaved makes an empty side channel.
func NewSaved() *Saved {
	return &Saved{Vars: NewVars()}
}

// NewContext makes a Context for the given target with fresh
// variables and a fresh side channel.
func NewContext(target string) *Context {
	return &Context{
		Target: target,
		Vars:   NewVars(),
		Saved:  NewSaved(),
	}
}

// Copy deep-copies the Context's variables but shares the Saved side
// channel.  This is the copy behaviour dispatch uses.
func (c *Context) Copy() *Context {
	return &Context{
		Target: c.Target,
		Vars:   c.Vars.Copy(),
		Saved:  c.Saved,
	}
}

// CopyContexts copies each Context (sharing each one's Saved).
func CopyContexts(ectxs []*Context) []*Context {
	acc := make([]*Context, len(ectxs))
	for i, ectx := range ectxs {
		acc[i] = ectx.Copy()
	}
	return acc
}

// CloneContexts deep-clones the Contexts including the Saved side
// channel, which remains shared among the clones (but not with the
// originals).  "run" uses this so that a nested failure cannot
// corrupt the caller's contexts.
func CloneContexts(ectxs []*Context) []*Context {
	saveds := make(map[*Saved]*Saved, 1)
	acc := make([]*Context, len(ectxs))
	for i, ectx := range ectxs {
		clone := ectx.Copy()
		if ectx.Saved != nil {
			fresh, have := saveds[ectx.Saved]
			if !have {
				fresh = &Saved{Vars: ectx.Saved.Vars.Copy()}
				saveds[ectx.Saved] = fresh
			}
			clone.Saved = fresh
		}
		acc[i] = clone
	}
	return acc
}

// withSaved gives any Context that lacks a side channel a shared
// fresh one.  Chain boundaries call this before executing.
func withSaved(ectxs []*Context) []*Context {
	var shared *Saved
	for _, ectx := range ectxs {
		if ectx.Saved != nil {
			shared = ectx.Saved
			break
		}
	}
	if shared == nil {
		shared = NewSaved()
	}
	for _, ectx := range ectxs {
		if ectx.Saved == nil {
			ectx.Saved = shared
		}
		if ectx.Vars == nil {
			ectx.Vars = NewVars()
		}
	}
	return ectxs
}

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

// Definition documents accept strings, maps, and arrays
// interchangeably in lots of places.  Everything here turns that
// shorthand into one canonical form before any validation or
// execution happens, so the primitives themselves never see raw
// document data.

import (
	"context"
)

type operandKind int

const (
	opLiteral operandKind = iota
	opProperty
	opVariable
)

// Operand is a value position in a primitive's options: a literal, a
// {"property": name} reference, or a {"variable": name} reference.
type Operand struct {
	kind    operandKind
	literal interface{}
	name    string
}

// LiteralOperand wraps a literal value.
func LiteralOperand(x interface{}) *Operand {
	return &Operand{kind: opLiteral, literal: x}
}

// PropertyOperand references a property by (possibly dotted) name.
func PropertyOperand(name string) *Operand {
	return &Operand{kind: opProperty, name: name}
}

// VariableOperand references a context variable.
func VariableOperand(name string) *Operand {
	return &Operand{kind: opVariable, name: name}
}

// normOperand interprets a raw option value as an Operand.
func normOperand(x interface{}) (*Operand, error) {
	m, is := asOptMap(x)
	if !is {
		return LiteralOperand(x), nil
	}
	if len(m) == 1 {
		if name, have := m["property"]; have {
			s, is := name.(string)
			if !is {
				return nil, &BadOptions{Kind: "operand", Reason: "property name should be a string"}
			}
			return PropertyOperand(s), nil
		}
		if name, have := m["variable"]; have {
			s, is := name.(string)
			if !is {
				return nil, &BadOptions{Kind: "operand", Reason: "variable name should be a string"}
			}
			return VariableOperand(s), nil
		}
	}
	return LiteralOperand(x), nil
}

// Resolve produces the operand's value for the given context.
func (o *Operand) Resolve(ctx context.Context, e *Engine, local *Concept, ectx *Context) (interface{}, error) {
	switch o.kind {
	case opProperty:
		p, err := e.LookupProperty(ectx.Target, local, o.name)
		if err != nil {
			return nil, err
		}
		return p.GetValue(ctx, ectx.Target)
	case opVariable:
		if v, have := ectx.Vars[o.name]; have {
			return v, nil
		}
		if ectx.Saved != nil {
			if v, have := ectx.Saved.Vars[o.name]; have {
				return v, nil
			}
		}
		return nil, nil
	}
	return o.literal, nil
}

// asOptMap accepts the string-keyed maps that canonicalized documents
// produce.
func asOptMap(x interface{}) (map[string]interface{}, bool) {
	m, is := x.(map[string]interface{})
	return m, is
}

// optString reads a string-valued option.
func optString(m map[string]interface{}, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, have := m[key]
	if !have {
		return "", false
	}
	s, is := v.(string)
	return s, is
}

// optBool reads a bool-valued option with a default.
func optBool(m map[string]interface{}, key string, def bool) bool {
	if m == nil {
		return def
	}
	if v, have := m[key]; have {
		if b, is := v.(bool); is {
			return b
		}
	}
	return def
}

// optFloat reads a numeric option with a default.
func optFloat(m map[string]interface{}, key string, def float64) float64 {
	if m == nil {
		return def
	}
	if v, have := m[key]; have {
		if f, ok := asFloat(v); ok {
			return f
		}
	}
	return def
}

// optOperand reads an operand-valued option with a default.
func optOperand(m map[string]interface{}, key string, def *Operand) (*Operand, error) {
	if m == nil {
		return def, nil
	}
	v, have := m[key]
	if !have {
		return def, nil
	}
	return normOperand(v)
}

// optOperands reads a list of operands.
func optOperands(m map[string]interface{}, key string) ([]*Operand, error) {
	if m == nil {
		return nil, nil
	}
	v, have := m[key]
	if !have {
		return nil, nil
	}
	vs, is := v.([]interface{})
	if !is {
		return nil, &BadOptions{Kind: key, Reason: "want an array"}
	}
	acc := make([]*Operand, len(vs))
	for i, x := range vs {
		o, err := normOperand(x)
		if err != nil {
			return nil, err
		}
		acc[i] = o
	}
	return acc, nil
}

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
	"strings"
)

// StandardActions returns a primitive-action registry with the full
// standard library installed.
func StandardActions() *Actions {
	as := NewActions()
	as.Register("set", ctorSet)
	as.Register("get", ctorGet)
	as.Register("toggle", ctorToggle)
	as.Register("increment", ctorIncrement)
	as.Register("decrement", ctorDecrement)
	as.Register("concat", ctorConcat)
	as.Register("split", ctorSplit)
	as.Register("textTransform", ctorTextTransform)
	as.Register("calculate", ctorCalculate)
	as.Register("random", ctorRandom)
	as.Register("wait", ctorWait)
	as.Register("run", ctorRun)
	as.Register("switch", ctorSwitch)
	as.Register("exit", ctorExit)
	as.Register("debug", ctorDebug)
	as.Register("debugContext", ctorDebugContext)
	return as
}

// primOptions accepts the shorthand every property-flavored primitive
// shares: a bare string is the principal property name.
func primOptions(kind string, opts interface{}) (property string, m map[string]interface{}, err error) {
	switch v := opts.(type) {
	case nil:
		return "", nil, nil
	case string:
		return v, nil, nil
	case map[string]interface{}:
		property, _ = optString(v, "property")
		return property, v, nil
	}
	return "", nil, &BadOptions{Kind: kind, Reason: "unsupported options " + JS(opts)}
}

// ctorSet builds the "set" primitive.
//
//	{"set": {"property": "count", "value": 3}}
//	{"set": {"property": "b", "value": {"property": "a"}}}
//	{"set": "count"}  // value comes from the "value" variable
func ctorSet(e *Engine, local *Concept, opts interface{}) (Action, error) {
	property, m, err := primOptions("set", opts)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return nil, &BadOptions{Kind: "set", Reason: `missing "property"`}
	}
	value, err := optOperand(m, "value", VariableOperand("value"))
	if err != nil {
		return nil, err
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			p, err := e.LookupProperty(ectx.Target, local, property)
			if err != nil {
				return nil, err
			}
			v, err := value.Resolve(ctx, e, local, ectx)
			if err != nil {
				return nil, err
			}
			if v != nil {
				v = p.TypeCast(v)
			}
			if err := p.SetValue(ctx, ectx.Target, v); err != nil {
				return nil, err
			}
		}
		return ectxs, nil
	}), nil
}

// ctorGet builds the "get" primitive: read a property into a
// variable.
//
//	{"get": {"property": "count", "as": "n"}}
//	{"get": "count"}  // as: "count"
func ctorGet(e *Engine, local *Concept, opts interface{}) (Action, error) {
	property, m, err := primOptions("get", opts)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return nil, &BadOptions{Kind: "get", Reason: `missing "property"`}
	}
	as, _ := optString(m, "as")
	if as == "" {
		as = property
		if i := strings.LastIndex(as, "."); 0 <= i {
			as = as[i+1:]
		}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			p, err := e.LookupProperty(ectx.Target, local, property)
			if err != nil {
				return nil, err
			}
			v, err := p.GetValue(ctx, ectx.Target)
			if err != nil {
				return nil, err
			}
			ectx.Vars.Extend(as, v)
		}
		return ectxs, nil
	}), nil
}

// ctorToggle builds the "toggle" primitive: negate a boolean
// property.
//
//	{"toggle": "enabled"}
func ctorToggle(e *Engine, local *Concept, opts interface{}) (Action, error) {
	property, _, err := primOptions("toggle", opts)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return nil, &BadOptions{Kind: "toggle", Reason: `missing "property"`}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			p, err := e.LookupProperty(ectx.Target, local, property)
			if err != nil {
				return nil, err
			}
			v, err := p.GetValue(ctx, ectx.Target)
			if err != nil {
				return nil, err
			}
			b, _ := TypeCast(v, Boolean).(bool)
			if err := p.SetValue(ctx, ectx.Target, !b); err != nil {
				return nil, err
			}
		}
		return ectxs, nil
	}), nil
}

func ctorIncrement(e *Engine, local *Concept, opts interface{}) (Action, error) {
	return stepCtor("increment", 1, e, local, opts)
}

func ctorDecrement(e *Engine, local *Concept, opts interface{}) (Action, error) {
	return stepCtor("decrement", -1, e, local, opts)
}

// stepCtor builds "increment" and "decrement".
//
//	{"increment": "count"}
//	{"decrement": {"property": "count", "by": 5}}
//
// Not atomic against concurrent writers; see the concurrency notes.
func stepCtor(kind string, sign float64, e *Engine, local *Concept, opts interface{}) (Action, error) {
	property, m, err := primOptions(kind, opts)
	if err != nil {
		return nil, err
	}
	if property == "" {
		return nil, &BadOptions{Kind: kind, Reason: `missing "property"`}
	}
	by := optFloat(m, "by", 1)

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			p, err := e.LookupProperty(ectx.Target, local, property)
			if err != nil {
				return nil, err
			}
			v, err := p.GetValue(ctx, ectx.Target)
			if err != nil {
				return nil, err
			}
			f, _ := asFloat(TypeCast(v, Number))
			if err := p.SetValue(ctx, ectx.Target, f+sign*by); err != nil {
				return nil, err
			}
		}
		return ectxs, nil
	}), nil
}

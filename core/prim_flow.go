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
	"regexp"
)

// ctorRun builds the "run" primitive: invoke another action by name.
//
//	{"run": "resetCounters"}
//	{"run": {"action": "resetCounters", "stopOnError": false}}
//
// The invoked action gets a deep clone of the current contexts
// (saved-variable side channel included), so a nested failure can't
// corrupt the caller's contexts.  A Stopped from the invoked action
// is normal termination.  With stopOnError false, genuine errors are
// swallowed too, and the caller's original contexts come back
// unmodified.
func ctorRun(e *Engine, local *Concept, opts interface{}) (Action, error) {
	var (
		name        string
		stopOnError = true
	)
	switch v := opts.(type) {
	case string:
		name = v
	case map[string]interface{}:
		name, _ = optString(v, "action")
		stopOnError = optBool(v, "stopOnError", true)
	}
	if name == "" {
		return nil, &BadOptions{Kind: "run", Reason: `missing "action"`}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		target := ""
		if 0 < len(ectxs) {
			target = ectxs[0].Target
		}
		a, _, err := e.LookupAction(target, local, name)
		if err != nil {
			return nil, err
		}

		cloned := CloneContexts(ectxs)
		out, err := a.Exec(ctx, withSaved(cloned))
		if err != nil {
			if IsStopped(err) {
				return ectxs, nil
			}
			if !stopOnError {
				if e.Debug {
					log.Printf(`run "%s" swallowed: %v`, name, err)
				}
				return ectxs, nil
			}
			return nil, err
		}
		return out, nil
	}), nil
}

// switchCase is one normalized branch of a "switch".
type switchCase struct {
	where *whereFilter
	then  Action
	brk   bool
}

// ctorSwitch builds the "switch" primitive.
//
//	{"switch": [{"where": {"property": "kind", "equals": "door"},
//	             "then": {"run": "announceDoor"}},
//	            {"then": {"run": "announceOther"}}]}
//
// Branches are evaluated per context, independently, in order.  A
// branch with no "where" always matches.  After a matching branch
// runs, evaluation stops unless the branch set "break": false.
func ctorSwitch(e *Engine, local *Concept, opts interface{}) (Action, error) {
	var raw []interface{}
	switch v := opts.(type) {
	case []interface{}:
		raw = v
	case map[string]interface{}:
		cs, _ := v["cases"].([]interface{})
		raw = cs
	}
	if len(raw) == 0 {
		return nil, &BadOptions{Kind: "switch", Reason: "want a non-empty list of cases"}
	}

	cases := make([]*switchCase, 0, len(raw))
	for _, x := range raw {
		m, is := asOptMap(x)
		if !is {
			return nil, &BadOptions{Kind: "switch", Reason: "each case should be a map"}
		}
		sc := &switchCase{brk: optBool(m, "break", true)}

		if w, have := m["where"]; have {
			filter, err := normWhere(w)
			if err != nil {
				return nil, err
			}
			sc.where = filter
		}
		if spec, have := m["then"]; have {
			a, err := e.MakeAction(local, spec)
			if err != nil {
				return nil, err
			}
			sc.then = a
		}
		cases = append(cases, sc)
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		acc := make([]*Context, 0, len(ectxs))
		for _, ectx := range ectxs {
			current := ectx
			for _, sc := range cases {
				if sc.where != nil {
					match, err := sc.where.eval(ctx, e, local, current)
					if err != nil {
						return nil, err
					}
					if !match {
						continue
					}
				}
				if sc.then != nil {
					out, err := sc.then.Exec(ctx, []*Context{current})
					if err != nil {
						return nil, err
					}
					if 0 < len(out) {
						current = out[0]
					}
				}
				if sc.brk {
					break
				}
			}
			acc = append(acc, current)
		}
		return acc, nil
	}), nil
}

// whereFilter is a normalized property-comparison filter.
type whereFilter struct {
	property    string
	equals      *Operand
	notEquals   *Operand
	greaterThan *float64
	lessThan    *float64
	matches     *regexp.Regexp
}

func normWhere(x interface{}) (*whereFilter, error) {
	m, is := asOptMap(x)
	if !is {
		return nil, &BadOptions{Kind: "where", Reason: "want a map"}
	}
	property, _ := optString(m, "property")
	if property == "" {
		return nil, &BadOptions{Kind: "where", Reason: `missing "property"`}
	}
	w := &whereFilter{property: property}

	if v, have := m["equals"]; have {
		o, err := normOperand(v)
		if err != nil {
			return nil, err
		}
		w.equals = o
	}
	if v, have := m["notEquals"]; have {
		o, err := normOperand(v)
		if err != nil {
			return nil, err
		}
		w.notEquals = o
	}
	if v, have := m["greaterThan"]; have {
		f, ok := asFloat(v)
		if !ok {
			return nil, &BadOptions{Kind: "where", Reason: "greaterThan should be a number"}
		}
		w.greaterThan = &f
	}
	if v, have := m["lessThan"]; have {
		f, ok := asFloat(v)
		if !ok {
			return nil, &BadOptions{Kind: "where", Reason: "lessThan should be a number"}
		}
		w.lessThan = &f
	}
	if s, have := optString(m, "matches"); have && s != "" {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, &BadOptions{Kind: "where", Reason: err.Error()}
		}
		w.matches = re
	}
	return w, nil
}

func (w *whereFilter) eval(ctx context.Context, e *Engine, local *Concept, ectx *Context) (bool, error) {
	p, err := e.LookupProperty(ectx.Target, local, w.property)
	if err != nil {
		return false, err
	}
	v, err := p.GetValue(ctx, ectx.Target)
	if err != nil {
		return false, err
	}

	if w.equals != nil {
		want, err := w.equals.Resolve(ctx, e, local, ectx)
		if err != nil {
			return false, err
		}
		if !IsSame(v, want) {
			return false, nil
		}
	}
	if w.notEquals != nil {
		want, err := w.notEquals.Resolve(ctx, e, local, ectx)
		if err != nil {
			return false, err
		}
		if IsSame(v, want) {
			return false, nil
		}
	}
	if w.greaterThan != nil {
		f, ok := asFloat(v)
		if !ok || f <= *w.greaterThan {
			return false, nil
		}
	}
	if w.lessThan != nil {
		f, ok := asFloat(v)
		if !ok || *w.lessThan <= f {
			return false, nil
		}
	}
	if w.matches != nil {
		s, is := v.(string)
		if !is || !w.matches.MatchString(s) {
			return false, nil
		}
	}
	return true, nil
}

// ctorExit builds the "exit" primitive: raise the intentional stop
// signal.
func ctorExit(e *Engine, local *Concept, opts interface{}) (Action, error) {
	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		return ectxs, Stopped{}
	}), nil
}

// ctorDebug builds the "debug" primitive: log a message.
//
//	{"debug": "made it here"}
//	{"debug": {"message": {"variable": "fullName"}}}
func ctorDebug(e *Engine, local *Concept, opts interface{}) (Action, error) {
	var message *Operand
	switch v := opts.(type) {
	case string:
		message = LiteralOperand(v)
	case map[string]interface{}:
		o, err := optOperand(v, "message", nil)
		if err != nil {
			return nil, err
		}
		message = o
	}
	if message == nil {
		return nil, &BadOptions{Kind: "debug", Reason: `missing "message"`}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			v, err := message.Resolve(ctx, e, local, ectx)
			if err != nil {
				return nil, err
			}
			log.Printf("debug: %s", asString(v))
		}
		return ectxs, nil
	}), nil
}

// ctorDebugContext builds the "debugContext" primitive: log the
// contexts themselves.
func ctorDebugContext(e *Engine, local *Concept, opts interface{}) (Action, error) {
	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		log.Printf("debugContext: %s", JS(ectxs))
		return ectxs, nil
	}), nil
}

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

// Package def parses concept definition documents and loads them into
// an engine.
//
// A document is YAML (or JSON, since YAML is a superset) with two
// top-level maps:
//
//	datastores:
//	  main:
//	    kind: memory
//	concepts:
//	  Counter:
//	    properties:
//	      count:
//	        number:
//	          default: 0
//	    triggers:
//	      bump: {}
//	    behaviours:
//	      bumped:
//	        triggers: [bump]
//	        do:
//	          - increment: count
//	    mappings:
//	      count: [main]
//
// Property declarations accept a bare type name ("number") or a
// one-key map from a type name to its options.  A non-builtin type
// name declares a concept reference.  Action specifications are the
// usual shorthand: a primitive name, a one-key map of primitive name
// to options, or an array (an implicit sequential chain).
package def

import (
	"fmt"
	"sort"

	"github.com/Comcast/concepts/core"

	"github.com/jsccast/yaml"
)

// Document is one parsed definition document.
type Document struct {
	Datastores map[string]*DatastoreDef
	Concepts   map[string]*ConceptDef
}

// DatastoreDef declares a named datastore instance.
type DatastoreDef struct {
	Name    string
	Kind    string
	Options map[string]interface{}
}

// ConceptDef declares one concept.
type ConceptDef struct {
	Name string
	Doc  string

	Properties map[string]*PropertyDef

	// Actions are directly-callable action specifications.
	Actions map[string]interface{}

	Triggers   map[string]*TriggerDef
	Behaviours map[string]*BehaviourDef

	// Mappings gives property name to the datastore names that
	// should back it.
	Mappings map[string][]string

	// Join names other concepts to merge in.
	Join []string

	// OmitProperties and OmitActions name inherited things to drop
	// (after Join).
	OmitProperties []string
	OmitActions    []string
}

// PropertyDef declares one property.  Exactly one of TypeName and
// Derive is set.
type PropertyDef struct {
	Name     string
	TypeName string
	Options  map[string]interface{}
	Derive   *DeriveDef
}

// DeriveDef declares a derived property.
type DeriveDef struct {
	Properties []string
	Transform  []interface{}
	As         string
}

// TriggerDef declares one trigger.
type TriggerDef struct {
	Name    string
	Kind    string
	Options map[string]interface{}
}

// BehaviourDef declares one behaviour.
type BehaviourDef struct {
	Name               string
	Triggers           []*core.TriggerSpec
	Do                 []interface{}
	OverrideActionName string
}

// ParseDocument parses YAML (or JSON) bytes into a Document.
//
// The input is canonicalized through JSON first, so YAML's
// map[interface{}]interface{} never escapes this package.
func ParseDocument(bs []byte) (*Document, error) {
	var raw interface{}
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return nil, err
	}
	canon, err := core.Canonicalize(raw)
	if err != nil {
		return nil, err
	}
	top, is := canon.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf("document should be a map, got %T", canon)
	}

	doc := &Document{
		Datastores: make(map[string]*DatastoreDef, 4),
		Concepts:   make(map[string]*ConceptDef, 8),
	}

	if x, have := top["datastores"]; have {
		m, is := x.(map[string]interface{})
		if !is {
			return nil, fmt.Errorf(`"datastores" should be a map, got %T`, x)
		}
		for name, spec := range m {
			dd, err := parseDatastore(name, spec)
			if err != nil {
				return nil, err
			}
			doc.Datastores[name] = dd
		}
	}

	if x, have := top["concepts"]; have {
		m, is := x.(map[string]interface{})
		if !is {
			return nil, fmt.Errorf(`"concepts" should be a map, got %T`, x)
		}
		for name, spec := range m {
			cd, err := parseConcept(name, spec)
			if err != nil {
				return nil, err
			}
			doc.Concepts[name] = cd
		}
	}

	return doc, nil
}

func parseDatastore(name string, spec interface{}) (*DatastoreDef, error) {
	m, is := spec.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf(`datastore "%s" should be a map, got %T`, name, spec)
	}
	dd := &DatastoreDef{
		Name:    name,
		Options: make(map[string]interface{}, len(m)),
	}
	for k, v := range m {
		if k == "kind" {
			s, is := v.(string)
			if !is {
				return nil, fmt.Errorf(`datastore "%s": "kind" should be a string`, name)
			}
			dd.Kind = s
			continue
		}
		dd.Options[k] = v
	}
	if dd.Kind == "" {
		dd.Kind = "memory"
	}
	return dd, nil
}

func parseConcept(name string, spec interface{}) (*ConceptDef, error) {
	m, is := spec.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf(`concept "%s" should be a map, got %T`, name, spec)
	}
	oops := func(format string, args ...interface{}) error {
		return fmt.Errorf(`concept "%s": %s`, name, fmt.Sprintf(format, args...))
	}

	cd := &ConceptDef{
		Name:       name,
		Properties: make(map[string]*PropertyDef, 8),
		Actions:    make(map[string]interface{}, 4),
		Triggers:   make(map[string]*TriggerDef, 4),
		Behaviours: make(map[string]*BehaviourDef, 4),
		Mappings:   make(map[string][]string, 8),
	}

	if doc, have := m["doc"]; have {
		s, is := doc.(string)
		if !is {
			return nil, oops(`"doc" should be a string`)
		}
		cd.Doc = s
	}

	if x, have := m["properties"]; have {
		props, is := x.(map[string]interface{})
		if !is {
			return nil, oops(`"properties" should be a map, got %T`, x)
		}
		for pname, pspec := range props {
			pd, err := parseProperty(pname, pspec)
			if err != nil {
				return nil, oops("%v", err)
			}
			cd.Properties[pname] = pd
		}
	}

	if x, have := m["actions"]; have {
		actions, is := x.(map[string]interface{})
		if !is {
			return nil, oops(`"actions" should be a map, got %T`, x)
		}
		for aname, aspec := range actions {
			cd.Actions[aname] = aspec
		}
	}

	if x, have := m["triggers"]; have {
		triggers, is := x.(map[string]interface{})
		if !is {
			return nil, oops(`"triggers" should be a map, got %T`, x)
		}
		for tname, tspec := range triggers {
			td, err := parseTrigger(tname, tspec)
			if err != nil {
				return nil, oops("%v", err)
			}
			cd.Triggers[tname] = td
		}
	}

	if x, have := m["behaviours"]; have {
		behaviours, is := x.(map[string]interface{})
		if !is {
			return nil, oops(`"behaviours" should be a map, got %T`, x)
		}
		for bname, bspec := range behaviours {
			bd, err := parseBehaviour(bname, bspec)
			if err != nil {
				return nil, oops("%v", err)
			}
			cd.Behaviours[bname] = bd
		}
	}

	if x, have := m["mappings"]; have {
		mappings, is := x.(map[string]interface{})
		if !is {
			return nil, oops(`"mappings" should be a map, got %T`, x)
		}
		for pname, stores := range mappings {
			names, err := strings_(stores)
			if err != nil {
				return nil, oops(`mapping for "%s": %v`, pname, err)
			}
			cd.Mappings[pname] = names
		}
	}

	if x, have := m["join"]; have {
		names, err := strings_(x)
		if err != nil {
			return nil, oops(`"join": %v`, err)
		}
		cd.Join = names
	}

	if x, have := m["omit"]; have {
		om, is := x.(map[string]interface{})
		if !is {
			return nil, oops(`"omit" should be a map, got %T`, x)
		}
		if props, have := om["properties"]; have {
			names, err := strings_(props)
			if err != nil {
				return nil, oops(`"omit" properties: %v`, err)
			}
			cd.OmitProperties = names
		}
		if actions, have := om["actions"]; have {
			names, err := strings_(actions)
			if err != nil {
				return nil, oops(`"omit" actions: %v`, err)
			}
			cd.OmitActions = names
		}
	}

	return cd, nil
}

func parseProperty(name string, spec interface{}) (*PropertyDef, error) {
	pd := &PropertyDef{Name: name}

	switch v := spec.(type) {
	case string:
		pd.TypeName = v
		return pd, nil

	case map[string]interface{}:
		if len(v) != 1 {
			return nil, fmt.Errorf(`property "%s" should be a type name or a one-key map, got %s`, name, core.JS(spec))
		}
		for typeName, opts := range v {
			if typeName == "derive" {
				dd, err := parseDerive(name, opts)
				if err != nil {
					return nil, err
				}
				pd.Derive = dd
				return pd, nil
			}
			pd.TypeName = typeName
			if opts != nil {
				m, is := opts.(map[string]interface{})
				if !is {
					return nil, fmt.Errorf(`property "%s": options for "%s" should be a map, got %T`, name, typeName, opts)
				}
				pd.Options = m
			}
		}
		return pd, nil
	}

	return nil, fmt.Errorf(`property "%s" should be a type name or a one-key map, got %T`, name, spec)
}

func parseDerive(name string, opts interface{}) (*DeriveDef, error) {
	m, is := opts.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf(`property "%s": "derive" should be a map, got %T`, name, opts)
	}
	dd := &DeriveDef{}

	if x, have := m["properties"]; have {
		names, err := strings_(x)
		if err != nil {
			return nil, fmt.Errorf(`property "%s": "derive" properties: %v`, name, err)
		}
		dd.Properties = names
	}

	x, have := m["transform"]
	if !have {
		return nil, fmt.Errorf(`property "%s": "derive" needs a "transform"`, name)
	}
	if steps, is := x.([]interface{}); is {
		dd.Transform = steps
	} else {
		dd.Transform = []interface{}{x}
	}

	if as, have := m["as"]; have {
		s, is := as.(string)
		if !is {
			return nil, fmt.Errorf(`property "%s": "derive" "as" should be a string`, name)
		}
		dd.As = s
	}

	return dd, nil
}

func parseTrigger(name string, spec interface{}) (*TriggerDef, error) {
	td := &TriggerDef{Name: name}

	switch v := spec.(type) {
	case nil:
		return td, nil

	case string:
		// Shorthand: the value is the kind.
		td.Kind = v
		return td, nil

	case map[string]interface{}:
		td.Options = make(map[string]interface{}, len(v))
		for k, x := range v {
			if k == "kind" {
				s, is := x.(string)
				if !is {
					return nil, fmt.Errorf(`trigger "%s": "kind" should be a string`, name)
				}
				td.Kind = s
				continue
			}
			td.Options[k] = x
		}
		return td, nil
	}

	return nil, fmt.Errorf(`trigger "%s" should be a kind name or a map, got %T`, name, spec)
}

func parseBehaviour(name string, spec interface{}) (*BehaviourDef, error) {
	m, is := spec.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf(`behaviour "%s" should be a map, got %T`, name, spec)
	}
	bd := &BehaviourDef{Name: name}

	if x, have := m["triggers"]; have {
		specs, is := x.([]interface{})
		if !is {
			specs = []interface{}{x}
		}
		for _, ts := range specs {
			spec, err := parseTriggerSpec(name, ts)
			if err != nil {
				return nil, err
			}
			bd.Triggers = append(bd.Triggers, spec)
		}
	}

	x, have := m["do"]
	if !have {
		return nil, fmt.Errorf(`behaviour "%s" needs a "do"`, name)
	}
	if steps, is := x.([]interface{}); is {
		bd.Do = steps
	} else {
		bd.Do = []interface{}{x}
	}

	if x, have := m["overrideActionName"]; have {
		s, is := x.(string)
		if !is {
			return nil, fmt.Errorf(`behaviour "%s": "overrideActionName" should be a string`, name)
		}
		bd.OverrideActionName = s
	}

	return bd, nil
}

// parseTriggerSpec handles a behaviour's trigger references: a string
// names an existing (or to-be-created) trigger; a map with a "name"
// references one; a map without is an anonymous trigger literal.
func parseTriggerSpec(behaviour string, spec interface{}) (*core.TriggerSpec, error) {
	switch v := spec.(type) {
	case string:
		return &core.TriggerSpec{Name: v}, nil

	case map[string]interface{}:
		ts := &core.TriggerSpec{
			Options: make(map[string]interface{}, len(v)),
		}
		for k, x := range v {
			switch k {
			case "name":
				s, is := x.(string)
				if !is {
					return nil, fmt.Errorf(`behaviour "%s": trigger "name" should be a string`, behaviour)
				}
				ts.Name = s
			case "kind":
				s, is := x.(string)
				if !is {
					return nil, fmt.Errorf(`behaviour "%s": trigger "kind" should be a string`, behaviour)
				}
				ts.Kind = s
			default:
				ts.Options[k] = x
			}
		}
		return ts, nil
	}

	return nil, fmt.Errorf(`behaviour "%s": bad trigger reference %s`, behaviour, core.JS(spec))
}

// strings_ coerces a string or a list of strings.
func strings_(x interface{}) ([]string, error) {
	switch v := x.(type) {
	case string:
		return []string{v}, nil
	case []interface{}:
		acc := make([]string, 0, len(v))
		for _, y := range v {
			s, is := y.(string)
			if !is {
				return nil, fmt.Errorf("want a string, got %T", y)
			}
			acc = append(acc, s)
		}
		return acc, nil
	}
	return nil, fmt.Errorf("want a string or a list of strings, got %T", x)
}

// sortedKeys gives deterministic iteration over the document's maps.
// Registration order (which the engine's lookup precedence uses as a
// last resort) is therefore alphabetical within one document.
func sortedKeys(m interface{}) []string {
	acc := make([]string, 0, 8)
	switch v := m.(type) {
	case map[string]*ConceptDef:
		for k := range v {
			acc = append(acc, k)
		}
	case map[string]*DatastoreDef:
		for k := range v {
			acc = append(acc, k)
		}
	case map[string]*PropertyDef:
		for k := range v {
			acc = append(acc, k)
		}
	case map[string]*TriggerDef:
		for k := range v {
			acc = append(acc, k)
		}
	case map[string]*BehaviourDef:
		for k := range v {
			acc = append(acc, k)
		}
	case map[string]interface{}:
		for k := range v {
			acc = append(acc, k)
		}
	case map[string][]string:
		for k := range v {
			acc = append(acc, k)
		}
	}
	sort.Strings(acc)
	return acc
}

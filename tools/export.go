package tools

import (
	"fmt"
	"io"
	"sort"

	"github.com/Comcast/concepts/core"

	"gopkg.in/yaml.v2"
)

// ExportYAML writes a document-shaped YAML rendering of the engine's
// concepts: properties with their constraints, triggers, behaviours,
// and store mappings.
//
// This output is a description, not a faithful round-trip: action
// chains are already compiled, so behaviours list only their trigger
// bindings.
func ExportYAML(e *core.Engine, w io.Writer) error {
	concepts := make(map[string]interface{}, 8)

	for _, name := range e.ConceptNames() {
		c := e.GetConceptFromType(name)
		if c == nil {
			continue
		}
		concepts[name] = exportConcept(c)
	}

	bs, err := yaml.Marshal(map[string]interface{}{
		"concepts": concepts,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s", bs)
	return err
}

func exportConcept(c *core.Concept) map[string]interface{} {
	acc := make(map[string]interface{}, 6)
	if c.Doc != "" {
		acc["doc"] = c.Doc
	}

	properties := make(map[string]interface{}, 8)
	for _, p := range c.Properties() {
		properties[p.Name] = exportProperty(p)
	}
	if 0 < len(properties) {
		acc["properties"] = properties
	}

	triggers := make(map[string]interface{}, 4)
	for _, t := range c.Triggers() {
		spec := make(map[string]interface{}, 1+len(t.Options))
		if t.Kind != "" {
			spec["kind"] = t.Kind
		}
		for k, v := range t.Options {
			spec[k] = v
		}
		triggers[t.Name] = spec
	}
	if 0 < len(triggers) {
		acc["triggers"] = triggers
	}

	behaviours := make(map[string]interface{}, 4)
	for _, b := range c.Behaviours() {
		names := make([]string, 0, len(b.Triggers))
		for _, ts := range b.Triggers {
			names = append(names, ts.Name)
		}
		spec := map[string]interface{}{
			"triggers": names,
		}
		if b.OverrideActionName != "" {
			spec["overrideActionName"] = b.OverrideActionName
		}
		behaviours[b.Name] = spec
	}
	if 0 < len(behaviours) {
		acc["behaviours"] = behaviours
	}

	mappings := c.Mappings()
	if 0 < len(mappings) {
		m := make(map[string]interface{}, len(mappings))
		for prop, stores := range mappings {
			sort.Strings(stores)
			m[prop] = stores
		}
		acc["mappings"] = m
	}

	return acc
}

func exportProperty(p *core.Property) interface{} {
	if p.Derive != nil {
		spec := map[string]interface{}{
			"properties": p.Derive.Properties,
		}
		if p.Derive.As != "" {
			spec["as"] = p.Derive.As
		}
		return map[string]interface{}{"derive": spec}
	}

	typeName := p.Type.String()
	if p.Type == core.ConceptType {
		typeName = p.Of
	}

	opts := make(map[string]interface{}, 4)
	if p.Default != nil {
		opts["default"] = p.Default
	}
	if p.Min != nil {
		opts["min"] = *p.Min
	}
	if p.Max != nil {
		opts["max"] = *p.Max
	}
	if 0 < len(p.Enum) {
		opts["enum"] = p.Enum
	}
	if p.MatchesSource != "" {
		opts["matches"] = p.MatchesSource
	}
	if p.Type == core.Array && p.Items != core.Number {
		items := p.Items.String()
		if p.Items == core.ConceptType {
			items = p.Of
		}
		opts["items"] = items
	}

	if len(opts) == 0 {
		return typeName
	}
	return map[string]interface{}{typeName: opts}
}

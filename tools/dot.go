package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Comcast/concepts/core"
)

// Dot writes a Graphviz dot graph of an engine's concepts.  A really
// ugly dot file.
//
// Concepts are record nodes listing their properties.  Edges:
// concept-typed properties point at the referenced concept type,
// triggers point at the behaviours they run, and behaviours point at
// their owning concept.
func Dot(e *core.Engine, w io.Writer) error {
	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	esc := func(s string) string {
		s = strings.Replace(s, `"`, `\"`, -1)
		s = strings.Replace(s, "|", `\|`, -1)
		s = strings.Replace(s, "{", `\{`, -1)
		s = strings.Replace(s, "}", `\}`, -1)
		return s
	}

	for _, name := range e.ConceptNames() {
		c := e.GetConceptFromType(name)
		if c == nil {
			continue
		}

		rows := make([]string, 0, 8)
		rows = append(rows, esc(name))
		for _, p := range c.Properties() {
			t := p.Type.String()
			if p.Derive != nil {
				t = "derived"
			} else if p.Type == core.ConceptType {
				t = p.Of
			}
			rows = append(rows, esc(p.Name+": "+t))
		}
		fmt.Fprintf(w, "  \"%s\" [label=\"{%s}\" fillcolor=\"#99ddc8\"];\n",
			esc(name), strings.Join(rows, `|`))

		// Reference edges.
		for _, p := range c.Properties() {
			if p.Of == "" {
				continue
			}
			style := "solid"
			if p.Type == core.Array {
				style = "bold"
			}
			fmt.Fprintf(w, "  \"%s\" -> \"%s\" [label=\"%s\" style=\"%s\"];\n",
				esc(name), esc(p.Of), esc(p.Name), style)
		}

		behaviours := c.Behaviours()
		sort.Slice(behaviours, func(i, j int) bool {
			return behaviours[i].Name < behaviours[j].Name
		})
		for _, b := range behaviours {
			bn := name + "/" + b.Name
			fmt.Fprintf(w, "  \"%s\" [shape=\"note\" fillcolor=\"#52aa5e\" label=\"%s\"];\n",
				esc(bn), esc(b.Name))
			fmt.Fprintf(w, "  \"%s\" -> \"%s\" [style=\"dashed\"];\n", esc(bn), esc(name))

			for _, ts := range b.Triggers {
				t, have := c.Trigger(ts.Name)
				kind := ts.Kind
				if have {
					kind = t.Kind
				}
				if kind == "" {
					kind = "named"
				}
				tn := name + "//" + ts.Name
				fmt.Fprintf(w, "  \"%s\" [shape=\"cds\" fillcolor=\"#2d93ad\" label=\"%s\"];\n",
					esc(tn), esc(ts.Name+" ("+kind+")"))
				fmt.Fprintf(w, "  \"%s\" -> \"%s\";\n", esc(tn), esc(bn))
			}
		}
	}

	fmt.Fprintf(w, "}\n")
	return nil
}

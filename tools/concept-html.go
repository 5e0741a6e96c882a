package tools

import (
	"fmt"
	"html"
	"io"
	"sort"

	"github.com/Comcast/concepts/core"

	md "github.com/russross/blackfriday/v2"
)

// RenderConceptHTML writes an HTML fragment describing a concept: its
// doc (rendered as Markdown), properties, triggers, behaviours, and
// store mappings.
func RenderConceptHTML(c *core.Concept, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="concept" id="%s">`, c.Name)
	f(`<h2 class="conceptName">%s</h2>`, c.Name)

	if c.Doc != "" {
		f(`<div class="conceptDoc doc">%s</div>`, md.Run([]byte(c.Doc)))
	}

	mappings := c.Mappings()

	{ // Properties
		f(`<div class="properties"><table>`)
		for _, p := range c.Properties() {
			f(`<tr class="property"><td><span class="propertyName">%s</span></td><td>`, p.Name)

			typeName := p.Type.String()
			if p.Type == core.ConceptType && p.Of != "" {
				typeName = `<a href="#` + p.Of + `">` + p.Of + `</a>`
			}
			f(`<div>type: <span class="propertyType">%s</span></div>`, typeName)

			if p.Derive != nil {
				f(`<div class="derived">derived from <code>%s</code></div>`,
					html.EscapeString(core.JS(p.Derive.Properties)))
			}
			if p.Default != nil {
				f(`<div>default: <code>%s</code></div>`, html.EscapeString(core.JS(p.Default)))
			}
			if 0 < len(p.Enum) {
				f(`<div>enum: <code>%s</code></div>`, html.EscapeString(core.JS(p.Enum)))
			}
			if p.MatchesSource != "" {
				f(`<div>matches: <code>%s</code></div>`, html.EscapeString(p.MatchesSource))
			}
			if stores, have := mappings[p.Name]; have {
				f(`<div>stores: <code>%s</code></div>`, html.EscapeString(core.JS(stores)))
			}

			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	{ // Triggers
		triggers := c.Triggers()
		sort.Slice(triggers, func(i, j int) bool {
			return triggers[i].Name < triggers[j].Name
		})
		if 0 < len(triggers) {
			f(`<div class="triggers"><table>`)
			for _, t := range triggers {
				kind := t.Kind
				if kind == "" {
					kind = "named"
				}
				f(`<tr class="trigger"><td><span class="triggerName">%s</span></td><td>`, t.Name)
				f(`<div>kind: <span class="triggerKind">%s</span></div>`, kind)
				if 0 < len(t.Options) {
					f(`<div><code>%s</code></div>`, html.EscapeString(core.JS(t.Options)))
				}
				f(`</td></tr>`)
			}
			f(`</table></div>`)
		}
	}

	{ // Behaviours
		behaviours := c.Behaviours()
		sort.Slice(behaviours, func(i, j int) bool {
			return behaviours[i].Name < behaviours[j].Name
		})
		if 0 < len(behaviours) {
			f(`<div class="behaviours"><table>`)
			for _, b := range behaviours {
				f(`<tr class="behaviour"><td><span class="behaviourName">%s</span></td><td>`, b.Name)
				for _, ts := range b.Triggers {
					f(`<div>on <code>%s</code></div>`, ts.Name)
				}
				if b.OverrideActionName != "" {
					f(`<div>callable as <code>%s</code></div>`, b.OverrideActionName)
				}
				f(`</td></tr>`)
			}
			f(`</table></div>`)
		}
	}

	f(`</div>`)

	return nil
}

// RenderConceptsPage writes a complete HTML page for every concept
// registered with the engine.
func RenderConceptsPage(e *core.Engine, out io.Writer, title string, cssFiles []string) error {
	if title == "" {
		title = "concepts"
	}
	if cssFiles == nil {
		cssFiles = []string{"/static/concept-html.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, html.EscapeString(title))

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `  </head>
  <body>
`)

	for _, name := range e.ConceptNames() {
		c := e.GetConceptFromType(name)
		if c == nil {
			continue
		}
		if err := RenderConceptHTML(c, out); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, `  </body>
</html>
`)

	return nil
}

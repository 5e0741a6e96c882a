package tools

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Comcast/concepts/core"
)

func makeEngine(t *testing.T) *core.Engine {
	ctx := context.Background()
	e := core.NewEngine()

	door := e.NewConcept("Door")
	door.Doc = "A **door**."
	open := core.NewProperty("open", core.Boolean)
	door.AddProperty(open)

	lock := e.NewConcept("Lock")
	nearest := core.NewProperty("nearest", core.ConceptType)
	nearest.Of = "Door"
	lock.AddProperty(nearest)

	tr := core.NewTrigger("slam", "", nil)
	if err := door.AddTrigger(ctx, tr, true); err != nil {
		t.Fatal(err)
	}
	chain, err := e.MakeChain(door, []interface{}{
		map[string]interface{}{"toggle": "open"},
	})
	if err != nil {
		t.Fatal(err)
	}
	b := core.NewBehaviour("slammed", []*core.TriggerSpec{{Name: "slam"}}, chain)
	if err := door.AddBehaviour(ctx, b); err != nil {
		t.Fatal(err)
	}

	return e
}

func TestRenderConceptsPage(t *testing.T) {
	e := makeEngine(t)

	var buf bytes.Buffer
	if err := RenderConceptsPage(e, &buf, "test", nil); err != nil {
		t.Fatal(err)
	}
	html := buf.String()

	for _, want := range []string{
		`id="Door"`,
		"<strong>door</strong>", // Markdown ran
		"open",
		`href="#Door"`, // the Lock's reference links back
		"slammed",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("no %q in output", want)
		}
	}
}

func TestExportYAML(t *testing.T) {
	e := makeEngine(t)

	var buf bytes.Buffer
	if err := ExportYAML(e, &buf); err != nil {
		t.Fatal(err)
	}
	y := buf.String()

	for _, want := range []string{
		"concepts:",
		"Door:",
		"doc: A **door**.",
		"open: boolean",
		"nearest: Door",
		"slam:",
		"slammed:",
	} {
		if !strings.Contains(y, want) {
			t.Fatalf("no %q in output:\n%s", want, y)
		}
	}
}

func TestDot(t *testing.T) {
	e := makeEngine(t)

	var buf bytes.Buffer
	if err := Dot(e, &buf); err != nil {
		t.Fatal(err)
	}
	dot := buf.String()

	for _, want := range []string{
		"digraph G {",
		`"Door"`,
		`"Lock" -> "Door"`,
		`"Door//slam"`,
		`"Door/slammed"`,
	} {
		if !strings.Contains(dot, want) {
			t.Fatalf("no %q in output:\n%s", want, dot)
		}
	}
}

// A simple, single-process concept runtime that reads commands from
// stdin and writes to stdout.
//
// Example session:
//
//	create Counter
//	fire Counter bump
//	get <id> count
//
// See usage() for the full command list.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/Comcast/concepts/core"
	"github.com/Comcast/concepts/datastore"
	"github.com/Comcast/concepts/datastore/bolt"
	"github.com/Comcast/concepts/datastore/memory"
	"github.com/Comcast/concepts/datastore/sqlite"
	"github.com/Comcast/concepts/def"
	"github.com/Comcast/concepts/tools"
)

func main() {

	var (
		docFilenames = flag.String("f", "", "comma-separated definition documents (YAML)")
		diag         = flag.Bool("d", false, "print diagnostics")
		echo         = flag.Bool("e", false, "echo bus events")
	)

	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := core.NewEngine()
	e.Debug = *diag

	stores := datastore.NewRegistry()
	memory.Register(stores)
	bolt.Register(stores)
	sqlite.Register(stores)

	l := def.NewLoader(e, stores)
	l.Debug = *diag

	load := func(filename string) error {
		bs, err := ioutil.ReadFile(filename)
		if err != nil {
			return err
		}
		return l.LoadBytes(ctx, bs)
	}

	if *docFilenames != "" {
		for _, filename := range strings.Split(*docFilenames, ",") {
			if err := load(filename); err != nil {
				panic(err)
			}
		}
	}

	if *echo {
		for _, name := range []string{
			core.EventAppeared, core.EventDisappeared,
			core.EventCreated, core.EventDeleted,
			core.EventStateChanged, core.EventAction,
		} {
			e.Bus().Subscribe(name, func(cx context.Context, ev *core.Event) error {
				concept := ""
				if ev.Concept != nil {
					concept = ev.Concept.Name
				}
				fmt.Printf("# %s %s %s\n", ev.Name, concept, core.JS(ev.Contexts))
				return nil
			})
		}
	}

	in := bufio.NewReader(os.Stdin)
	for {
		line, err := in.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			panic(err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := dispatch(ctx, e, l, load, line); err != nil {
			if err == errQuit {
				break
			}
			fmt.Printf("error: %v\n", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func usage() {
	fmt.Print(`commands:
  concepts                              list concept types
  instances                             list instance ids
  create <Concept> [<JSON values>]      make an instance
  delete <id>                           remove an instance
  clone <id> [deep]                     copy an instance
  get <id> <property>                   read a value
  set <id> <property> <JSON value>      write a value
  fire <Concept> <trigger>              fire a named trigger
  run <Concept> <action> [<id>]         run an action
  load <filename>                       load another document
  html                                  render concepts as HTML
  dot                                   render concepts as Graphviz
  yaml                                  render concepts as YAML
  reload                                drop all instances
  quit
`)
}

func dispatch(ctx context.Context, e *core.Engine, l *def.Loader, load func(string) error, line string) error {
	parts := strings.SplitN(line, " ", 2)
	cmd := parts[0]
	rest := ""
	if 1 < len(parts) {
		rest = strings.TrimSpace(parts[1])
	}

	conceptFor := func(name string) (*core.Concept, error) {
		if c := e.GetConceptFromType(name); c != nil {
			return c, nil
		}
		return nil, fmt.Errorf(`unknown concept "%s"`, name)
	}

	switch cmd {
	case "help", "?":
		usage()

	case "quit", "exit":
		return errQuit

	case "concepts":
		for _, name := range e.ConceptNames() {
			fmt.Printf("%s\n", name)
		}

	case "instances":
		for _, id := range e.InstanceIDs() {
			c := e.GetConceptFromUUID(id)
			fmt.Printf("%s %s\n", id, c.Name)
		}

	case "create":
		args := strings.SplitN(rest, " ", 2)
		if args[0] == "" {
			return fmt.Errorf("create <Concept> [<JSON values>]")
		}
		c, err := conceptFor(args[0])
		if err != nil {
			return err
		}
		values := map[string]interface{}{}
		if 1 < len(args) {
			if err := json.Unmarshal([]byte(args[1]), &values); err != nil {
				return err
			}
		}
		id, err := c.Create(ctx, "", values)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", id)

	case "delete":
		c := e.GetConceptFromUUID(rest)
		if c == nil {
			return fmt.Errorf(`unknown instance "%s"`, rest)
		}
		return c.Delete(ctx, rest)

	case "clone":
		args := strings.Fields(rest)
		if len(args) == 0 {
			return fmt.Errorf("clone <id> [deep]")
		}
		c := e.GetConceptFromUUID(args[0])
		if c == nil {
			return fmt.Errorf(`unknown instance "%s"`, args[0])
		}
		deep := 1 < len(args) && args[1] == "deep"
		id, err := c.Clone(ctx, args[0], deep)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", id)

	case "get":
		args := strings.Fields(rest)
		if len(args) != 2 {
			return fmt.Errorf("get <id> <property>")
		}
		p, err := e.LookupProperty(args[0], nil, args[1])
		if err != nil {
			return err
		}
		v, err := p.GetValue(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", core.JS(v))

	case "set":
		args := strings.SplitN(rest, " ", 3)
		if len(args) != 3 {
			return fmt.Errorf("set <id> <property> <JSON value>")
		}
		p, err := e.LookupProperty(args[0], nil, args[1])
		if err != nil {
			return err
		}
		var v interface{}
		if err := json.Unmarshal([]byte(args[2]), &v); err != nil {
			return err
		}
		return p.SetValue(ctx, args[0], v)

	case "fire":
		args := strings.Fields(rest)
		if len(args) != 2 {
			return fmt.Errorf("fire <Concept> <trigger>")
		}
		c, err := conceptFor(args[0])
		if err != nil {
			return err
		}
		return c.Fire(ctx, args[1], nil)

	case "run":
		args := strings.Fields(rest)
		if len(args) < 2 {
			return fmt.Errorf("run <Concept> <action> [<id>]")
		}
		c, err := conceptFor(args[0])
		if err != nil {
			return err
		}
		target := ""
		if 2 < len(args) {
			target = args[2]
		}
		out, err := c.RunAction(ctx, args[1], []*core.Context{core.NewContext(target)})
		if err != nil {
			if core.IsStopped(err) {
				return nil
			}
			return err
		}
		fmt.Printf("%s\n", core.JS(out))

	case "load":
		if rest == "" {
			return fmt.Errorf("load <filename>")
		}
		return load(rest)

	case "html":
		return tools.RenderConceptsPage(e, os.Stdout, "concepts", nil)

	case "dot":
		return tools.Dot(e, os.Stdout)

	case "yaml":
		return tools.ExportYAML(e, os.Stdout)

	case "reload":
		return e.Reload(ctx)

	default:
		usage()
		return fmt.Errorf(`unknown command "%s"`, cmd)
	}

	return nil
}

package core

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/dop251/goja"
)

// ctorCalculate builds the "calculate" primitive: evaluate a formula
// against the context's variables.
//
//	{"calculate": {"formula": "n * 2 + 1", "as": "m"}}
//
// The formula is an ECMAScript expression; every context variable
// (chain-saved variables included) is in scope.
func ctorCalculate(e *Engine, local *Concept, opts interface{}) (Action, error) {
	m, is := asOptMap(opts)
	if !is {
		return nil, &BadOptions{Kind: "calculate", Reason: "want a map of options"}
	}
	formula, _ := optString(m, "formula")
	if formula == "" {
		return nil, &BadOptions{Kind: "calculate", Reason: `missing "formula"`}
	}
	as, _ := optString(m, "as")
	if as == "" {
		as = "result"
	}

	prog, err := goja.Compile("calculate", formula, false)
	if err != nil {
		return nil, &BadOptions{Kind: "calculate", Reason: err.Error()}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			vm := goja.New()
			if ectx.Saved != nil {
				for name, v := range ectx.Saved.Vars {
					if err := vm.Set(name, v); err != nil {
						return nil, err
					}
				}
			}
			for name, v := range ectx.Vars {
				if err := vm.Set(name, v); err != nil {
					return nil, err
				}
			}
			if err := vm.Set("target", ectx.Target); err != nil {
				return nil, err
			}

			v, err := vm.RunProgram(prog)
			if err != nil {
				return nil, err
			}
			x := v.Export()
			if f, ok := asFloat(x); ok {
				x = f
			}
			ectx.Vars.Extend(as, x)
		}
		return ectxs, nil
	}), nil
}

// ctorRandom builds the "random" primitive.
//
//	{"random": {"min": 1, "max": 6, "integer": true, "as": "roll"}}
func ctorRandom(e *Engine, local *Concept, opts interface{}) (Action, error) {
	m, _ := asOptMap(opts)
	min := optFloat(m, "min", 0)
	max := optFloat(m, "max", 1)
	integer := optBool(m, "integer", false)
	as, _ := optString(m, "as")
	if as == "" {
		as = "random"
	}
	if max < min {
		return nil, &BadOptions{Kind: "random", Reason: "max below min"}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			v := min + rand.Float64()*(max-min)
			if integer {
				v = math.Floor(min + rand.Float64()*(max-min+1))
			}
			ectx.Vars.Extend(as, v)
		}
		return ectxs, nil
	}), nil
}

// ctorWait builds the "wait" primitive.
//
//	{"wait": 1.5}                    // seconds
//	{"wait": {"milliseconds": 250}}
func ctorWait(e *Engine, local *Concept, opts interface{}) (Action, error) {
	var d time.Duration
	switch v := opts.(type) {
	case map[string]interface{}:
		if ms, have := v["milliseconds"]; have {
			f, ok := asFloat(ms)
			if !ok {
				return nil, &BadOptions{Kind: "wait", Reason: "milliseconds should be a number"}
			}
			d = time.Duration(f * float64(time.Millisecond))
		} else {
			d = time.Duration(optFloat(v, "seconds", 0) * float64(time.Second))
		}
	default:
		f, ok := asFloat(opts)
		if !ok {
			return nil, &BadOptions{Kind: "wait", Reason: "want seconds or a map of options"}
		}
		d = time.Duration(f * float64(time.Second))
	}
	if d <= 0 {
		return nil, &BadOptions{Kind: "wait", Reason: "want a positive duration"}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ectxs, ctx.Err()
		case <-timer.C:
		}
		return ectxs, nil
	}), nil
}

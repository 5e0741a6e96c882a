package core

import (
	"context"
	"strings"
)

// ctorConcat builds the "concat" primitive: join operands into a
// string variable.
//
//	{"concat": {"strings": [{"property": "first"}, " ", {"property": "last"}],
//	            "as": "fullName"}}
func ctorConcat(e *Engine, local *Concept, opts interface{}) (Action, error) {
	m, is := asOptMap(opts)
	if !is {
		return nil, &BadOptions{Kind: "concat", Reason: "want a map of options"}
	}
	parts, err := optOperands(m, "strings")
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, &BadOptions{Kind: "concat", Reason: `missing "strings"`}
	}
	as, _ := optString(m, "as")
	if as == "" {
		return nil, &BadOptions{Kind: "concat", Reason: `missing "as"`}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			var sb strings.Builder
			for _, part := range parts {
				v, err := part.Resolve(ctx, e, local, ectx)
				if err != nil {
					return nil, err
				}
				sb.WriteString(asString(v))
			}
			ectx.Vars.Extend(as, sb.String())
		}
		return ectxs, nil
	}), nil
}

// ctorSplit builds the "split" primitive.
//
//	{"split": {"value": {"property": "tags"}, "separator": ",", "as": "parts"}}
//	{"split": {"property": "tags", "separator": ",", "as": "parts"}}
func ctorSplit(e *Engine, local *Concept, opts interface{}) (Action, error) {
	m, is := asOptMap(opts)
	if !is {
		return nil, &BadOptions{Kind: "split", Reason: "want a map of options"}
	}
	value, err := optOperand(m, "value", nil)
	if err != nil {
		return nil, err
	}
	if value == nil {
		if property, have := optString(m, "property"); have && property != "" {
			value = PropertyOperand(property)
		}
	}
	if value == nil {
		return nil, &BadOptions{Kind: "split", Reason: `missing "value" or "property"`}
	}
	separator, have := optString(m, "separator")
	if !have {
		separator = " "
	}
	as, _ := optString(m, "as")
	if as == "" {
		return nil, &BadOptions{Kind: "split", Reason: `missing "as"`}
	}

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			v, err := value.Resolve(ctx, e, local, ectx)
			if err != nil {
				return nil, err
			}
			parts := strings.Split(asString(v), separator)
			acc := make([]interface{}, len(parts))
			for i, part := range parts {
				acc[i] = part
			}
			ectx.Vars.Extend(as, acc)
		}
		return ectxs, nil
	}), nil
}

// ctorTextTransform builds the "textTransform" primitive.
//
//	{"textTransform": {"property": "name", "transform": "uppercase"}}
//	{"textTransform": {"value": {"variable": "v"}, "transform": "titlecase", "as": "title"}}
//
// With a property and no "as", the result is written back to the
// property.
func ctorTextTransform(e *Engine, local *Concept, opts interface{}) (Action, error) {
	m, is := asOptMap(opts)
	if !is {
		return nil, &BadOptions{Kind: "textTransform", Reason: "want a map of options"}
	}
	property, _ := optString(m, "property")
	value, err := optOperand(m, "value", nil)
	if err != nil {
		return nil, err
	}
	if value == nil {
		if property == "" {
			return nil, &BadOptions{Kind: "textTransform", Reason: `missing "value" or "property"`}
		}
		value = PropertyOperand(property)
	}
	transform, _ := optString(m, "transform")
	f, have := textTransforms[transform]
	if !have {
		return nil, &BadOptions{Kind: "textTransform", Reason: `unknown transform "` + transform + `"`}
	}
	as, _ := optString(m, "as")

	return ActionFunc(func(ctx context.Context, ectxs []*Context) ([]*Context, error) {
		for _, ectx := range ectxs {
			v, err := value.Resolve(ctx, e, local, ectx)
			if err != nil {
				return nil, err
			}
			s := f(asString(v))
			if as != "" {
				ectx.Vars.Extend(as, s)
				continue
			}
			if property == "" {
				ectx.Vars.Extend("text", s)
				continue
			}
			p, err := e.LookupProperty(ectx.Target, local, property)
			if err != nil {
				return nil, err
			}
			if err := p.SetValue(ctx, ectx.Target, s); err != nil {
				return nil, err
			}
		}
		return ectxs, nil
	}), nil
}

var textTransforms = map[string]func(string) string{
	"lowercase": strings.ToLower,
	"uppercase": strings.ToUpper,
	"capitalize": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"titlecase": func(s string) string {
		words := strings.Fields(s)
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
		return strings.Join(words, " ")
	},
}

package core

import (
	"strconv"
)

// Validate checks a value against the property's type and
// constraints.  nil always validates (it's how concept references are
// cleared).
func (p *Property) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	fail := func(reason string) error {
		return &ValidationError{Property: p.Name, Value: value, Reason: reason}
	}

	switch p.Type {
	case Number:
		f, ok := asFloat(value)
		if !ok {
			return fail("not a number")
		}
		if p.Min != nil && f < *p.Min {
			return fail("below minimum " + strconv.FormatFloat(*p.Min, 'f', -1, 64))
		}
		if p.Max != nil && *p.Max < f {
			return fail("above maximum " + strconv.FormatFloat(*p.Max, 'f', -1, 64))
		}

	case String:
		s, ok := value.(string)
		if !ok {
			return fail("not a string")
		}
		if 0 < len(p.Enum) {
			found := false
			for _, allowed := range p.Enum {
				if s == allowed {
					found = true
					break
				}
			}
			if !found {
				return fail("not in enum")
			}
		}
		if p.Matches != nil && !p.Matches.MatchString(s) {
			return fail("does not match " + p.MatchesSource)
		}

	case Boolean:
		if _, ok := value.(bool); !ok {
			return fail("not a boolean")
		}

	case Array:
		vs, ok := value.([]interface{})
		if !ok {
			return fail("not an array")
		}
		if p.Max != nil && *p.Max < float64(len(vs)) {
			return fail("longer than " + strconv.FormatFloat(*p.Max, 'f', -1, 64))
		}

	case ConceptType:
		id, ok := value.(string)
		if !ok {
			return fail("not an instance id")
		}
		// An id whose concept isn't registered yet is allowed:
		// stores announce instances in no particular order, so
		// a reference can legitimately point at an instance
		// the engine hasn't seen.
		if e := p.engine(); e != nil {
			if c := e.GetConceptFromUUID(id); c != nil && !c.IsA(p.Of) {
				return fail(`not a "` + p.Of + `"`)
			}
		}
	}

	return nil
}

// TypeCast coerces a value to the given type (best effort; values
// that can't be coerced come back unchanged).
func TypeCast(value interface{}, t Type) interface{} {
	switch t {
	case Number:
		if f, ok := asFloat(value); ok {
			return f
		}
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		if b, ok := value.(bool); ok {
			if b {
				return float64(1)
			}
			return float64(0)
		}
	case String:
		return asString(value)
	case Boolean:
		switch v := value.(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		default:
			if f, ok := asFloat(value); ok {
				return f != 0
			}
		}
	case Array:
		if vs, ok := value.([]interface{}); ok {
			return vs
		}
		if value != nil {
			return []interface{}{value}
		}
		return []interface{}{}
	}
	return value
}

// TypeCast coerces a value to this property's type.
func (p *Property) TypeCast(value interface{}) interface{} {
	return TypeCast(value, p.Type)
}

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

// Vars is a set of named values threaded through action execution.
type Vars map[string]interface{}

// NewVars makes a new, empty set of variables.
func NewVars() Vars {
	return make(Vars, 8)
}

// Copy makes a deep copy.
func (vs Vars) Copy() Vars {
	acc := make(Vars, len(vs))
	for name, val := range vs {
		acc[name] = copyValue(val)
	}
	return acc
}

// Extend binds the name and returns the receiver for chaining.
func (vs Vars) Extend(name string, val interface{}) Vars {
	vs[name] = val
	return vs
}

// Remove unbinds the given names and returns the receiver.
func (vs Vars) Remove(names ...string) Vars {
	for _, name := range names {
		delete(vs, name)
	}
	return vs
}

// copyValue deep-copies the maps and slices that JSON/YAML
// deserialization produces.  Other values are copied by value.
func copyValue(x interface{}) interface{} {
	switch vv := x.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[k] = copyValue(v)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(vv))
		for i, v := range vv {
			s[i] = copyValue(v)
		}
		return s
	default:
		return x
	}
}

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

// Package memory is the in-memory map datastore.
//
// Not glamorous or durable.  It's the default store and the one the
// engine's tests use.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Comcast/concepts/core"
	"github.com/Comcast/concepts/datastore"
)

// Register adds the "memory" kind to a registry.
func Register(r *datastore.Registry) {
	r.RegisterType("memory", func(name string, options map[string]interface{}, e *core.Engine) (datastore.Datastore, error) {
		return NewStore(name), nil
	})
}

// noValue reports an unset (concept, id, property) triple.  The
// property layer turns "every getter failed" into the declared
// default.
var noValue = errors.New("no value")

// Store holds property values in nested maps: concept name, then
// instance id, then property name.
type Store struct {
	name string

	mu     sync.RWMutex
	data   map[string]map[string]map[string]interface{}
	mapped map[string]map[string]bool
}

// NewStore makes an empty in-memory store.
func NewStore(name string) *Store {
	return &Store{
		name:   name,
		data:   make(map[string]map[string]map[string]interface{}, 8),
		mapped: make(map[string]map[string]bool, 8),
	}
}

// Name is the store's instance name (and its Provider id).
func (s *Store) Name() string {
	return s.name
}

// Init does nothing.
func (s *Store) Init(ctx context.Context) error {
	return nil
}

// Destroy drops all data.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	s.data = make(map[string]map[string]map[string]interface{}, 8)
	s.mapped = make(map[string]map[string]bool, 8)
	s.mu.Unlock()
	return nil
}

// CreateBackingStore attaches this store to the property.  Attaching
// an already-mapped pair is silently ignored.
func (s *Store) CreateBackingStore(ctx context.Context, c *core.Concept, p *core.Property) error {
	s.mu.Lock()
	if s.mapped[c.Name] == nil {
		s.mapped[c.Name] = make(map[string]bool, 8)
	}
	if s.mapped[c.Name][p.Name] {
		s.mu.Unlock()
		return nil
	}
	s.mapped[c.Name][p.Name] = true
	s.mu.Unlock()

	concept, property := c.Name, p.Name
	p.AttachProvider(core.Provider{
		ID: s.name,
		Get: func(ctx context.Context, id string) (interface{}, error) {
			return s.get(concept, id, property)
		},
		Set: func(ctx context.Context, id string, value interface{}) error {
			return s.set(concept, id, property, value)
		},
	})
	c.NoteMapping(property, s)
	return nil
}

// RemoveBackingStore detaches this store from the property.
// Detaching a pair that isn't mapped is an error.
func (s *Store) RemoveBackingStore(ctx context.Context, c *core.Concept, p *core.Property) error {
	s.mu.Lock()
	if !s.mapped[c.Name][p.Name] {
		s.mu.Unlock()
		return errors.New(`property "` + p.Name + `" of concept "` + c.Name +
			`" not mapped to datastore "` + s.name + `"`)
	}
	delete(s.mapped[c.Name], p.Name)
	s.mu.Unlock()

	if err := p.DetachProvider(s.name); err != nil {
		return err
	}
	c.DropMapping(p.Name, s.name)
	return nil
}

// MappedProperties reports which of the concept's properties this
// store backs.
func (s *Store) MappedProperties(c *core.Concept) []string {
	s.mu.RLock()
	acc := make([]string, 0, len(s.mapped[c.Name]))
	for name := range s.mapped[c.Name] {
		acc = append(acc, name)
	}
	s.mu.RUnlock()
	return acc
}

func (s *Store) get(concept, id, property string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	props, have := s.data[concept][id]
	if !have {
		return nil, noValue
	}
	v, have := props[property]
	if !have {
		return nil, noValue
	}
	return v, nil
}

func (s *Store) set(concept, id, property string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[concept] == nil {
		s.data[concept] = make(map[string]map[string]interface{}, 16)
	}
	if s.data[concept][id] == nil {
		s.data[concept][id] = make(map[string]interface{}, 8)
	}
	s.data[concept][id][property] = value
	return nil
}

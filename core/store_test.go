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

import (
	"context"
	"errors"
	"sync"
)

// testStore is a minimal in-memory Store for these tests.  The real
// stores live in the datastore packages, which this package can't
// import.
type testStore struct {
	name string

	mu   sync.Mutex
	data map[string]map[string]interface{}
}

var noValue = errors.New("no value")

func newTestStore(name string) *testStore {
	return &testStore{
		name: name,
		data: make(map[string]map[string]interface{}, 8),
	}
}

func (s *testStore) Name() string {
	return s.name
}

func (s *testStore) CreateBackingStore(ctx context.Context, c *Concept, p *Property) error {
	property := p.Name
	p.AttachProvider(Provider{
		ID: s.name,
		Get: func(ctx context.Context, id string) (interface{}, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			props, have := s.data[id]
			if !have {
				return nil, noValue
			}
			v, have := props[property]
			if !have {
				return nil, noValue
			}
			return v, nil
		},
		Set: func(ctx context.Context, id string, value interface{}) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.data[id] == nil {
				s.data[id] = make(map[string]interface{}, 8)
			}
			s.data[id][property] = value
			return nil
		},
	})
	c.NoteMapping(property, s)
	return nil
}

func (s *testStore) RemoveBackingStore(ctx context.Context, c *Concept, p *Property) error {
	if err := p.DetachProvider(s.name); err != nil {
		return err
	}
	c.DropMapping(p.Name, s.name)
	return nil
}

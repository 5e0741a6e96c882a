// Package bolt is a bbolt-backed key/value datastore.
//
// Layout: one bucket per concept name; keys are "id/property" and
// values are JSON.  When the store starts backing a concept, it
// announces every instance id it already holds for that concept.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Comcast/concepts/core"
	"github.com/Comcast/concepts/datastore"

	bolt "go.etcd.io/bbolt"
)

// Register adds the "bolt" kind to a registry.  The "filename" option
// is required.
func Register(r *datastore.Registry) {
	r.RegisterType("bolt", func(name string, options map[string]interface{}, e *core.Engine) (datastore.Datastore, error) {
		filename, _ := options["filename"].(string)
		if filename == "" {
			return nil, errors.New(`bolt datastore needs a "filename" option`)
		}
		return NewStore(name, filename, e), nil
	})
}

var notFound = errors.New("not found")

// Store is a bbolt-backed datastore.
type Store struct {
	// Debug enables chatty logging.
	Debug bool

	name     string
	filename string
	engine   *core.Engine
	announce *datastore.Announcer

	mu     sync.Mutex
	db     *bolt.DB
	mapped map[string]map[string]bool
}

// NewStore makes a Store; call Init to open the file.
func NewStore(name, filename string, e *core.Engine) *Store {
	return &Store{
		name:     name,
		filename: filename,
		engine:   e,
		announce: datastore.NewAnnouncer(),
		mapped:   make(map[string]map[string]bool, 8),
	}
}

// Name is the store's instance name (and its Provider id).
func (s *Store) Name() string {
	return s.name
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("bolt.Store."+format, args...)
	}
}

// Init opens the database file.
func (s *Store) Init(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}
	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

// Destroy closes the database file.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *Store) database() (*bolt.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, errors.New(`bolt datastore "` + s.name + `" not initialized`)
	}
	return db, nil
}

// CreateBackingStore attaches this store to the property and
// announces the instance ids already on disk for the concept.
// Attaching an already-mapped pair is silently ignored.
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
			// Our own writes must not bounce back as
			// announcements.
			s.announce.Note(id)
			return s.set(concept, id, property, value)
		},
	})
	c.NoteMapping(property, s)

	return s.announceExisting(ctx, c)
}

// RemoveBackingStore detaches this store from the property.
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
	s.mu.Lock()
	acc := make([]string, 0, len(s.mapped[c.Name]))
	for name := range s.mapped[c.Name] {
		acc = append(acc, name)
	}
	s.mu.Unlock()
	return acc
}

// announceExisting emits "appeared" for every id under the concept's
// bucket (the Announcer suppresses ids we've already seen).
func (s *Store) announceExisting(ctx context.Context, c *core.Concept) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	ids := make([]string, 0, 32)
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.Name))
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		var last string
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			i := bytes.IndexByte(k, '/')
			if i < 0 {
				continue
			}
			id := string(k[:i])
			if id != last {
				ids = append(ids, id)
				last = id
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		s.logf("announce %s %s", c.Name, id)
		if err := s.announce.Announce(ctx, s.engine, c, id); err != nil {
			return err
		}
	}
	return nil
}

func key(id, property string) []byte {
	return []byte(id + "/" + property)
}

func (s *Store) get(concept, id, property string) (interface{}, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var value interface{}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(concept))
		if b == nil {
			return notFound
		}
		bs := b.Get(key(id, property))
		if bs == nil {
			return notFound
		}
		return json.Unmarshal(bs, &value)
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) set(concept, id, property string, value interface{}) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	js, err := json.Marshal(&value)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(concept))
		if err != nil {
			return err
		}
		return b.Put(key(id, property), js)
	})
}

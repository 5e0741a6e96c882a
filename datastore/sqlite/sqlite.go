// Package sqlite is a SQLite-backed datastore.
//
// One table holds everything: props(concept, id, name, value), with
// values stored as JSON.  Handy when several processes want to poke at
// the same state with ordinary SQL tools.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/Comcast/concepts/core"
	"github.com/Comcast/concepts/datastore"

	_ "github.com/mattn/go-sqlite3"
)

// Register adds the "sqlite" kind to a registry.  The "filename"
// option is required (":memory:" works).
func Register(r *datastore.Registry) {
	r.RegisterType("sqlite", func(name string, options map[string]interface{}, e *core.Engine) (datastore.Datastore, error) {
		filename, _ := options["filename"].(string)
		if filename == "" {
			return nil, errors.New(`sqlite datastore needs a "filename" option`)
		}
		return NewStore(name, filename, e), nil
	})
}

var schema = `
CREATE TABLE IF NOT EXISTS props (
  concept TEXT NOT NULL,
  id      TEXT NOT NULL,
  name    TEXT NOT NULL,
  value   TEXT,
  PRIMARY KEY (concept, id, name)
);
`

var noRow = errors.New("no row")

// Store is a SQLite-backed datastore.
type Store struct {
	// Debug enables chatty logging.
	Debug bool

	name     string
	filename string
	engine   *core.Engine
	announce *datastore.Announcer

	mu     sync.Mutex
	db     *sql.DB
	mapped map[string]map[string]bool
}

// NewStore makes a Store; call Init to open the database.
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
		log.Printf("sqlite.Store."+format, args...)
	}
}

// Init opens the database and creates the schema.
func (s *Store) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.filename)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return err
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

// Destroy closes the database.
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

func (s *Store) database() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, errors.New(`sqlite datastore "` + s.name + `" not initialized`)
	}
	return db, nil
}

// CreateBackingStore attaches this store to the property and
// announces the instance ids already in the table for the concept.
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
			return s.get(ctx, concept, id, property)
		},
		Set: func(ctx context.Context, id string, value interface{}) error {
			// Our own writes must not bounce back as
			// announcements.
			s.announce.Note(id)
			return s.set(ctx, concept, id, property, value)
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

func (s *Store) announceExisting(ctx context.Context, c *core.Concept) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT id FROM props WHERE concept = ?`, c.Name)
	if err != nil {
		return err
	}
	ids := make([]string, 0, 32)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range ids {
		s.logf("announce %s %s", c.Name, id)
		if err := s.announce.Announce(ctx, s.engine, c, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) get(ctx context.Context, concept, id, property string) (interface{}, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var js string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM props WHERE concept = ? AND id = ? AND name = ?`,
		concept, id, property).Scan(&js)
	if err == sql.ErrNoRows {
		return nil, noRow
	}
	if err != nil {
		return nil, err
	}
	var value interface{}
	if err := json.Unmarshal([]byte(js), &value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, concept, id, property string, value interface{}) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	js, err := json.Marshal(&value)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO props (concept, id, name, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (concept, id, name) DO UPDATE SET value = excluded.value`,
		concept, id, property, string(js))
	return err
}

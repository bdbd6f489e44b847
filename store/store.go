// Package store saves the properties of objects in a bbolt database, so
// that settings survive restarts of the application.
//
// Objects are keyed by their path: the object names of the object and its
// ancestors joined by slashes. Every object on the path must be named.
// Property values are stored as JSON.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	qcore "github.com/CrimsonAS/qcore/core"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrUnnamedObject is returned for objects that cannot be given a path,
	// because the object or one of its ancestors has no object name.
	ErrUnnamedObject = errors.New("store: object path has an unnamed object")
	// ErrNotSaved is returned by Restore when nothing was saved for the
	// object's path.
	ErrNotSaved = errors.New("store: no properties saved for object")
)

const bucketProperties = "properties"

// Object is the part of the object API the store uses. Every type embedding
// qcore.Object implements it.
type Object interface {
	qcore.AnyObject
	Type() *qcore.TypeDescriptor
	ObjectName() string
	Parent() qcore.AnyObject
	Property(name string) any
	SetProperty(name string, value any) error
	DynamicPropertyNames() []string
}

type Store struct {
	db  *bolt.DB
	log zerolog.Logger

	mu      sync.Mutex
	tracked map[qcore.AnyObject][]*qcore.Connection
}

// Open opens or creates the database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketProperties))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize %s: %w", path, err)
	}
	return &Store{
		db:      db,
		log:     log.With().Str("component", "store").Logger(),
		tracked: make(map[qcore.AnyObject][]*qcore.Connection),
	}, nil
}

// Close stops tracking objects and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	for obj, conns := range s.tracked {
		for _, c := range conns {
			c.Disconnect()
		}
		delete(s.tracked, obj)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// ObjectPath returns the key obj is saved under.
func ObjectPath(obj Object) (string, error) {
	var names []string
	for o := obj; o != nil; {
		name := o.ObjectName()
		if name == "" {
			return "", ErrUnnamedObject
		}
		names = append(names, name)
		parent, _ := o.Parent().(Object)
		o = parent
	}
	slices.Reverse(names)
	return strings.Join(names, "/"), nil
}

// values collects the storable properties of obj. objectName is part of the
// path and never stored.
func (s *Store) values(obj Object) map[string]json.RawMessage {
	values := make(map[string]json.RawMessage)
	add := func(name string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			s.log.Warn().Err(err).Str("property", name).Msg("property cannot be saved")
			return
		}
		values[name] = data
	}

	t := obj.Type()
	for i := range t.PropertyCount() {
		name := t.PropertyAt(i).Name
		if name != "objectName" {
			add(name, obj.Property(name))
		}
	}
	for _, name := range obj.DynamicPropertyNames() {
		add(name, obj.Property(name))
	}
	return values
}

// Save stores the declared and dynamic properties of obj, replacing what
// was saved for its path before.
func (s *Store) Save(obj Object) error {
	if obj.Type() == nil {
		return qcore.ErrNotInitialized
	}
	path, err := ObjectPath(obj)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s.values(obj))
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", path, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketProperties)).Put([]byte(path), data)
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", path, err)
	}
	s.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("saved")
	return nil
}

// Restore sets the properties of obj to the values saved for its path.
// Saved values that no longer fit a declared property are skipped; names
// that are not declared become dynamic properties.
func (s *Store) Restore(obj Object) error {
	if obj.Type() == nil {
		return qcore.ErrNotInitialized
	}
	path, err := ObjectPath(obj)
	if err != nil {
		return err
	}

	var data []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketProperties)).Get([]byte(path)); v != nil {
			data = slices.Clone(v)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: restore %s: %w", path, err)
	}
	if data == nil {
		return fmt.Errorf("%w: %s", ErrNotSaved, path)
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("store: decode %s: %w", path, err)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	t := obj.Type()
	for _, name := range names {
		var v reflect.Value
		if p := t.Property(name); p != nil {
			v = reflect.New(p.Type)
		} else {
			v = reflect.New(reflect.TypeFor[any]())
		}
		if err := json.Unmarshal(values[name], v.Interface()); err != nil {
			s.log.Warn().Err(err).Str("path", path).Str("property", name).Msg("saved value does not fit property")
			continue
		}
		if err := obj.SetProperty(name, v.Elem().Interface()); err != nil {
			s.log.Warn().Err(err).Str("path", path).Str("property", name).Msg("cannot restore property")
		}
	}
	return nil
}

// Track saves obj whenever one of its declared properties changes. Tracking
// an object twice has no effect; it is tracked until it is destroyed or the
// store is closed.
func (s *Store) Track(obj Object) error {
	t := obj.Type()
	if t == nil {
		return qcore.ErrNotInitialized
	}
	if _, err := ObjectPath(obj); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracked[obj]; ok {
		return nil
	}
	save := func() {
		if err := s.Save(obj); err != nil {
			s.log.Warn().Err(err).Msg("cannot save tracked object")
		}
	}
	var conns []*qcore.Connection
	for i := range t.PropertyCount() {
		p := t.PropertyAt(i)
		if p.Name == "objectName" || p.Notify == "" {
			continue
		}
		c, err := qcore.ConnectFunc(obj, p.Notify, save)
		if err != nil {
			for _, c := range conns {
				c.Disconnect()
			}
			return err
		}
		conns = append(conns, c)
	}
	c, err := qcore.ConnectFunc(obj, "destroyed", func() { s.untrack(obj) })
	if err != nil {
		for _, c := range conns {
			c.Disconnect()
		}
		return err
	}
	s.tracked[obj] = append(conns, c)
	return nil
}

func (s *Store) untrack(obj Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, obj)
}

// Keys returns the saved object paths in order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketProperties)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Delete removes what was saved for path.
func (s *Store) Delete(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketProperties)).Delete([]byte(path))
	})
}

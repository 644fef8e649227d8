// internal/storage/collection.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("no record with that key")
	ErrExists   = errors.New("key already taken")
)

// Record is a value stored in a Collection under its own key
type Record interface {
	Key() string
}

// Collection keeps JSON records in one namespace of a badger database.
// Keys are written as "<name>/<key>", so collections sharing a database
// never see each other's records.
type Collection struct {
	db   *badger.DB
	name string
}

func NewCollection(db *badger.DB, name string) *Collection {
	return &Collection{db: db, name: name}
}

func (c *Collection) prefix() []byte {
	return []byte(c.name + "/")
}

func (c *Collection) key(k string) []byte {
	return append(c.prefix(), k...)
}

// Insert stores rec and fails with ErrExists if its key is taken.
func (c *Collection) Insert(rec Record) error {
	k := rec.Key()
	if k == "" {
		return fmt.Errorf("%s: record has no key", c.name)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s %s: encoding: %w", c.name, k, err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		switch _, err := txn.Get(c.key(k)); {
		case err == nil:
			return fmt.Errorf("%s %s: %w", c.name, k, ErrExists)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(c.key(k), data)
	})
}

// Load decodes the record stored under k into into.
func (c *Collection) Load(k string, into any) error {
	return c.db.View(func(txn *badger.Txn) error {
		item, err := c.lookup(txn, k)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, into); err != nil {
				return fmt.Errorf("%s %s: decoding: %w", c.name, k, err)
			}
			return nil
		})
	})
}

// Remove drops the record stored under k.
func (c *Collection) Remove(k string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if _, err := c.lookup(txn, k); err != nil {
			return err
		}
		return txn.Delete(c.key(k))
	})
}

func (c *Collection) lookup(txn *badger.Txn, k string) (*badger.Item, error) {
	item, err := txn.Get(c.key(k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s %s: %w", c.name, k, ErrNotFound)
	}
	return item, err
}

// All decodes every record of the collection into into, a pointer to a
// slice. An empty collection yields an empty, non-nil slice.
func (c *Collection) All(into any) error {
	raw := []json.RawMessage{}
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: c.prefix(), PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			raw = append(raw, val)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.name, err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, into)
}

package kmstest

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Store persists user accounts across Server restarts. Pending challenges
// and access tokens are never stored.
type Store interface {
	Load() ([]User, error)
	Save(u User) error
}

const userPrefix = "user/"

// BadgerStore is a Store backed by a badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates the database in dir. An empty dir keeps
// the database in memory.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open user store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Save implements Store.
func (b *BadgerStore) Save(u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userPrefix+u.Username), data)
	})
}

// Load implements Store.
func (b *BadgerStore) Load() ([]User, error) {
	var users []User
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var u User
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &u)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			users = append(users, u)
		}
		return nil
	})
	return users, err
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

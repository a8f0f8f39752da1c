// Package blobstore is vecdb's opaque key-value blob bucket. It stands in
// for the external LMDB collaborator: callers hand it raw bytes keyed by
// collection+key and get them back unchanged. vecdb's core never inspects
// what's stored here — large payload blobs, externally-sourced point
// metadata, anything too big to want decoded on every collection load.
//
// Backed by Badger (an embedded LSM key-value store) rather than LMDB
// itself, since the store is used purely as an opaque bucket: ACID
// single-key get/put/delete over one embedded engine, nothing LMDB-specific
// is required.
package blobstore

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Store is an opaque collection-scoped blob bucket.
type Store struct {
	db *badger.DB
}

// Options configures the underlying engine.
type Options struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
}

// Open opens (or creates) a blob store rooted at opts.DataDir.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithValueThreshold(1024)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func compositeKey(collection, key string) []byte {
	buf := make([]byte, 0, len(collection)+len(key)+1)
	buf = append(buf, collection...)
	buf = append(buf, 0x00)
	buf = append(buf, key...)
	return buf
}

// Put stores value under collection/key, overwriting any prior value.
func (s *Store) Put(collection, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(compositeKey(collection, key), value)
	})
}

// Get returns the blob stored under collection/key, or ErrKeyNotFound.
func (s *Store) Get(collection, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(compositeKey(collection, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: get: %w", err)
	}
	return out, nil
}

// Delete removes the blob stored under collection/key. Deleting a missing
// key is not an error.
func (s *Store) Delete(collection, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(compositeKey(collection, key))
	})
}

// DeleteCollection removes every blob belonging to collection.
func (s *Store) DeleteCollection(collection string) error {
	prefix := append([]byte(collection), 0x00)
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, append([]byte(nil), it.Item().Key()...))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Keys returns every key stored under collection, without its prefix.
func (s *Store) Keys(collection string) ([]string, error) {
	prefix := append([]byte(collection), 0x00)
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			out = append(out, string(bytes.TrimPrefix(k, prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: keys: %w", err)
	}
	return out, nil
}

// Close releases the underlying engine.
func (s *Store) Close() error {
	return s.db.Close()
}

// ErrKeyNotFound is returned by Get when collection/key has no value.
var ErrKeyNotFound = fmt.Errorf("blobstore: key not found")

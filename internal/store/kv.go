package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by KV.Get for missing or expired keys
var ErrNotFound = errors.New("key not found")

// KV is a small expiring key-value store on BadgerDB
type KV struct {
	db *badger.DB
}

// OpenKV opens BadgerDB at path. An empty path opens an in-memory instance.
func OpenKV(path string) (*KV, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path).
			WithNumVersionsToKeep(1).
			WithCompactL0OnClose(true).
			WithValueLogFileSize(16 << 20). // 16MB value log files
			WithMemTableSize(16 << 20)      // 16MB memtable
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &KV{db: db}, nil
}

// Get returns the value for key, or ErrNotFound
func (k *KV) Get(key string) ([]byte, error) {
	var val []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

// Set stores value under key. A zero ttl never expires.
func (k *KV) Set(key string, value []byte, ttl time.Duration) error {
	return k.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes key
func (k *KV) Delete(key string) error {
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// RunGC reclaims value-log space until there is nothing left to rewrite.
// In-memory instances have no value log and return nil.
func (k *KV) RunGC(discardRatio float64) error {
	if k.db.Opts().InMemory {
		return nil
	}
	for {
		err := k.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close closes the underlying database
func (k *KV) Close() error {
	return k.db.Close()
}

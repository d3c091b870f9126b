// Package kv is the embedded record store used when STORE_DRIVER=leveldb.
// Values are JSON documents under prefixed keys; secondary indexes are plain
// keys whose value is the primary key.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lverrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("kv: not found")

// Store wraps a LevelDB handle.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) a database directory. A corrupted manifest is
// recovered once before giving up.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if lverrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a store backed by memory only.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports an error once the database has been closed.
func (s *Store) Ping(_ context.Context) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return err
	}
	snap.Release()
	return nil
}

// Get returns the raw value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// Put stores a raw value.
func (s *Store) Put(key string, value []byte) error {
	return s.db.Put([]byte(key), value, nil)
}

// GetJSON decodes the document stored under key into v.
func (s *Store) GetJSON(key string, v interface{}) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key.
func (s *Store) PutJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(key, raw)
}

// Has reports whether key exists.
func (s *Store) Has(key string) (bool, error) {
	return s.db.Has([]byte(key), nil)
}

// Each calls fn for every key with the given prefix, in key order. Iteration
// stops at the first error returned by fn.
func (s *Store) Each(prefix string, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		// the iterator reuses its buffers
		value := append([]byte(nil), iter.Value()...)
		if err := fn(string(iter.Key()), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Batch groups writes that must land atomically.
type Batch struct {
	b   leveldb.Batch
	err error
}

// NewBatch starts an empty batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{}
}

// Put queues a raw write.
func (b *Batch) Put(key string, value []byte) {
	b.b.Put([]byte(key), value)
}

// PutJSON queues an encoded write. Encoding errors surface from Write.
func (b *Batch) PutJSON(key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("encode %s: %w", key, err)
		}
		return
	}
	b.b.Put([]byte(key), raw)
}

// Delete queues a delete.
func (b *Batch) Delete(key string) {
	b.b.Delete([]byte(key))
}

// Write applies the batch atomically.
func (s *Store) Write(b *Batch) error {
	if b.err != nil {
		return b.err
	}
	return s.db.Write(&b.b, nil)
}

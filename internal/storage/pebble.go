package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// ColumnFamily is a key prefix that partitions the keyspace
type ColumnFamily string

const (
	CFTransfers ColumnFamily = "atr:" // per-address transfer entries
	CFIndexMeta ColumnFamily = "idx:" // import bookkeeping per chain
)

func (cf ColumnFamily) key(k []byte) []byte {
	out := make([]byte, 0, len(cf)+len(k))
	return append(append(out, cf...), k...)
}

// PebbleDB wraps the Pebble database of one chain's transfer index
type PebbleDB struct {
	db         *pebble.DB
	importMode bool // writes skip fsync; callers flush with Sync at checkpoints
}

// NewPebbleDB opens (or creates) the database at path
func NewPebbleDB(path string) (*PebbleDB, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	cache := pebble.NewCache(128 << 20)
	defer cache.Unref()

	return openPebble(path, &pebble.Options{
		Cache:        cache,
		MaxOpenFiles: 500,
	})
}

// NewInMemoryPebbleDB creates a PebbleDB backed by an in-memory filesystem
func NewInMemoryPebbleDB() (*PebbleDB, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(path string, opts *pebble.Options) (*PebbleDB, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &PebbleDB{db: db}, nil
}

// Close closes the database
func (p *PebbleDB) Close() error {
	return p.db.Close()
}

// SetImportMode toggles unsynced writes for bulk imports
func (p *PebbleDB) SetImportMode(enabled bool) {
	p.importMode = enabled
}

// IsImportMode reports whether writes currently skip fsync
func (p *PebbleDB) IsImportMode() bool {
	return p.importMode
}

// Sync flushes memtables to disk
func (p *PebbleDB) Sync() error {
	return p.db.Flush()
}

func (p *PebbleDB) writeOptions() *pebble.WriteOptions {
	if p.importMode {
		return pebble.NoSync
	}
	return pebble.Sync
}

// Put stores value under key in cf
func (p *PebbleDB) Put(cf ColumnFamily, key, value []byte) error {
	return p.db.Set(cf.key(key), value, p.writeOptions())
}

// Get returns a copy of the value under key in cf, or nil when absent
func (p *PebbleDB) Get(cf ColumnFamily, key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(cf.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return append([]byte(nil), value...), nil
}

// Has reports whether key exists in cf
func (p *PebbleDB) Has(cf ColumnFamily, key []byte) (bool, error) {
	_, closer, err := p.db.Get(cf.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

// Delete removes key from cf
func (p *PebbleDB) Delete(cf ColumnFamily, key []byte) error {
	return p.db.Delete(cf.key(key), p.writeOptions())
}

// Batch collects writes that are committed atomically
type Batch struct {
	batch *pebble.Batch
	db    *PebbleDB
}

// NewBatch creates an empty batch
func (p *PebbleDB) NewBatch() *Batch {
	return &Batch{batch: p.db.NewBatch(), db: p}
}

// Put adds a write to the batch
func (b *Batch) Put(cf ColumnFamily, key, value []byte) error {
	return b.batch.Set(cf.key(key), value, nil)
}

// Delete adds a deletion to the batch
func (b *Batch) Delete(cf ColumnFamily, key []byte) error {
	return b.batch.Delete(cf.key(key), nil)
}

// Empty reports whether nothing was added to the batch
func (b *Batch) Empty() bool {
	return b.batch.Empty()
}

// Commit applies the batch using the database's current sync mode
func (b *Batch) Commit() error {
	return b.batch.Commit(b.db.writeOptions())
}

// Close releases the batch
func (b *Batch) Close() {
	_ = b.batch.Close()
}

// Iterator walks the keys of one prefix within a column family
type Iterator struct {
	iter *pebble.Iterator
	cf   ColumnFamily
}

// NewPrefixIterator returns an iterator positioned at the first key under prefix in cf
func (p *PebbleDB) NewPrefixIterator(cf ColumnFamily, prefix []byte) (*Iterator, error) {
	lower := cf.key(prefix)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return nil, err
	}

	iter.First()
	return &Iterator{iter: iter, cf: cf}, nil
}

// prefixUpperBound returns the smallest key greater than every key starting with prefix
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// Valid reports whether the iterator is positioned at a key
func (i *Iterator) Valid() bool {
	return i.iter.Valid()
}

// Next advances the iterator
func (i *Iterator) Next() bool {
	return i.iter.Next()
}

// Key returns the current key without its column family prefix.
// The slice is only valid until the next call to Next.
func (i *Iterator) Key() []byte {
	return i.iter.Key()[len(i.cf):]
}

// Value returns the current value, valid until the next call to Next
func (i *Iterator) Value() []byte {
	return i.iter.Value()
}

// Close releases the iterator
func (i *Iterator) Close() error {
	return i.iter.Close()
}

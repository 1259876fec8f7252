package storage

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
)

// Store is the shared Pebble database for the ledger and the exchange.
// Both layers write through it so that a settlement (four balance moves plus
// the fill record) can be committed as a single batch. Callers provide their
// own key schemas; Store only knows bytes.
type Store struct {
	db *pebble.DB
}

// KV is a staged write, used to piggyback exchange state onto a ledger commit.
type KV struct {
	Key   []byte
	Value []byte
}

func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the value for key, or (nil, false) if absent.
// The returned slice is a copy and safe to retain.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Set writes a single key durably. Used for state outside the settlement path
// (deposits, approvals, cancel flags, registrations).
func (s *Store) Set(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Has reports whether key exists.
func (s *Store) Has(key []byte) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

// Commit writes all staged entries atomically with fsync. This is the sole
// commit boundary of a settlement: either every entry lands or none does.
func (s *Store) Commit(kvs []KV) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range kvs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return fmt.Errorf("failed to stage %q: %w", kv.Key, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Scan calls fn for every key with the given prefix. fn receives copies.
func (s *Store) Scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan:
// the prefix with its last byte incremented.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// EncodeBig renders a non-negative big.Int for storage. Decimal text keeps the
// database inspectable with pebble tooling.
func EncodeBig(v *big.Int) []byte {
	if v == nil {
		return []byte("0")
	}
	return []byte(v.String())
}

// DecodeBig parses a stored amount. Missing or malformed values read as zero,
// so lazily created records need no sentinel.
func DecodeBig(data []byte) *big.Int {
	v, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

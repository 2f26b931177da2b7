// txstore.go - Persistent per-leaf transaction payload store.
//
// Maps leaf indices to opaque payload blobs (ciphertext, memo). The index
// space is shared with the commitment tree but nothing here enforces a
// relationship: payloads may be pruned while the tree keeps growing, and the
// tree may hold leaves with no payload in view. Callers keep the two in sync.

package txstore

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Store is a durable sparse array of payloads keyed by leaf index.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates the payload database at path. An empty path opens an
// in-memory database, used by tests.
func Open(path string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, &zeropool.StorageError{Op: "open", Err: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

// Add upserts the payload at index, silently overwriting an existing entry.
func (s *Store) Add(index uint64, payload []byte) error {
	if err := s.db.Put(indexKey(index), payload, nil); err != nil {
		return &zeropool.StorageError{Op: "put", Err: err}
	}
	return nil
}

// Get returns the payload at index. A missing payload is not an error:
// indices outside the caller's view are expected to be absent.
func (s *Store) Get(index uint64) ([]byte, bool, error) {
	data, err := s.db.Get(indexKey(index), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &zeropool.StorageError{Op: "get", Err: err}
	}
	return data, true, nil
}

// Delete removes the entry at index. Deleting an absent entry is a no-op.
func (s *Store) Delete(index uint64) error {
	if err := s.db.Delete(indexKey(index), nil); err != nil {
		return &zeropool.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// Count returns the number of stored payloads, for integrity cross-checks
// against the tree's next free index.
func (s *Store) Count() (uint64, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var n uint64
	for iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, &zeropool.StorageError{Op: "iterate", Err: err}
	}
	return n, nil
}

// IterAll visits every stored payload in ascending index order.
func (s *Store) IterAll(visit func(index uint64, payload []byte) error) error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		index := binary.BigEndian.Uint64(iter.Key())
		if err := visit(index, iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return &zeropool.StorageError{Op: "iterate", Err: err}
	}
	return nil
}

// RemoveAllAfter deletes every entry with index >= index, mirroring a tree
// rollback on the payload side.
func (s *Store) RemoveAllAfter(index uint64) error {
	iter := s.db.NewIterator(&util.Range{Start: indexKey(index)}, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return &zeropool.StorageError{Op: "iterate", Err: err}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return &zeropool.StorageError{Op: "write", Err: err}
	}
	return nil
}

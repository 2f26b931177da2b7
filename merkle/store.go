// store.go - LevelDB-backed sparse node store for the commitment tree.
//
// The store maps (height, index) coordinates to field-element values. Absent
// entries mean "empty subtree of that height"; the tree layer substitutes the
// precomputed constant. Keys are a one-byte column tag followed by big-endian
// height and index, so iteration order within a column is (height, index)
// order. All mutation is staged on a leveldb.Batch and written in one call,
// making each tree operation atomic with respect to readers and crashes.

package merkle

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Store columns. Nodes hold hash values, markers flag commitment placeholders
// at height OutLog, meta holds the persisted next free leaf index.
const (
	colNodes   = 0x00
	colMarkers = 0x01
	colMeta    = 0x02
)

var nextIndexKey = append([]byte{colMeta}, []byte("next_index")...)

// Node is one stored entry of the sparse tree, used for snapshot dumps.
type Node struct {
	Height     uint32        `json:"height"`
	Index      uint64        `json:"index"`
	Value      zeropool.Hash `json:"value"`
	Commitment bool          `json:"commitment,omitempty"`
}

// Store is the persistent node mapping owned by a Tree.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens or creates the node database at path. An empty path opens
// an in-memory database, used by tests.
func OpenStore(path string) (*Store, error) {
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

func nodeKey(col byte, height uint32, index uint64) []byte {
	key := make([]byte, 13)
	key[0] = col
	binary.BigEndian.PutUint32(key[1:5], height)
	binary.BigEndian.PutUint64(key[5:13], index)
	return key
}

func parseNodeKey(key []byte) (height uint32, index uint64) {
	height = binary.BigEndian.Uint32(key[1:5])
	index = binary.BigEndian.Uint64(key[5:13])
	return height, index
}

// GetNode returns the stored value at (height, index) and whether it exists.
func (s *Store) GetNode(height uint32, index uint64) (zeropool.Hash, bool, error) {
	var h zeropool.Hash
	data, err := s.db.Get(nodeKey(colNodes, height, index), nil)
	if err == leveldb.ErrNotFound {
		return h, false, nil
	}
	if err != nil {
		return h, false, &zeropool.StorageError{Op: "get", Err: err}
	}
	h, err = zeropool.HashFromBytes(data)
	if err != nil {
		return h, false, err
	}
	return h, true, nil
}

// HasMarker reports whether (height, index) holds a commitment placeholder
// rather than a value computed from known children.
func (s *Store) HasMarker(height uint32, index uint64) (bool, error) {
	ok, err := s.db.Has(nodeKey(colMarkers, height, index), nil)
	if err != nil {
		return false, &zeropool.StorageError{Op: "get", Err: err}
	}
	return ok, nil
}

// NextIndex returns the persisted next free leaf index, if any.
func (s *Store) NextIndex() (uint64, bool, error) {
	data, err := s.db.Get(nextIndexKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &zeropool.StorageError{Op: "get", Err: err}
	}
	if len(data) != 8 {
		return 0, false, &zeropool.DecodeError{What: "next_index", Reason: "expected 8 bytes"}
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func putNode(batch *leveldb.Batch, height uint32, index uint64, h zeropool.Hash) {
	batch.Put(nodeKey(colNodes, height, index), zeropool.HashToBytes(h))
}

func deleteNode(batch *leveldb.Batch, height uint32, index uint64) {
	batch.Delete(nodeKey(colNodes, height, index))
	batch.Delete(nodeKey(colMarkers, height, index))
}

func putMarker(batch *leveldb.Batch, height uint32, index uint64) {
	batch.Put(nodeKey(colMarkers, height, index), []byte{1})
}

func deleteMarker(batch *leveldb.Batch, height uint32, index uint64) {
	batch.Delete(nodeKey(colMarkers, height, index))
}

func putNextIndex(batch *leveldb.Batch, next uint64) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, next)
	batch.Put(nextIndexKey, data)
}

// Write commits a staged batch.
func (s *Store) Write(batch *leveldb.Batch) error {
	if err := s.db.Write(batch, nil); err != nil {
		return &zeropool.StorageError{Op: "write", Err: err}
	}
	return nil
}

// AllNodes returns the full sparse dump, in (height, index) order.
func (s *Store) AllNodes() ([]Node, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{colNodes}), nil)
	defer iter.Release()

	var nodes []Node
	for iter.Next() {
		height, index := parseNodeKey(iter.Key())
		value, err := zeropool.HashFromBytes(iter.Value())
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, Node{Height: height, Index: index, Value: value})
	}
	if err := iter.Error(); err != nil {
		return nil, &zeropool.StorageError{Op: "iterate", Err: err}
	}
	return nodes, nil
}

// NodesInRange visits stored entries at the given height with index in
// [from, to), in ascending index order.
func (s *Store) NodesInRange(height uint32, from, to uint64, visit func(index uint64, value []byte) error) error {
	if from >= to {
		return nil
	}
	rng := &util.Range{
		Start: nodeKey(colNodes, height, from),
		Limit: nodeKey(colNodes, height, to),
	}
	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	for iter.Next() {
		_, index := parseNodeKey(iter.Key())
		if err := visit(index, iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return &zeropool.StorageError{Op: "iterate", Err: err}
	}
	return nil
}

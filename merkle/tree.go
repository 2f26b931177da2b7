// tree.go - Incremental sparse Merkle tree over the persistent node store.
//
// The tree is conceptually dense with 2^Height leaves but only materializes
// nodes on the paths of inserted leaves; everything else defaults to the
// precomputed empty-subtree constant of its height. Two kinds of content can
// occupy a coordinate: a hash computed from known children, or a commitment
// placeholder at height OutLog standing in for a whole transaction batch
// whose individual leaves are not yet known. Ancestors never distinguish the
// two; the marker column only matters for supersession and rollback.
//
// Writers must be externally serialized per tree instance. Readers may
// interleave freely; one insertion (leaf write plus ancestor recomputation)
// is the unit of atomicity.

package merkle

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Tree is the global commitment Merkle tree of one pool instance.
type Tree struct {
	mu            sync.RWMutex
	store         *Store
	defaultHashes [zeropool.Height + 1]zeropool.Hash
	nextIndex     uint64
}

// NewTree opens or creates a tree persisted at path. An empty path keeps the
// tree in memory. On reopen the next free index is resumed from the store,
// falling back to a leaf scan for databases written before it was persisted.
func NewTree(path string) (*Tree, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return NewTreeWithStore(store)
}

// NewTreeWithStore wraps an already-open node store.
func NewTreeWithStore(store *Store) (*Tree, error) {
	t := &Tree{
		store:         store,
		defaultHashes: zeropool.DefaultHashes(),
	}

	next, ok, err := store.NextIndex()
	if err != nil {
		return nil, err
	}
	if !ok {
		next, err = scanNextIndex(store)
		if err != nil {
			return nil, err
		}
	}
	t.nextIndex = next
	return t, nil
}

func scanNextIndex(store *Store) (uint64, error) {
	var next uint64
	err := store.NodesInRange(0, 0, zeropool.Capacity, func(index uint64, _ []byte) error {
		if index+1 > next {
			next = index + 1
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	// Commitment placeholders reserve their whole batch.
	err = store.NodesInRange(zeropool.OutLog, 0, zeropool.Capacity>>zeropool.OutLog, func(index uint64, _ []byte) error {
		marked, err := store.HasMarker(zeropool.OutLog, index)
		if err != nil {
			return err
		}
		if covered := (index + 1) << zeropool.OutLog; marked && covered > next {
			next = covered
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Close releases the underlying store.
func (t *Tree) Close() error {
	return t.store.Close()
}

// capacityAt is the number of node slots at a height.
func capacityAt(height uint32) uint64 {
	return uint64(1) << (zeropool.Height - height)
}

// NextIndex returns the lowest leaf index never yet written.
func (t *Tree) NextIndex() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextIndex
}

// AddHash writes a leaf value at index and recomputes every ancestor up to
// the root. The next free index advances to max(nextIndex, index+1).
func (t *Tree) AddHash(index uint64, hash zeropool.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addHashAtHeight(0, index, hash, false)
}

// AppendHash writes hash at the next free index and returns the index used.
func (t *Tree) AppendHash(hash zeropool.Hash) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	index := t.nextIndex
	if err := t.addHashAtHeight(0, index, hash, false); err != nil {
		return 0, err
	}
	return index, nil
}

// AddCommitment writes a commitment placeholder at (OutLog, index): the
// aggregate value of a transaction batch whose individual leaves are not yet
// known. Ancestors are updated exactly as for a leaf insertion. Inserting
// the batch's leaves later supersedes the placeholder without changing any
// ancestor, since they recompute to the same aggregate.
func (t *Tree) AddCommitment(index uint64, hash zeropool.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addHashAtHeight(zeropool.OutLog, index, hash, true)
}

func (t *Tree) addHashAtHeight(height uint32, index uint64, hash zeropool.Hash, commitment bool) error {
	if index >= capacityAt(height) {
		return &zeropool.OutOfRangeError{What: "index", Index: index, Limit: capacityAt(height)}
	}

	batch := new(leveldb.Batch)
	putNode(batch, height, index, hash)
	if commitment {
		putMarker(batch, height, index)
	}
	if err := t.updatePath(batch, height, index, hash); err != nil {
		return err
	}

	next := t.nextIndex
	if covered := (index + 1) << height; covered > next {
		next = covered
	}
	putNextIndex(batch, next)

	if err := t.store.Write(batch); err != nil {
		return err
	}
	t.nextIndex = next
	return nil
}

// updatePath stages the recomputation of every ancestor of (height, index),
// combining the fresh child value with the stored-or-empty sibling at each
// level.
func (t *Tree) updatePath(batch *leveldb.Batch, height uint32, index uint64, hash zeropool.Hash) error {
	childIndex := index
	childHash := hash
	for h := height + 1; h <= zeropool.Height; h++ {
		sibling, err := t.getNode(h-1, childIndex^1)
		if err != nil {
			return err
		}

		var parent zeropool.Hash
		if childIndex&1 == 0 {
			parent = zeropool.Compress(childHash, sibling)
		} else {
			parent = zeropool.Compress(sibling, childHash)
		}

		parentIndex := childIndex >> 1
		putNode(batch, h, parentIndex, parent)
		if h == zeropool.OutLog {
			// A value recomputed from known children supersedes any
			// commitment placeholder at this coordinate.
			deleteMarker(batch, h, parentIndex)
		}

		childIndex = parentIndex
		childHash = parent
	}
	return nil
}

// getNode returns the stored value or the empty-subtree constant.
// Callers hold at least a read lock.
func (t *Tree) getNode(height uint32, index uint64) (zeropool.Hash, error) {
	h, ok, err := t.store.GetNode(height, index)
	if err != nil {
		return h, err
	}
	if !ok {
		return t.defaultHashes[height], nil
	}
	return h, nil
}

// GetNode returns the node value at (height, index); absent coordinates
// yield the empty-subtree constant for that height.
func (t *Tree) GetNode(height uint32, index uint64) (zeropool.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero zeropool.Hash
	if height > zeropool.Height {
		return zero, &zeropool.OutOfRangeError{What: "height", Index: uint64(height), Limit: zeropool.Height + 1}
	}
	if index >= capacityAt(height) {
		return zero, &zeropool.OutOfRangeError{What: "index", Index: index, Limit: capacityAt(height)}
	}
	return t.getNode(height, index)
}

// Root returns the current root value.
func (t *Tree) Root() (zeropool.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.getNode(zeropool.Height, 0)
}

// GetProof returns the authentication path of a written leaf: exactly Height
// sibling values with the side bit of each level. Requesting a never-written
// leaf fails; callers check NextIndex first.
func (t *Tree) GetProof(index uint64) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.proofFrom(0, index)
}

// GetCommitmentProof is GetProof for a commitment node: the path starts at
// height OutLog and has Height-OutLog levels.
func (t *Tree) GetCommitmentProof(index uint64) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.proofFrom(zeropool.OutLog, index)
}

func (t *Tree) proofFrom(height uint32, index uint64) (*Proof, error) {
	if index >= capacityAt(height) {
		return nil, &zeropool.OutOfRangeError{What: "index", Index: index, Limit: capacityAt(height)}
	}
	_, ok, err := t.store.GetNode(height, index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &zeropool.OutOfRangeError{What: "leaf", Index: index, Limit: t.nextIndex >> height}
	}

	n := zeropool.Height - height
	proof := &Proof{
		Siblings: make([]zeropool.Hash, n),
		Path:     make([]bool, n),
	}
	x := index
	for i := uint32(0); i < n; i++ {
		proof.Path[i] = x&1 == 1
		sibling, err := t.getNode(height+i, x^1)
		if err != nil {
			return nil, err
		}
		proof.Siblings[i] = sibling
		x >>= 1
	}
	return proof, nil
}

// GetAllNodes dumps the sparse store for snapshot export.
func (t *Tree) GetAllNodes() ([]Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodes, err := t.store.AllNodes()
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		if nodes[i].Height == zeropool.OutLog {
			marked, err := t.store.HasMarker(nodes[i].Height, nodes[i].Index)
			if err != nil {
				return nil, err
			}
			nodes[i].Commitment = marked
		}
	}
	return nodes, nil
}

// ImportNodes loads a snapshot produced by GetAllNodes into an empty tree.
func (t *Tree) ImportNodes(nodes []Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch := new(leveldb.Batch)
	next := uint64(0)
	for _, n := range nodes {
		if n.Height > zeropool.Height || n.Index >= capacityAt(n.Height) {
			return &zeropool.OutOfRangeError{What: "node index", Index: n.Index, Limit: capacityAt(n.Height)}
		}
		putNode(batch, n.Height, n.Index, n.Value)
		if n.Commitment {
			putMarker(batch, n.Height, n.Index)
		}
		var covered uint64
		switch {
		case n.Height == 0:
			covered = n.Index + 1
		case n.Commitment:
			covered = (n.Index + 1) << n.Height
		}
		if covered > next {
			next = covered
		}
	}
	putNextIndex(batch, next)

	if err := t.store.Write(batch); err != nil {
		return err
	}
	t.nextIndex = next
	return nil
}

// GetLeavesAfter returns the stored leaves with index >= index, ascending.
func (t *Tree) GetLeavesAfter(index uint64) ([]Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var leaves []Node
	err := t.store.NodesInRange(0, index, zeropool.Capacity, func(i uint64, value []byte) error {
		h, err := zeropool.HashFromBytes(value)
		if err != nil {
			return err
		}
		leaves = append(leaves, Node{Height: 0, Index: i, Value: h})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

// Rollback erases every leaf at position >= index together with all node
// values that depended on them, and resets the next free index to index. The
// resulting state is identical to that of a tree which never saw the erased
// insertions. A commitment batch straddling the cut point is discarded
// whole. All erasures and boundary recomputations land in one batch, so a
// storage failure leaves the previous state intact.
func (t *Tree) Rollback(index uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index >= t.nextIndex {
		return nil
	}
	old := t.nextIndex
	batch := new(leveldb.Batch)

	err := t.store.NodesInRange(0, index, old, func(i uint64, _ []byte) error {
		deleteNode(batch, 0, i)
		return nil
	})
	if err != nil {
		return err
	}

	// Boundary carry: the recomputed value of the ancestor of leaf index-1
	// at each height, plus whether anything stored survives beneath it.
	var carry zeropool.Hash
	carryStored := false
	if index > 0 {
		var ok bool
		carry, ok, err = t.store.GetNode(0, index-1)
		if err != nil {
			return err
		}
		if !ok {
			carry = t.defaultHashes[0]
		}
		carryStored = ok
	}

	for h := uint32(1); h <= zeropool.Height; h++ {
		// Nodes whose whole descendant range is erased.
		firstFull := (index + (uint64(1) << h) - 1) >> h
		lastStored := (old - 1) >> h
		err := t.store.NodesInRange(h, firstFull, lastStored+1, func(i uint64, _ []byte) error {
			deleteNode(batch, h, i)
			return nil
		})
		if err != nil {
			return err
		}
		if index == 0 {
			continue
		}

		b := (index - 1) >> h
		if (b+1)<<h == index {
			// The boundary subtree lies entirely below the cut; its stored
			// value is still valid and is carried upward unchanged.
			carry, carryStored, err = t.keptValue(h, b)
			if err != nil {
				return err
			}
			continue
		}

		if h == zeropool.OutLog {
			marked, err := t.store.HasMarker(h, b)
			if err != nil {
				return err
			}
			if marked {
				// A commitment placeholder covering erased slots cannot be
				// split; discard the whole batch.
				deleteNode(batch, h, b)
				carry = t.defaultHashes[h]
				carryStored = false
				continue
			}
		}

		boundaryChild := (index - 1) >> (h - 1)
		var left, right zeropool.Hash
		var leftStored, rightStored bool
		if boundaryChild&1 == 0 {
			left, leftStored = carry, carryStored
			// The right child's range starts at or beyond the cut.
			right, rightStored = t.defaultHashes[h-1], false
		} else {
			right, rightStored = carry, carryStored
			left, leftStored, err = t.keptValue(h-1, boundaryChild^1)
			if err != nil {
				return err
			}
		}

		carry = zeropool.Compress(left, right)
		carryStored = leftStored || rightStored
		if carryStored {
			putNode(batch, h, b, carry)
		} else {
			deleteNode(batch, h, b)
			carry = t.defaultHashes[h]
		}
	}

	putNextIndex(batch, index)
	if err := t.store.Write(batch); err != nil {
		return err
	}
	t.nextIndex = index
	return nil
}

// keptValue reads a node untouched by the rollback: its stored value if
// present, else the empty constant.
func (t *Tree) keptValue(height uint32, index uint64) (zeropool.Hash, bool, error) {
	v, ok, err := t.store.GetNode(height, index)
	if err != nil {
		return v, false, err
	}
	if !ok {
		return t.defaultHashes[height], false, nil
	}
	return v, true, nil
}

// virtual.go - Node values computed against an overlay of uncommitted leaves.
//
// A client building a transaction may reference predecessor leaves that exist
// only in memory, ahead of chain confirmation. The overlay computation
// answers "what would this node be if those leaves were already inserted"
// without writing anything: coordinates fully outside the overlay range read
// the store, coordinates inside recurse into both children and combine.
// Intermediate results are memoized into the overlay map, so a series of
// queries against the same overlay stays O(Height) amortized.

package merkle

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Coord addresses one node of the conceptual dense tree.
type Coord struct {
	Height uint32
	Index  uint64
}

// Overlay is a scratch map of hypothetical node values, keyed by coordinate.
// Callers seed it with leaf hashes at height 0; the tree memoizes computed
// inner nodes into it.
type Overlay = map[Coord]zeropool.Hash

// NewLeafOverlay seeds an overlay with consecutive leaf hashes starting at
// startIndex, returning the overlay and its covered range.
func NewLeafOverlay(startIndex uint64, hashes []zeropool.Hash) (Overlay, uint64, uint64) {
	overlay := make(Overlay, 2*len(hashes))
	for i, h := range hashes {
		overlay[Coord{Height: 0, Index: startIndex + uint64(i)}] = h
	}
	return overlay, startIndex, startIndex + uint64(len(hashes))
}

// GetVirtualNode computes the node value at (height, index) as if the overlay
// leaves covering [left, right) were already inserted. The store is never
// mutated; concurrent readers stay safe.
func (t *Tree) GetVirtualNode(height uint32, index uint64, overlay Overlay, left, right uint64) (zeropool.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero zeropool.Hash
	if height > zeropool.Height {
		return zero, &zeropool.OutOfRangeError{What: "height", Index: uint64(height), Limit: zeropool.Height + 1}
	}
	if index >= capacityAt(height) {
		return zero, &zeropool.OutOfRangeError{What: "index", Index: index, Limit: capacityAt(height)}
	}
	return t.virtualNode(height, index, overlay, left, right)
}

func (t *Tree) virtualNode(height uint32, index uint64, overlay Overlay, left, right uint64) (zeropool.Hash, error) {
	nodeLeft := index << height
	nodeRight := (index + 1) << height
	if nodeRight <= left || right <= nodeLeft {
		// Entirely outside the overlay: the committed value stands.
		return t.getNode(height, index)
	}

	key := Coord{Height: height, Index: index}
	if v, ok := overlay[key]; ok {
		return v, nil
	}
	if height == 0 {
		// A hole inside the overlay range falls back to the committed value.
		return t.getNode(height, index)
	}

	l, err := t.virtualNode(height-1, 2*index, overlay, left, right)
	if err != nil {
		return l, err
	}
	r, err := t.virtualNode(height-1, 2*index+1, overlay, left, right)
	if err != nil {
		return r, err
	}
	v := zeropool.Compress(l, r)
	overlay[key] = v
	return v, nil
}

// GetProofAfterVirtual returns authentication paths for hashes as if they
// were appended at the next free indices, without committing them. Used to
// pipeline transaction creation ahead of confirmation.
func (t *Tree) GetProofAfterVirtual(hashes []zeropool.Hash) ([]*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	offset := t.nextIndex
	overlay, left, right := NewLeafOverlay(offset, hashes)

	proofs := make([]*Proof, len(hashes))
	for i := range hashes {
		index := offset + uint64(i)
		proof := &Proof{
			Siblings: make([]zeropool.Hash, zeropool.Height),
			Path:     make([]bool, zeropool.Height),
		}
		x := index
		for h := uint32(0); h < zeropool.Height; h++ {
			proof.Path[h] = x&1 == 1
			sibling, err := t.virtualNode(h, x^1, overlay, left, right)
			if err != nil {
				return nil, err
			}
			proof.Siblings[h] = sibling
			x >>= 1
		}
		proofs[i] = proof
	}
	return proofs, nil
}

// AddHashes inserts consecutive leaves starting at startIndex with a single
// ancestor recomputation pass shared by the whole batch.
func (t *Tree) AddHashes(startIndex uint64, hashes []zeropool.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(hashes) == 0 {
		return nil
	}
	end := startIndex + uint64(len(hashes))
	if end > zeropool.Capacity {
		return &zeropool.OutOfRangeError{What: "index", Index: end - 1, Limit: zeropool.Capacity}
	}

	overlay, left, right := NewLeafOverlay(startIndex, hashes)
	if _, err := t.virtualNode(zeropool.Height, 0, overlay, left, right); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	for key, value := range overlay {
		putNode(batch, key.Height, key.Index, value)
		if key.Height == zeropool.OutLog {
			deleteMarker(batch, key.Height, key.Index)
		}
	}
	next := t.nextIndex
	if end > next {
		next = end
	}
	putNextIndex(batch, next)

	if err := t.store.Write(batch); err != nil {
		return err
	}
	t.nextIndex = next
	return nil
}

package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := NewTree("")
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })
	return tree
}

func leafHash(i uint64) zeropool.Hash {
	var h zeropool.Hash
	h.SetUint64(i + 1)
	return h
}

func leafHashes(n int) []zeropool.Hash {
	hashes := make([]zeropool.Hash, n)
	for i := range hashes {
		hashes[i] = leafHash(uint64(i))
	}
	return hashes
}

// referenceRoot recomputes the root level by level from a dense leaf prefix,
// independently of the incremental path updates under test.
func referenceRoot(leaves []zeropool.Hash) zeropool.Hash {
	dh := zeropool.DefaultHashes()
	level := append([]zeropool.Hash(nil), leaves...)
	for h := 0; h < zeropool.Height; h++ {
		if len(level) == 0 {
			return dh[zeropool.Height]
		}
		next := make([]zeropool.Hash, (len(level)+1)/2)
		for i := range next {
			left := level[2*i]
			right := dh[h]
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = zeropool.Compress(left, right)
		}
		level = next
	}
	return level[0]
}

func TestEmptyTreeRoot(t *testing.T) {
	tree := newTestTree(t)

	root, err := tree.Root()
	require.NoError(t, err)
	require.Equal(t, zeropool.DefaultHashes()[zeropool.Height], root)
	require.Equal(t, uint64(0), tree.NextIndex())
}

func TestRootMatchesReference(t *testing.T) {
	for _, n := range []int{1, 2, 7, 64, 129} {
		tree := newTestTree(t)
		hashes := leafHashes(n)
		for i, h := range hashes {
			index, err := tree.AppendHash(h)
			require.NoError(t, err)
			require.Equal(t, uint64(i), index)
		}

		root, err := tree.Root()
		require.NoError(t, err)
		require.Equal(t, referenceRoot(hashes), root, "n=%d", n)
		require.Equal(t, uint64(n), tree.NextIndex())
	}
}

func TestSparseInsertion(t *testing.T) {
	tree := newTestTree(t)

	require.NoError(t, tree.AddHash(0, leafHash(0)))
	require.NoError(t, tree.AddHash(50, leafHash(50)))
	require.Equal(t, uint64(51), tree.NextIndex())

	dense := make([]zeropool.Hash, 51)
	dh := zeropool.DefaultHashes()
	for i := range dense {
		dense[i] = dh[0]
	}
	dense[0] = leafHash(0)
	dense[50] = leafHash(50)

	root, err := tree.Root()
	require.NoError(t, err)
	require.Equal(t, referenceRoot(dense), root)
}

func TestProofVerifies(t *testing.T) {
	tree := newTestTree(t)
	hashes := leafHashes(100)
	for _, h := range hashes {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}

	root, err := tree.Root()
	require.NoError(t, err)

	proof, err := tree.GetProof(50)
	require.NoError(t, err)
	require.Len(t, proof.Siblings, zeropool.Height)
	require.Len(t, proof.Path, zeropool.Height)
	require.True(t, proof.Verify(hashes[50], root))
	require.False(t, proof.Verify(hashes[51], root))
}

func TestProofOfUnwrittenLeafFails(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.AppendHash(leafHash(0))
	require.NoError(t, err)

	_, err = tree.GetProof(5)
	var oor *zeropool.OutOfRangeError
	require.ErrorAs(t, err, &oor)
}

func TestOutOfRangeCoordinates(t *testing.T) {
	tree := newTestTree(t)
	var oor *zeropool.OutOfRangeError

	_, err := tree.GetNode(zeropool.Height+1, 0)
	require.ErrorAs(t, err, &oor)

	_, err = tree.GetNode(zeropool.Height, 1)
	require.ErrorAs(t, err, &oor)

	err = tree.AddCommitment(zeropool.Capacity>>zeropool.OutLog, leafHash(0))
	require.ErrorAs(t, err, &oor)
}

func TestCommitmentProof(t *testing.T) {
	tree := newTestTree(t)
	c := leafHash(7)
	require.NoError(t, tree.AddCommitment(0, c))
	require.Equal(t, uint64(zeropool.Out), tree.NextIndex())

	root, err := tree.Root()
	require.NoError(t, err)

	proof, err := tree.GetCommitmentProof(0)
	require.NoError(t, err)
	require.Len(t, proof.Siblings, zeropool.Height-zeropool.OutLog)
	require.True(t, proof.Verify(c, root))
}

func TestCommitmentMatchesLeafAggregate(t *testing.T) {
	// Insert a full batch of leaves and read off the aggregate they compute.
	leafTree := newTestTree(t)
	hashes := leafHashes(zeropool.Out)
	for _, h := range hashes {
		_, err := leafTree.AppendHash(h)
		require.NoError(t, err)
	}
	aggregate, err := leafTree.GetNode(zeropool.OutLog, 0)
	require.NoError(t, err)
	leafRoot, err := leafTree.Root()
	require.NoError(t, err)

	// A commitment placeholder with the same aggregate yields the same root.
	commitTree := newTestTree(t)
	require.NoError(t, commitTree.AddCommitment(0, aggregate))
	commitRoot, err := commitTree.Root()
	require.NoError(t, err)
	require.Equal(t, leafRoot, commitRoot)
	require.Equal(t, leafTree.NextIndex(), commitTree.NextIndex())

	// Inserting the batch's leaves supersedes the placeholder without
	// changing the root or any ancestor.
	require.NoError(t, commitTree.AddHashes(0, hashes))
	after, err := commitTree.Root()
	require.NoError(t, err)
	require.Equal(t, leafRoot, after)

	nodes, err := commitTree.GetAllNodes()
	require.NoError(t, err)
	for _, n := range nodes {
		require.False(t, n.Commitment, "marker left at (%d, %d)", n.Height, n.Index)
	}
}

func TestRollbackMatchesNeverInserted(t *testing.T) {
	hashes := leafHashes(100)

	rolled := newTestTree(t)
	for _, h := range hashes {
		_, err := rolled.AppendHash(h)
		require.NoError(t, err)
	}
	fullRoot, err := rolled.Root()
	require.NoError(t, err)
	require.NoError(t, rolled.Rollback(60))
	require.Equal(t, uint64(60), rolled.NextIndex())

	fresh := newTestTree(t)
	for _, h := range hashes[:60] {
		_, err := fresh.AppendHash(h)
		require.NoError(t, err)
	}

	rolledRoot, err := rolled.Root()
	require.NoError(t, err)
	freshRoot, err := fresh.Root()
	require.NoError(t, err)
	require.Equal(t, freshRoot, rolledRoot)

	// Bit-identical stored state, not just an equal root.
	rolledNodes, err := rolled.GetAllNodes()
	require.NoError(t, err)
	freshNodes, err := fresh.GetAllNodes()
	require.NoError(t, err)
	require.Equal(t, freshNodes, rolledNodes)

	// Re-inserting the erased suffix restores the original root.
	for _, h := range hashes[60:] {
		_, err := rolled.AppendHash(h)
		require.NoError(t, err)
	}
	restored, err := rolled.Root()
	require.NoError(t, err)
	require.Equal(t, fullRoot, restored)
}

func TestRollbackSparse(t *testing.T) {
	rolled := newTestTree(t)
	require.NoError(t, rolled.AddHash(0, leafHash(0)))
	require.NoError(t, rolled.AddHash(50, leafHash(50)))
	require.NoError(t, rolled.Rollback(10))
	require.Equal(t, uint64(10), rolled.NextIndex())

	fresh := newTestTree(t)
	require.NoError(t, fresh.AddHash(0, leafHash(0)))

	rolledNodes, err := rolled.GetAllNodes()
	require.NoError(t, err)
	freshNodes, err := fresh.GetAllNodes()
	require.NoError(t, err)
	require.Equal(t, freshNodes, rolledNodes)
}

func TestRollbackPastNextIndexIsNoop(t *testing.T) {
	tree := newTestTree(t)
	for _, h := range leafHashes(10) {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}
	before, err := tree.Root()
	require.NoError(t, err)

	require.NoError(t, tree.Rollback(10))
	require.NoError(t, tree.Rollback(500))

	after, err := tree.Root()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, uint64(10), tree.NextIndex())
}

func TestRollbackDiscardsStraddledCommitment(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.AddCommitment(0, leafHash(9)))
	require.NoError(t, tree.Rollback(64))

	// The placeholder covered erased slots, so the whole batch goes.
	nodes, err := tree.GetAllNodes()
	require.NoError(t, err)
	require.Empty(t, nodes)
	require.Equal(t, uint64(64), tree.NextIndex())

	root, err := tree.Root()
	require.NoError(t, err)
	require.Equal(t, zeropool.DefaultHashes()[zeropool.Height], root)
}

func TestRollbackToZero(t *testing.T) {
	tree := newTestTree(t)
	for _, h := range leafHashes(33) {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}
	require.NoError(t, tree.Rollback(0))

	nodes, err := tree.GetAllNodes()
	require.NoError(t, err)
	require.Empty(t, nodes)
	require.Equal(t, uint64(0), tree.NextIndex())
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/tree"

	tree, err := NewTree(path)
	require.NoError(t, err)
	hashes := leafHashes(20)
	for _, h := range hashes {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}
	before, err := tree.Root()
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	reopened, err := NewTree(path)
	require.NoError(t, err)
	defer reopened.Close()

	after, err := reopened.Root()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, uint64(20), reopened.NextIndex())

	proof, err := reopened.GetProof(7)
	require.NoError(t, err)
	require.True(t, proof.Verify(hashes[7], after))
}

func TestExportImport(t *testing.T) {
	src := newTestTree(t)
	for _, h := range leafHashes(40) {
		_, err := src.AppendHash(h)
		require.NoError(t, err)
	}
	require.NoError(t, src.AddCommitment(2, leafHash(77)))

	nodes, err := src.GetAllNodes()
	require.NoError(t, err)
	srcRoot, err := src.Root()
	require.NoError(t, err)

	dst := newTestTree(t)
	require.NoError(t, dst.ImportNodes(nodes))

	dstRoot, err := dst.Root()
	require.NoError(t, err)
	require.Equal(t, srcRoot, dstRoot)
	require.Equal(t, src.NextIndex(), dst.NextIndex())
}

func TestGetLeavesAfter(t *testing.T) {
	tree := newTestTree(t)
	hashes := leafHashes(10)
	for _, h := range hashes {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}

	leaves, err := tree.GetLeavesAfter(6)
	require.NoError(t, err)
	require.Len(t, leaves, 4)
	for i, leaf := range leaves {
		require.Equal(t, uint64(6+i), leaf.Index)
		require.Equal(t, hashes[6+i], leaf.Value)
	}
}

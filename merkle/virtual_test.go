package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

func TestVirtualNodeMatchesCommitted(t *testing.T) {
	committed := leafHashes(10)
	pending := leafHashes(15)[10:]

	// Tree with only the committed prefix, queried through an overlay.
	tree := newTestTree(t)
	for _, h := range committed {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}
	overlay, left, right := NewLeafOverlay(10, pending)

	// Tree with everything actually inserted.
	full := newTestTree(t)
	for _, h := range leafHashes(15) {
		_, err := full.AppendHash(h)
		require.NoError(t, err)
	}

	// Every ancestor of the pending range, root included, must agree.
	for height := uint32(0); height <= zeropool.Height; height++ {
		for index := uint64(10) >> height; index <= uint64(14)>>height; index++ {
			want, err := full.GetNode(height, index)
			require.NoError(t, err)
			got, err := tree.GetVirtualNode(height, index, overlay, left, right)
			require.NoError(t, err)
			require.Equal(t, want, got, "height %d index %d", height, index)
		}
	}

	// The read-only contract: committed state is untouched.
	require.Equal(t, uint64(10), tree.NextIndex())
	root, err := tree.Root()
	require.NoError(t, err)
	fullRoot, err := full.Root()
	require.NoError(t, err)
	require.NotEqual(t, fullRoot, root)
}

func TestVirtualNodeOutsideOverlay(t *testing.T) {
	tree := newTestTree(t)
	for _, h := range leafHashes(4) {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}
	overlay, left, right := NewLeafOverlay(4, leafHashes(6)[4:])

	// A coordinate fully outside [left, right) reads the committed value.
	want, err := tree.GetNode(0, 2)
	require.NoError(t, err)
	got, err := tree.GetVirtualNode(0, 2, overlay, left, right)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGetProofAfterVirtual(t *testing.T) {
	tree := newTestTree(t)
	for _, h := range leafHashes(10) {
		_, err := tree.AppendHash(h)
		require.NoError(t, err)
	}

	pending := leafHashes(13)[10:]
	proofs, err := tree.GetProofAfterVirtual(pending)
	require.NoError(t, err)
	require.Len(t, proofs, len(pending))

	// The proofs authenticate against the root the tree will have once the
	// pending leaves land.
	full := newTestTree(t)
	for _, h := range leafHashes(13) {
		_, err := full.AppendHash(h)
		require.NoError(t, err)
	}
	futureRoot, err := full.Root()
	require.NoError(t, err)

	for i, proof := range proofs {
		require.Len(t, proof.Siblings, zeropool.Height)
		require.True(t, proof.Verify(pending[i], futureRoot), "proof %d", i)
	}
}

func TestAddHashesMatchesSequentialInserts(t *testing.T) {
	hashes := leafHashes(150)

	batched := newTestTree(t)
	require.NoError(t, batched.AddHashes(0, hashes[:100]))
	require.NoError(t, batched.AddHashes(100, hashes[100:]))

	sequential := newTestTree(t)
	for _, h := range hashes {
		_, err := sequential.AppendHash(h)
		require.NoError(t, err)
	}

	batchedRoot, err := batched.Root()
	require.NoError(t, err)
	sequentialRoot, err := sequential.Root()
	require.NoError(t, err)
	require.Equal(t, sequentialRoot, batchedRoot)
	require.Equal(t, sequential.NextIndex(), batched.NextIndex())
}

func TestAddHashesEmptyIsNoop(t *testing.T) {
	tree := newTestTree(t)
	before, err := tree.Root()
	require.NoError(t, err)

	require.NoError(t, tree.AddHashes(0, nil))

	after, err := tree.Root()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, uint64(0), tree.NextIndex())
}

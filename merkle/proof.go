// proof.go - Merkle authentication paths.

package merkle

import (
	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Proof is an authentication path from a node to the root: the sibling value
// at every level, and the side bit telling whether the authenticated node is
// the right child at that level. A leaf proof has Height levels, a
// commitment proof Height-OutLog.
type Proof struct {
	Siblings []zeropool.Hash `json:"siblings"`
	Path     []bool          `json:"path"`
}

// Root folds a node value through the path and returns the implied root.
func (p *Proof) Root(node zeropool.Hash) zeropool.Hash {
	h := node
	for i, sibling := range p.Siblings {
		if p.Path[i] {
			h = zeropool.Compress(sibling, h)
		} else {
			h = zeropool.Compress(h, sibling)
		}
	}
	return h
}

// Verify reports whether the path authenticates node against root.
func (p *Proof) Verify(node, root zeropool.Hash) bool {
	implied := p.Root(node)
	return implied.Equal(&root)
}

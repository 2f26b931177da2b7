// constants.go - Protocol-level constants for the pool commitment tree.

package zeropool

const (
	// Height is the depth of the global commitment tree. Leaves live at
	// height 0, the root at height Height.
	Height = 48

	// OutLog is the depth of one transaction's output subtree. A single
	// transaction produces Out leaves, observable on-chain as one rolled-up
	// commitment at height OutLog before the individual leaves are synced.
	OutLog = 7

	// Out is the number of output leaves per transaction batch.
	Out = 1 << OutLog

	// Capacity is the total number of leaf slots in the tree.
	Capacity = uint64(1) << Height
)

// circuits.go - Constraint systems for the three pool circuit kinds.
//
// All three circuits hash with in-circuit MiMC over BN254, matching the
// native compression used by the commitment tree, so a root computed by the
// tree verifies directly against an in-circuit Merkle fold.

package prover

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// CommitmentDepth is the length of an authentication path starting at a
// batch commitment node instead of a leaf.
const CommitmentDepth = zeropool.Height - zeropool.OutLog

// DelegatedDepositBatch is the fixed arity of one delegated-deposit proof.
const DelegatedDepositBatch = 16

// TransferCircuit proves a spend: the input note is a member of the tree
// under the public root, its nullifier is correctly derived from the secret
// key, the output commitment is well formed, and value is conserved.
type TransferCircuit struct {
	// Public inputs
	Root          frontend.Variable `gnark:",public"`
	Nullifier     frontend.Variable `gnark:",public"`
	OutCommitment frontend.Variable `gnark:",public"`

	// Private inputs
	Sk       frontend.Variable
	InValue  frontend.Variable
	InRho    frontend.Variable
	InRand   frontend.Variable
	Siblings [zeropool.Height]frontend.Variable
	PathBits [zeropool.Height]frontend.Variable
	OutValue frontend.Variable
	OutPk    frontend.Variable
	OutRho   frontend.Variable
	OutRand  frontend.Variable
}

func (c *TransferCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// pk = H(sk)
	hasher.Write(c.Sk)
	pk := hasher.Sum()

	// Input note commitment: leaf = H(value, pk, rho, rand)
	hasher.Reset()
	hasher.Write(c.InValue, pk, c.InRho, c.InRand)
	leaf := hasher.Sum()

	// Nullifier derivation: nf = H(sk, rho)
	hasher.Reset()
	hasher.Write(c.Sk, c.InRho)
	api.AssertIsEqual(c.Nullifier, hasher.Sum())

	// Merkle membership of the input note under the public root
	cur := leaf
	for i := 0; i < zeropool.Height; i++ {
		api.AssertIsBoolean(c.PathBits[i])
		left := api.Select(c.PathBits[i], c.Siblings[i], cur)
		right := api.Select(c.PathBits[i], cur, c.Siblings[i])
		hasher.Reset()
		hasher.Write(left, right)
		cur = hasher.Sum()
	}
	api.AssertIsEqual(c.Root, cur)

	// Output note commitment
	hasher.Reset()
	hasher.Write(c.OutValue, c.OutPk, c.OutRho, c.OutRand)
	api.AssertIsEqual(c.OutCommitment, hasher.Sum())

	// Value conservation
	api.AssertIsEqual(c.InValue, c.OutValue)

	return nil
}

// TreeUpdateCircuit proves a tree transition: placing a batch commitment at
// the free slot on the append path transforms RootBefore into RootAfter.
// The same siblings authenticate both folds; only the inserted node differs
// (empty subtree before, the commitment after).
type TreeUpdateCircuit struct {
	// Public inputs
	RootBefore frontend.Variable `gnark:",public"`
	RootAfter  frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`

	// Private inputs
	Siblings [CommitmentDepth]frontend.Variable
	PathBits [CommitmentDepth]frontend.Variable
}

func (c *TreeUpdateCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	fold := func(node frontend.Variable) frontend.Variable {
		cur := node
		for i := 0; i < CommitmentDepth; i++ {
			api.AssertIsBoolean(c.PathBits[i])
			left := api.Select(c.PathBits[i], c.Siblings[i], cur)
			right := api.Select(c.PathBits[i], cur, c.Siblings[i])
			hasher.Reset()
			hasher.Write(left, right)
			cur = hasher.Sum()
		}
		return cur
	}

	empty := emptySubtreeConstant()
	api.AssertIsEqual(c.RootBefore, fold(empty))
	api.AssertIsEqual(c.RootAfter, fold(c.Commitment))

	return nil
}

// emptySubtreeConstant is the value of an all-empty batch subtree, baked into
// the circuit as a constant from the native precomputation.
func emptySubtreeConstant() *big.Int {
	dh := zeropool.DefaultHashes()
	v := dh[zeropool.OutLog]
	return v.BigInt(new(big.Int))
}

// DelegatedDepositCircuit aggregates a fixed-arity batch of externally
// authorized deposits into one output commitment: each deposit becomes a
// note commitment, and the batch hash of all commitments must equal the
// public aggregate.
type DelegatedDepositCircuit struct {
	// Public inputs
	OutCommitment frontend.Variable `gnark:",public"`

	// Private inputs
	Pks    [DelegatedDepositBatch]frontend.Variable
	Values [DelegatedDepositBatch]frontend.Variable
	Rhos   [DelegatedDepositBatch]frontend.Variable
	Rands  [DelegatedDepositBatch]frontend.Variable
}

func (c *DelegatedDepositCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	var commitments [DelegatedDepositBatch]frontend.Variable
	for i := 0; i < DelegatedDepositBatch; i++ {
		hasher.Reset()
		hasher.Write(c.Values[i], c.Pks[i], c.Rhos[i], c.Rands[i])
		commitments[i] = hasher.Sum()
	}

	hasher.Reset()
	hasher.Write(commitments[:]...)
	api.AssertIsEqual(c.OutCommitment, hasher.Sum())

	return nil
}

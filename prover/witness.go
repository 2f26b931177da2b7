// witness.go - Public/secret witness shapes and their native hash mirrors.
//
// Each circuit kind has a fixed (public, secret) pair. The helpers here
// compute the same MiMC hashes natively that the circuits enforce, so a
// caller can assemble consistent witnesses from tree state and note data.

package prover

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/zeropoolnetwork/zeropool-go/merkle"
	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// TransferPub is the public input of a transfer proof.
type TransferPub struct {
	Root          zeropool.Hash
	Nullifier     zeropool.Hash
	OutCommitment zeropool.Hash
}

// TransferSec is the secret input of a transfer proof: the spend key, the
// input note with its authentication path, and the output note fields.
type TransferSec struct {
	Sk      zeropool.Hash
	InValue zeropool.Hash
	InRho   zeropool.Hash
	InRand  zeropool.Hash
	Proof   *merkle.Proof

	OutValue zeropool.Hash
	OutPk    zeropool.Hash
	OutRho   zeropool.Hash
	OutRand  zeropool.Hash
}

// TreePub is the public input of a tree-transition proof.
type TreePub struct {
	RootBefore zeropool.Hash
	RootAfter  zeropool.Hash
	Commitment zeropool.Hash
}

// TreeSec is the secret input of a tree-transition proof: the commitment
// node's authentication path (Height-OutLog levels).
type TreeSec struct {
	Proof *merkle.Proof
}

// DelegatedDeposit is one externally authorized deposit inside a batch.
type DelegatedDeposit struct {
	Pk    zeropool.Hash
	Value zeropool.Hash
	Rho   zeropool.Hash
	Rand  zeropool.Hash
}

// DelegatedDepositPub is the public input of a delegated-deposit proof.
type DelegatedDepositPub struct {
	OutCommitment zeropool.Hash
}

// DelegatedDepositSec is the secret input: up to DelegatedDepositBatch
// deposits; missing slots are zero deposits.
type DelegatedDepositSec struct {
	Deposits []DelegatedDeposit
}

func errTooManyDeposits(n int) error {
	return fmt.Errorf("got %d deposits, max %d", n, DelegatedDepositBatch)
}

func hashElems(elems ...zeropool.Hash) zeropool.Hash {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		h.Write(b[:])
	}
	var out zeropool.Hash
	out.SetBytes(h.Sum(nil))
	return out
}

// PublicKey derives the note owner key from a secret key, pk = H(sk).
func PublicKey(sk zeropool.Hash) zeropool.Hash {
	return hashElems(sk)
}

// Nullifier derives the spend nullifier of a note, nf = H(sk, rho).
func Nullifier(sk, rho zeropool.Hash) zeropool.Hash {
	return hashElems(sk, rho)
}

// NoteCommitment computes the leaf value of a note.
func NoteCommitment(value, pk, rho, rand zeropool.Hash) zeropool.Hash {
	return hashElems(value, pk, rho, rand)
}

// DepositBatchCommitment computes the aggregate a delegated-deposit proof
// commits to: the batch hash of all note commitments, absent slots filled
// with zero deposits.
func DepositBatchCommitment(deposits []DelegatedDeposit) (zeropool.Hash, error) {
	var zero zeropool.Hash
	if len(deposits) > DelegatedDepositBatch {
		return zero, &zeropool.WitnessError{
			Circuit: KindDelegatedDeposit.String(),
			Err:     errTooManyDeposits(len(deposits)),
		}
	}

	var commitments [DelegatedDepositBatch]zeropool.Hash
	for i := 0; i < DelegatedDepositBatch; i++ {
		var d DelegatedDeposit
		if i < len(deposits) {
			d = deposits[i]
		}
		commitments[i] = NoteCommitment(d.Value, d.Pk, d.Rho, d.Rand)
	}
	return hashElems(commitments[:]...), nil
}

// prove.go - Groth16 proof generation and verification.
//
// A Prove call is synchronous and appears atomic to its caller; the async
// form lives in engine.go. Structural witness problems surface as
// *zeropool.WitnessError before the backend runs; backend failures are
// *zeropool.InternalError. Verify never errors on a cryptographically
// invalid proof - that is a false result - and only fails with
// *zeropool.DecodeError when inputs are malformed.

package prover

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Proof is the result of one proving call: the opaque Groth16 proof plus the
// ordered public inputs rendered as decimal strings for interchange.
type Proof struct {
	groth16Proof groth16.Proof

	Inputs []string `json:"inputs"`
}

// ProveTransfer proves a spend against the given parameters.
func ProveTransfer(p *Params, pub *TransferPub, sec *TransferSec) (*Proof, error) {
	if p.Kind != KindTransfer {
		return nil, &zeropool.WitnessError{Circuit: KindTransfer.String(), Err: fmt.Errorf("params are for %s", p.Kind)}
	}
	assignment, err := transferAssignment(pub, sec)
	if err != nil {
		return nil, err
	}
	return p.prove(assignment)
}

// ProveTree proves a batch-commitment tree transition.
func ProveTree(p *Params, pub *TreePub, sec *TreeSec) (*Proof, error) {
	if p.Kind != KindTreeUpdate {
		return nil, &zeropool.WitnessError{Circuit: KindTreeUpdate.String(), Err: fmt.Errorf("params are for %s", p.Kind)}
	}
	assignment, err := treeAssignment(pub, sec)
	if err != nil {
		return nil, err
	}
	return p.prove(assignment)
}

// ProveDelegatedDeposit proves a delegated-deposit batch aggregation.
func ProveDelegatedDeposit(p *Params, pub *DelegatedDepositPub, sec *DelegatedDepositSec) (*Proof, error) {
	if p.Kind != KindDelegatedDeposit {
		return nil, &zeropool.WitnessError{Circuit: KindDelegatedDeposit.String(), Err: fmt.Errorf("params are for %s", p.Kind)}
	}
	assignment, err := delegatedDepositAssignment(pub, sec)
	if err != nil {
		return nil, err
	}
	return p.prove(assignment)
}

func transferAssignment(pub *TransferPub, sec *TransferSec) (frontend.Circuit, error) {
	if sec.Proof == nil || len(sec.Proof.Siblings) != zeropool.Height {
		return nil, &zeropool.WitnessError{
			Circuit: KindTransfer.String(),
			Err:     fmt.Errorf("expected a %d-level leaf proof", zeropool.Height),
		}
	}

	c := &TransferCircuit{
		Root:          pub.Root,
		Nullifier:     pub.Nullifier,
		OutCommitment: pub.OutCommitment,
		Sk:            sec.Sk,
		InValue:       sec.InValue,
		InRho:         sec.InRho,
		InRand:        sec.InRand,
		OutValue:      sec.OutValue,
		OutPk:         sec.OutPk,
		OutRho:        sec.OutRho,
		OutRand:       sec.OutRand,
	}
	for i := 0; i < zeropool.Height; i++ {
		c.Siblings[i] = sec.Proof.Siblings[i]
		c.PathBits[i] = boolToInt(sec.Proof.Path[i])
	}
	return c, nil
}

func treeAssignment(pub *TreePub, sec *TreeSec) (frontend.Circuit, error) {
	if sec.Proof == nil || len(sec.Proof.Siblings) != CommitmentDepth {
		return nil, &zeropool.WitnessError{
			Circuit: KindTreeUpdate.String(),
			Err:     fmt.Errorf("expected a %d-level commitment proof", CommitmentDepth),
		}
	}

	c := &TreeUpdateCircuit{
		RootBefore: pub.RootBefore,
		RootAfter:  pub.RootAfter,
		Commitment: pub.Commitment,
	}
	for i := 0; i < CommitmentDepth; i++ {
		c.Siblings[i] = sec.Proof.Siblings[i]
		c.PathBits[i] = boolToInt(sec.Proof.Path[i])
	}
	return c, nil
}

func delegatedDepositAssignment(pub *DelegatedDepositPub, sec *DelegatedDepositSec) (frontend.Circuit, error) {
	if len(sec.Deposits) > DelegatedDepositBatch {
		return nil, &zeropool.WitnessError{
			Circuit: KindDelegatedDeposit.String(),
			Err:     errTooManyDeposits(len(sec.Deposits)),
		}
	}

	c := &DelegatedDepositCircuit{OutCommitment: pub.OutCommitment}
	for i := 0; i < DelegatedDepositBatch; i++ {
		var d DelegatedDeposit
		if i < len(sec.Deposits) {
			d = sec.Deposits[i]
		}
		c.Pks[i] = d.Pk
		c.Values[i] = d.Value
		c.Rhos[i] = d.Rho
		c.Rands[i] = d.Rand
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (p *Params) prove(assignment frontend.Circuit) (*Proof, error) {
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, &zeropool.WitnessError{Circuit: p.Kind.String(), Err: err}
	}

	proof, err := groth16.Prove(p.ccs, p.pk, w)
	if err != nil {
		return nil, &zeropool.InternalError{Op: "prove " + p.Kind.String(), Err: err}
	}

	pubW, err := w.Public()
	if err != nil {
		return nil, &zeropool.InternalError{Op: "extract public inputs", Err: err}
	}
	vector, ok := pubW.Vector().(fr.Vector)
	if !ok {
		return nil, &zeropool.InternalError{Op: "extract public inputs", Err: fmt.Errorf("unexpected witness vector type")}
	}
	inputs := make([]string, len(vector))
	for i := range vector {
		inputs[i] = vector[i].String()
	}

	return &Proof{groth16Proof: proof, Inputs: inputs}, nil
}

// Bytes returns the opaque serialized form of the Groth16 proof. Public
// inputs travel separately.
func (p *Proof) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := p.groth16Proof.WriteTo(&buf); err != nil {
		return nil, &zeropool.InternalError{Op: "serialize proof", Err: err}
	}
	return buf.Bytes(), nil
}

// ProofFromBytes decodes a serialized proof together with its public inputs.
// Malformed encodings fail with *zeropool.DecodeError before any
// cryptographic check.
func ProofFromBytes(data []byte, inputs []string) (*Proof, error) {
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, &zeropool.DecodeError{What: "proof", Reason: "unreadable encoding", Err: err}
	}
	return &Proof{groth16Proof: proof, Inputs: inputs}, nil
}

// Verify checks a proof against a verifying key. A cryptographically
// rejected proof yields (false, nil); only malformed inputs produce an
// error.
func Verify(vk groth16.VerifyingKey, proof *Proof) (bool, error) {
	if proof == nil || proof.groth16Proof == nil {
		return false, &zeropool.DecodeError{What: "proof", Reason: "missing proof data"}
	}
	if vk.NbPublicWitness() != len(proof.Inputs) {
		return false, &zeropool.DecodeError{
			What:   "public inputs",
			Reason: fmt.Sprintf("expected %d inputs, got %d", vk.NbPublicWitness(), len(proof.Inputs)),
		}
	}

	elems := make([]fr.Element, len(proof.Inputs))
	for i, s := range proof.Inputs {
		h, err := zeropool.HashFromDecimal(s)
		if err != nil {
			return false, err
		}
		elems[i] = h
	}

	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return false, &zeropool.InternalError{Op: "build witness", Err: err}
	}
	values := make(chan any, len(elems))
	for i := range elems {
		values <- elems[i]
	}
	close(values)
	if err := w.Fill(len(elems), 0, values); err != nil {
		return false, &zeropool.DecodeError{What: "public inputs", Reason: "witness fill failed", Err: err}
	}

	if err := groth16.Verify(proof.groth16Proof, vk, w); err != nil {
		return false, nil
	}
	return true, nil
}

// params.go - Proving parameters: compiled circuits and Groth16 keys.
//
// A Params value is loaded once per circuit kind and reused across many
// proofs; it is safe to share read-only between concurrent proving calls.
// Key material comes from an external trusted setup and is treated as an
// opaque blob; Setup exists for tests and development pools.

package prover

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// CircuitKind selects one of the three fixed circuit shapes.
type CircuitKind int

const (
	KindTransfer CircuitKind = iota
	KindTreeUpdate
	KindDelegatedDeposit
)

func (k CircuitKind) String() string {
	switch k {
	case KindTransfer:
		return "transfer"
	case KindTreeUpdate:
		return "tree-update"
	case KindDelegatedDeposit:
		return "delegated-deposit"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

func circuitFor(kind CircuitKind) (frontend.Circuit, error) {
	switch kind {
	case KindTransfer:
		return &TransferCircuit{}, nil
	case KindTreeUpdate:
		return &TreeUpdateCircuit{}, nil
	case KindDelegatedDeposit:
		return &DelegatedDepositCircuit{}, nil
	default:
		return nil, &zeropool.WitnessError{Circuit: kind.String(), Err: fmt.Errorf("unknown circuit kind")}
	}
}

// Compile builds the constraint system for a circuit kind.
func Compile(kind CircuitKind) (constraint.ConstraintSystem, error) {
	circuit, err := circuitFor(kind)
	if err != nil {
		return nil, err
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, &zeropool.InternalError{Op: "compile " + kind.String(), Err: err}
	}
	return ccs, nil
}

// Params is the proving side of one circuit kind: the compiled constraint
// system plus the Groth16 proving key.
type Params struct {
	Kind CircuitKind

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
}

// Setup compiles the circuit and generates a fresh key pair.
func Setup(kind CircuitKind) (*Params, groth16.VerifyingKey, error) {
	ccs, err := Compile(kind)
	if err != nil {
		return nil, nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, &zeropool.InternalError{Op: "setup " + kind.String(), Err: err}
	}
	return &Params{Kind: kind, ccs: ccs, pk: pk}, vk, nil
}

// LoadParams compiles the circuit and reads the proving key from a file.
func LoadParams(kind CircuitKind, path string) (*Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &zeropool.StorageError{Op: "open params", Err: err}
	}
	defer f.Close()
	return readParams(kind, f)
}

// ParamsFromBytes compiles the circuit and decodes the proving key from an
// opaque blob.
func ParamsFromBytes(kind CircuitKind, data []byte) (*Params, error) {
	return readParams(kind, bytes.NewReader(data))
}

func readParams(kind CircuitKind, r io.Reader) (*Params, error) {
	ccs, err := Compile(kind)
	if err != nil {
		return nil, err
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(r); err != nil {
		return nil, &zeropool.DecodeError{What: "proving key", Reason: "unreadable blob", Err: err}
	}
	return &Params{Kind: kind, ccs: ccs, pk: pk}, nil
}

// Save writes the proving key to a file.
func (p *Params) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &zeropool.StorageError{Op: "create params", Err: err}
	}
	defer f.Close()
	if _, err := p.pk.WriteTo(f); err != nil {
		return &zeropool.StorageError{Op: "write params", Err: err}
	}
	return nil
}

// SaveVerifyingKey writes a verifying key to a file.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return &zeropool.StorageError{Op: "create verifying key", Err: err}
	}
	defer f.Close()
	if _, err := vk.WriteTo(f); err != nil {
		return &zeropool.StorageError{Op: "write verifying key", Err: err}
	}
	return nil
}

// LoadVerifyingKey reads a verifying key from a file.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &zeropool.StorageError{Op: "open verifying key", Err: err}
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, &zeropool.DecodeError{What: "verifying key", Reason: "unreadable blob", Err: err}
	}
	return vk, nil
}

// SetupOrLoad loads keys from disk when both files exist, otherwise runs
// Setup and persists the fresh pair.
func SetupOrLoad(kind CircuitKind, pkPath, vkPath string) (*Params, groth16.VerifyingKey, error) {
	params, pkErr := LoadParams(kind, pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return params, vk, nil
	}

	params, vk, err := Setup(kind)
	if err != nil {
		return nil, nil, err
	}
	if err := params.Save(pkPath); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return params, vk, nil
}

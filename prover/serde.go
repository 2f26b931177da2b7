// serde.go - JSON interchange form of a Groth16 proof.
//
// The wire form spells out the three proof points in affine decimal
// coordinates plus the ordered public inputs, so proofs round-trip through
// JSON APIs and off-chain tooling without carrying the binary encoding.

package prover

import (
	"encoding/json"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"

	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

var (
	errUnexpectedProofCurve = errors.New("proof is not a bn254 groth16 proof")
	errNoParams             = errors.New("no parameters loaded for circuit")
)

// proofJSON is the interchange layout: a and c are G1 points as [x, y], b is
// a G2 point as [[x0, x1], [y0, y1]], all coordinates decimal strings.
type proofJSON struct {
	A      [2]string    `json:"a"`
	B      [2][2]string `json:"b"`
	C      [2]string    `json:"c"`
	Inputs []string     `json:"inputs"`
}

// MarshalJSON renders the proof points and public inputs as decimal strings.
func (p *Proof) MarshalJSON() ([]byte, error) {
	bn, ok := p.groth16Proof.(*groth16_bn254.Proof)
	if !ok {
		return nil, &zeropool.InternalError{Op: "serialize proof", Err: errUnexpectedProofCurve}
	}

	out := proofJSON{
		A: [2]string{bn.Ar.X.String(), bn.Ar.Y.String()},
		B: [2][2]string{
			{bn.Bs.X.A0.String(), bn.Bs.X.A1.String()},
			{bn.Bs.Y.A0.String(), bn.Bs.Y.A1.String()},
		},
		C:      [2]string{bn.Krs.X.String(), bn.Krs.Y.String()},
		Inputs: p.Inputs,
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the interchange form back into a verifiable proof.
// Coordinate strings that are not canonical base-field elements fail with
// *zeropool.DecodeError.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var in proofJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return &zeropool.DecodeError{What: "proof", Reason: "malformed json", Err: err}
	}

	var bn groth16_bn254.Proof
	if err := setFp(&bn.Ar.X, in.A[0]); err != nil {
		return err
	}
	if err := setFp(&bn.Ar.Y, in.A[1]); err != nil {
		return err
	}
	if err := setFp(&bn.Bs.X.A0, in.B[0][0]); err != nil {
		return err
	}
	if err := setFp(&bn.Bs.X.A1, in.B[0][1]); err != nil {
		return err
	}
	if err := setFp(&bn.Bs.Y.A0, in.B[1][0]); err != nil {
		return err
	}
	if err := setFp(&bn.Bs.Y.A1, in.B[1][1]); err != nil {
		return err
	}
	if err := setFp(&bn.Krs.X, in.C[0]); err != nil {
		return err
	}
	if err := setFp(&bn.Krs.Y, in.C[1]); err != nil {
		return err
	}

	p.groth16Proof = &bn
	p.Inputs = in.Inputs
	return nil
}

func setFp(e *fp.Element, s string) error {
	if _, err := e.SetString(s); err != nil {
		return &zeropool.DecodeError{What: "proof coordinate", Reason: "not a base field element", Err: err}
	}
	return nil
}

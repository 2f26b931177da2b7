// hash.go - Field-element hash values and the MiMC compression function.
//
// Every node of the commitment tree carries one BN254 scalar field element.
// At storage and wire boundaries it is encoded as canonical 32-byte big-endian
// bytes; for interchange with provers and relayers it is rendered as a decimal
// string. The compression function combining two child nodes is MiMC over the
// same field, matching the in-circuit hasher used by the proof engine.

package zeropool

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hash is one tree-node value: a BN254 scalar field element.
type Hash = fr.Element

// HashSize is the canonical encoded size of a Hash in bytes.
const HashSize = fr.Bytes

// HashFromBytes decodes a canonical 32-byte big-endian hash value.
// It fails fast with *DecodeError before any store is touched.
func HashFromBytes(data []byte) (Hash, error) {
	var h Hash
	if len(data) != HashSize {
		return h, &DecodeError{What: "hash", Reason: "expected 32 bytes"}
	}
	if err := h.SetBytesCanonical(data); err != nil {
		return h, &DecodeError{What: "hash", Reason: "non-canonical field element", Err: err}
	}
	return h, nil
}

// HashToBytes returns the canonical 32-byte big-endian encoding of h.
func HashToBytes(h Hash) []byte {
	b := h.Bytes()
	return b[:]
}

// HashFromDecimal parses a decimal-string field element.
func HashFromDecimal(s string) (Hash, error) {
	var h Hash
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return h, &DecodeError{What: "hash", Reason: "invalid decimal string"}
	}
	if v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return h, &DecodeError{What: "hash", Reason: "value outside the field"}
	}
	h.SetBigInt(v)
	return h, nil
}

// HashToDecimal renders h as a decimal string for interchange.
func HashToDecimal(h Hash) string {
	return h.String()
}

// Compress combines two child node values into their parent value.
func Compress(left, right Hash) Hash {
	h := mimc.NewMiMC()
	lb := left.Bytes()
	rb := right.Bytes()
	h.Write(lb[:])
	h.Write(rb[:])

	var out Hash
	out.SetBytes(h.Sum(nil))
	return out
}

// HashLeaf hashes an arbitrary-length payload into a leaf value.
// Used for note commitments arriving as raw bytes.
func HashLeaf(data []byte) Hash {
	h := mimc.NewMiMC()
	var e fr.Element
	// Reduce the payload into field elements chunk by chunk so that Write
	// never sees a non-canonical block.
	for len(data) > 0 {
		n := HashSize - 1
		if len(data) < n {
			n = len(data)
		}
		e.SetBytes(data[:n])
		eb := e.Bytes()
		h.Write(eb[:])
		data = data[n:]
	}

	var out Hash
	out.SetBytes(h.Sum(nil))
	return out
}

// EmptyLeaf returns the canonical value of an empty leaf slot: the
// compression function applied to the zero element.
func EmptyLeaf() Hash {
	var zero Hash
	h := mimc.NewMiMC()
	zb := zero.Bytes()
	h.Write(zb[:])

	var out Hash
	out.SetBytes(h.Sum(nil))
	return out
}

// DefaultHashes precomputes the empty-subtree constant for every height.
// Index h holds the value of an all-empty subtree of height h; index 0 is
// the empty leaf, index Height the root of a fully empty tree.
func DefaultHashes() [Height + 1]Hash {
	var dh [Height + 1]Hash
	dh[0] = EmptyLeaf()
	for i := 1; i <= Height; i++ {
		dh[i] = Compress(dh[i-1], dh[i-1])
	}
	return dh
}

package zeropool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashBytesRoundTrip(t *testing.T) {
	var h Hash
	h.SetUint64(123456789)

	data := HashToBytes(h)
	require.Len(t, data, HashSize)

	back, err := HashFromBytes(data)
	require.NoError(t, err)
	require.True(t, back.Equal(&h))
}

func TestHashFromBytesRejectsBadInput(t *testing.T) {
	t.Run("wrong length", func(t *testing.T) {
		_, err := HashFromBytes([]byte{1, 2, 3})
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
	})

	t.Run("non-canonical", func(t *testing.T) {
		data := make([]byte, HashSize)
		for i := range data {
			data[i] = 0xff
		}
		_, err := HashFromBytes(data)
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
	})
}

func TestHashDecimalRoundTrip(t *testing.T) {
	var h Hash
	h.SetUint64(42)

	s := HashToDecimal(h)
	require.Equal(t, "42", s)

	back, err := HashFromDecimal(s)
	require.NoError(t, err)
	require.True(t, back.Equal(&h))
}

func TestHashFromDecimalRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "abc", "-1", "21888242871839275222246405745257275088548364400416034343698204186575808495617"} {
		_, err := HashFromDecimal(s)
		if err == nil {
			t.Fatalf("expected error for %q", s)
		}
		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr), "expected DecodeError for %q", s)
	}
}

func TestDefaultHashesChain(t *testing.T) {
	dh := DefaultHashes()

	empty := EmptyLeaf()
	require.True(t, dh[0].Equal(&empty))
	for h := 1; h <= Height; h++ {
		expected := Compress(dh[h-1], dh[h-1])
		require.True(t, dh[h].Equal(&expected), "height %d", h)
	}
}

func TestCompressIsOrderSensitive(t *testing.T) {
	var a, b Hash
	a.SetUint64(1)
	b.SetUint64(2)

	ab := Compress(a, b)
	ba := Compress(b, a)
	require.False(t, ab.Equal(&ba))
}

func TestHashLeafDeterministic(t *testing.T) {
	payload := []byte("some transaction ciphertext that is longer than thirty one bytes")
	h1 := HashLeaf(payload)
	h2 := HashLeaf(payload)
	require.True(t, h1.Equal(&h2))

	h3 := HashLeaf([]byte("different payload"))
	require.False(t, h1.Equal(&h3))
}

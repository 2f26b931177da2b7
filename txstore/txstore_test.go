package txstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	payload := []byte("encrypted note ciphertext plus memo")
	require.NoError(t, s.Add(7, payload))

	got, ok, err := s.Get(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got)
}

func TestGetAbsentIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	got, ok, err := s.Get(99)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
}

func TestAddOverwrites(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Add(1, []byte("first")))
	require.NoError(t, s.Add(1, []byte("second")))

	got, ok, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("second"), got)

	count, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Add(3, []byte("payload")))
	require.NoError(t, s.Delete(3))

	_, ok, err := s.Get(3)
	require.NoError(t, err)
	require.False(t, ok)

	count, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(0), count)

	// Deleting an absent entry is a no-op.
	require.NoError(t, s.Delete(3))
}

func TestIterAllOrdered(t *testing.T) {
	s := newTestStore(t)

	// Insert out of order; iteration is by ascending index.
	for _, i := range []uint64{300, 5, 1 << 40, 0} {
		require.NoError(t, s.Add(i, []byte(fmt.Sprintf("payload-%d", i))))
	}

	var indices []uint64
	err := s.IterAll(func(index uint64, payload []byte) error {
		indices = append(indices, index)
		require.Equal(t, []byte(fmt.Sprintf("payload-%d", index)), payload)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 5, 300, 1 << 40}, indices)
}

func TestRemoveAllAfter(t *testing.T) {
	s := newTestStore(t)

	for i := uint64(0); i < 10; i++ {
		require.NoError(t, s.Add(i, []byte{byte(i)}))
	}
	require.NoError(t, s.RemoveAllAfter(6))

	count, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(6), count)

	_, ok, err := s.Get(5)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Get(6)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/transactions"

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(42, []byte("kept")))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("kept"), got)
}

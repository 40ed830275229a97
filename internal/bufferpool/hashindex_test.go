package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func identityHash(k int) uint64 { return uint64(k) }

func TestExtendibleHashIndex_InsertSplit(t *testing.T) {
	idx := NewExtendibleHashIndex[int, string](2, identityHash)

	values := map[int]string{
		1: "a", 2: "b", 3: "c", 4: "d", 5: "e",
		6: "f", 7: "g", 8: "h", 9: "i",
	}
	for k := 1; k <= 9; k++ {
		require.NoError(t, idx.Insert(k, values[k]))
	}

	require.Equal(t, 2, idx.LocalDepth(0))
	require.Equal(t, 3, idx.LocalDepth(1))
	require.Equal(t, 2, idx.LocalDepth(2))
	require.Equal(t, 2, idx.LocalDepth(3))

	v, ok := idx.Find(9)
	require.True(t, ok)
	require.Equal(t, "i", v)

	v, ok = idx.Find(8)
	require.True(t, ok)
	require.Equal(t, "h", v)

	v, ok = idx.Find(2)
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = idx.Find(10)
	require.False(t, ok)

	require.True(t, idx.Remove(8))
	require.False(t, idx.Remove(20))
}

func TestExtendibleHashIndex_MultiSplit(t *testing.T) {
	idx := NewExtendibleHashIndex[int, int](2, identityHash)

	require.NoError(t, idx.Insert(0, 0))
	require.NoError(t, idx.Insert(1024, 1024))
	require.NoError(t, idx.Insert(4, 4))

	require.Equal(t, 4, idx.NumBuckets())
}

func TestExtendibleHashIndex_UpsertOverwrites(t *testing.T) {
	idx := NewExtendibleHashIndex[int, string](4, identityHash)

	require.NoError(t, idx.Insert(1, "a"))
	require.NoError(t, idx.Insert(1, "b"))

	v, ok := idx.Find(1)
	require.True(t, ok)
	require.Equal(t, "b", v)
	require.Equal(t, 1, idx.NumBuckets())
}

func TestExtendibleHashIndex_BucketSizeOneIsBinaryRadix(t *testing.T) {
	idx := NewExtendibleHashIndex[int, int](1, identityHash)

	for k := 0; k < 8; k++ {
		require.NoError(t, idx.Insert(k, k))
	}
	for k := 0; k < 8; k++ {
		v, ok := idx.Find(k)
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}

func TestExtendibleHashIndex_CapacityExceeded(t *testing.T) {
	// Every key hashes to zero: no split can ever separate them, so the
	// retry ceiling must eventually trip ErrCapacityExceeded.
	idx := NewExtendibleHashIndex[int, int](1, func(int) uint64 { return 0 })

	require.NoError(t, idx.Insert(1, 1))
	err := idx.Insert(2, 2)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

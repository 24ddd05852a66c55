package index

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(&Config{Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	return idx
}

func TestInsertGetRemove(t *testing.T) {
	idx := newTestIndex(t)

	_, existed, err := idx.Get("key1")
	require.NoError(t, err)
	require.False(t, existed)

	pos1 := Position{Generation: 1, Offset: 0, Length: 10}
	prev, existed, err := idx.Insert("key1", pos1)
	require.NoError(t, err)
	require.False(t, existed)
	require.Zero(t, prev)

	got, found, err := idx.Get("key1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pos1, got)

	pos2 := Position{Generation: 1, Offset: 10, Length: 12}
	prev, existed, err = idx.Insert("key1", pos2)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, pos1, prev)

	removed, existed, err := idx.Remove("key1")
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, pos2, removed)

	_, existed, err = idx.Get("key1")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestRemoveAbsentKeyIsNoop(t *testing.T) {
	idx := newTestIndex(t)

	_, existed, err := idx.Remove("missing")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestCompareAndSwap(t *testing.T) {
	idx := newTestIndex(t)

	pos1 := Position{Generation: 1, Offset: 0, Length: 5}
	_, _, err := idx.Insert("key1", pos1)
	require.NoError(t, err)

	pos2 := Position{Generation: 2, Offset: 0, Length: 5}
	swapped, err := idx.CompareAndSwap("key1", pos1, pos2)
	require.NoError(t, err)
	require.True(t, swapped)

	got, _, err := idx.Get("key1")
	require.NoError(t, err)
	require.Equal(t, pos2, got)

	// A stale expected value (someone else already moved the key) must not swap.
	swapped, err = idx.CompareAndSwap("key1", pos1, Position{Generation: 3})
	require.NoError(t, err)
	require.False(t, swapped)

	got, _, err = idx.Get("key1")
	require.NoError(t, err)
	require.Equal(t, pos2, got)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	idx := newTestIndex(t)

	_, _, err := idx.Insert("key1", Position{Generation: 1, Offset: 0, Length: 5})
	require.NoError(t, err)

	snap, err := idx.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)

	_, _, err = idx.Insert("key2", Position{Generation: 1, Offset: 5, Length: 5})
	require.NoError(t, err)

	require.Len(t, snap, 1, "snapshot must not observe mutations made after it was taken")
}

func TestLenAndTotalLength(t *testing.T) {
	idx := newTestIndex(t)

	_, _, err := idx.Insert("key1", Position{Generation: 1, Offset: 0, Length: 5})
	require.NoError(t, err)
	_, _, err = idx.Insert("key2", Position{Generation: 1, Offset: 5, Length: 7})
	require.NoError(t, err)

	n, err := idx.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	total, err := idx.TotalLength()
	require.NoError(t, err)
	require.EqualValues(t, 12, total)
}

func TestClosedIndexRejectsOperations(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Close())

	_, _, err := idx.Get("key1")
	require.ErrorIs(t, err, ErrIndexClosed)

	_, _, err = idx.Insert("key1", Position{})
	require.ErrorIs(t, err, ErrIndexClosed)

	require.ErrorIs(t, idx.Close(), ErrIndexClosed)
}

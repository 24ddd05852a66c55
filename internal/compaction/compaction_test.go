package compaction

import (
	"fmt"
	"testing"

	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/internal/storage"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (dir string, idx *index.Index, writer *storage.Writer, pool *storage.ReaderPool) {
	t.Helper()

	dir = t.TempDir()
	log := zap.NewNop().Sugar()

	opts := options.NewDefaultOptions()

	var err error
	idx, err = index.New(&index.Config{Logger: log})
	require.NoError(t, err)

	writer, pool, _, err = storage.Open(dir, &opts, log)
	require.NoError(t, err)

	return dir, idx, writer, pool
}

func TestCompactionRewritesLiveKeysAndZeroesStaleBytes(t *testing.T) {
	dir, idx, writer, pool := setup(t)
	log := zap.NewNop().Sugar()
	defer writer.Close()

	// Two writes to the same key: the first becomes stale.
	r1, err := writer.Set("key1", []byte("value1"), 0)
	require.NoError(t, err)
	_, _, err = idx.Insert("key1", r1.Position)
	require.NoError(t, err)

	r2, err := writer.Set("key1", []byte("value2"), r1.Position.Length)
	require.NoError(t, err)
	_, _, err = idx.Insert("key1", r2.Position)
	require.NoError(t, err)

	r3, err := writer.Set("key2", []byte("value3"), 0)
	require.NoError(t, err)
	_, _, err = idx.Insert("key2", r3.Position)
	require.NoError(t, err)

	require.Positive(t, writer.StaleBytes())

	activeBeforeCompaction := writer.Generation()
	compactGen := activeBeforeCompaction + 1
	newActiveGen := activeBeforeCompaction + 2

	onDisk, err := seginfo.DiscoverGenerations(dir)
	require.NoError(t, err)

	err = Run(dir, activeBeforeCompaction, onDisk, idx, writer, pool, log)
	require.NoError(t, err)

	require.Zero(t, writer.StaleBytes())
	require.Equal(t, newActiveGen, writer.Generation())

	pos1, found, err := idx.Get("key1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, compactGen, pos1.Generation, "the surviving value must have been rewritten into the compact generation")

	pos2, found, err := idx.Get("key2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, compactGen, pos2.Generation)

	// Every generation below compactGen must be gone; only compactGen and
	// newActiveGen (plus anything created since) may remain.
	remaining, err := seginfo.DiscoverGenerations(dir)
	require.NoError(t, err)
	for _, gen := range remaining {
		require.GreaterOrEqualf(t, gen, compactGen, "generation %d should have been deleted by compaction", gen)
	}
	require.ElementsMatch(t, []uint64{compactGen, newActiveGen}, remaining)
}

func TestCompactionPreservesValuesAcrossManyKeys(t *testing.T) {
	dir, idx, writer, pool := setup(t)
	log := zap.NewNop().Sugar()
	defer writer.Close()

	const n = 200
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		r, err := writer.Set(key, []byte(fmt.Sprintf("value-%d", i)), 0)
		require.NoError(t, err)
		_, _, err = idx.Insert(key, r.Position)
		require.NoError(t, err)
	}

	onDisk, err := seginfo.DiscoverGenerations(dir)
	require.NoError(t, err)

	require.NoError(t, Run(dir, writer.Generation(), onDisk, idx, writer, pool, log))

	cache := pool.Borrow()
	defer pool.Return(cache)

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		pos, found, err := idx.Get(key)
		require.NoError(t, err)
		require.True(t, found)

		var buf []byte
		if pos.Generation == writer.Generation() {
			buf, err = writer.ReadActive(pos.Offset, pos.Length)
		} else {
			buf, err = pool.ReadFrozen(cache, pos.Generation, pos.Offset, pos.Length)
		}
		require.NoError(t, err)
		require.Containsf(t, string(buf), fmt.Sprintf("value-%d", i), "key %s", key)
	}
}

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, opts ...options.OptionFunc) *Engine {
	t.Helper()

	o := options.NewDefaultOptions()
	o.DataDir = t.TempDir()
	for _, opt := range opts {
		opt(&o)
	}

	eng, err := New(&Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestFreshEngineGetReturnsNotFound(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Get("key1")
	require.Error(t, err)
	ee, ok := errors.AsEngineError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeIndexKeyNotFound, ee.Code())
}

func TestSetThenGet(t *testing.T) {
	eng := newTestEngine(t)

	require.NoError(t, eng.Set("key1", []byte("value1")))

	got, err := eng.Get("key1")
	require.NoError(t, err)
	require.Equal(t, []byte("value1"), got)
}

func TestSetOverwritesPreviousValue(t *testing.T) {
	eng := newTestEngine(t)

	require.NoError(t, eng.Set("key1", []byte("value1")))
	require.NoError(t, eng.Set("key1", []byte("value2")))

	got, err := eng.Get("key1")
	require.NoError(t, err)
	require.Equal(t, []byte("value2"), got)
}

func TestSetRemoveGetAndDoubleRemove(t *testing.T) {
	eng := newTestEngine(t)

	require.NoError(t, eng.Set("key1", []byte("value1")))
	require.NoError(t, eng.Remove("key1"))

	_, err := eng.Get("key1")
	require.Error(t, err)

	err = eng.Remove("key1")
	require.Error(t, err)
	ee, ok := errors.AsEngineError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeIndexKeyNotFound, ee.Code())
}

func TestRemoveAbsentKeyDoesNotGrowSegment(t *testing.T) {
	eng := newTestEngine(t)

	segDir := filepath.Join(eng.opts.DataDir, eng.opts.SegmentOptions.Directory)
	before, err := os.Stat(filepath.Join(segDir, "1.log"))
	require.NoError(t, err)

	err = eng.Remove("missing")
	require.Error(t, err)

	after, err := os.Stat(filepath.Join(segDir, "1.log"))
	require.NoError(t, err)
	require.Equal(t, before.Size(), after.Size())
}

func TestReopenRoundTripsValues(t *testing.T) {
	dataDir := t.TempDir()

	open := func() *Engine {
		o := options.NewDefaultOptions()
		o.DataDir = dataDir
		eng, err := New(&Config{Options: &o, Logger: zap.NewNop().Sugar()})
		require.NoError(t, err)
		return eng
	}

	eng := open()
	require.NoError(t, eng.Set("key1", []byte("value1")))
	require.NoError(t, eng.Set("key1", []byte("value2")))
	require.NoError(t, eng.Close())

	eng = open()
	defer eng.Close()

	got, err := eng.Get("key1")
	require.NoError(t, err)
	require.Equal(t, []byte("value2"), got)
}

func TestReopenAfterRemoveStaysAbsent(t *testing.T) {
	dataDir := t.TempDir()

	o := options.NewDefaultOptions()
	o.DataDir = dataDir
	eng, err := New(&Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	require.NoError(t, eng.Set("key1", []byte("value1")))
	require.NoError(t, eng.Remove("key1"))
	require.NoError(t, eng.Close())

	o2 := options.NewDefaultOptions()
	o2.DataDir = dataDir
	eng2, err := New(&Config{Options: &o2, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	defer eng2.Close()

	_, err = eng2.Get("key1")
	require.Error(t, err)
}

func TestBoundaryKeyAndValueSizes(t *testing.T) {
	eng := newTestEngine(t)

	sizes := []int{0, 1, 100 * 1024}
	for _, n := range sizes {
		key := fmt.Sprintf("key-%d", n)
		value := make([]byte, n)
		for i := range value {
			value[i] = byte(i % 251)
		}

		require.NoError(t, eng.Set(key, value))
		got, err := eng.Get(key)
		require.NoError(t, err)
		require.Equal(t, value, got)
	}
}

func TestOpenOnNonexistentDirectoryCreatesIt(t *testing.T) {
	parent := t.TempDir()
	dataDir := filepath.Join(parent, "does", "not", "exist", "yet")

	o := options.NewDefaultOptions()
	o.DataDir = dataDir
	eng, err := New(&Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	defer eng.Close()

	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestExpiringKeysAreFeatureGated(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.SetExpiring("key1", []byte("value1"), 0)
	require.Error(t, err)
	ee, ok := errors.AsEngineError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeFeatureDisabled, ee.Code())
}

// Large key population, forced reopen, and a size check against a forced
// compaction matches the spec's 10,000-key end-to-end scenario (§8.5).
func TestManyKeysSurviveReopenAndCompactionBoundsDiskSize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large-population test in short mode")
	}

	dataDir := t.TempDir()
	const n = 10_000

	o := options.NewDefaultOptions()
	o.DataDir = dataDir
	o.CompactionThreshold = options.MinCompactionThreshold

	eng, err := New(&Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	values := make(map[string]string, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%05d", i)
		value := fmt.Sprintf("v%09d", i) // 10 bytes
		values[key] = value
		require.NoError(t, eng.Set(key, []byte(value)))
	}
	// Overwrite every key once so compaction has real stale bytes to reclaim.
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%05d", i)
		value := values[key] + "!"
		values[key] = value
		require.NoError(t, eng.Set(key, []byte(value)))
	}
	require.NoError(t, eng.Close())

	o2 := options.NewDefaultOptions()
	o2.DataDir = dataDir
	o2.CompactionThreshold = options.MinCompactionThreshold
	eng2, err := New(&Config{Options: &o2, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	defer eng2.Close()

	for key, want := range values {
		got, err := eng2.Get(key)
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}

	require.NoError(t, eng2.compactLocked())

	var livePayload int64
	for _, v := range values {
		livePayload += int64(len(v))
	}

	segDir := filepath.Join(o2.DataDir, o2.SegmentOptions.Directory)
	entries, err := os.ReadDir(segDir)
	require.NoError(t, err)

	var totalOnDisk int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		require.NoError(t, err)
		totalOnDisk += info.Size()
	}

	require.LessOrEqualf(t, totalOnDisk, 2*livePayload+int64(n)*256,
		"on-disk size %d should stay within 2x live payload (%d) plus per-record framing overhead", totalOnDisk, livePayload)
}

// Eight goroutines each own a disjoint key space: every get must return the
// value that same goroutine just wrote, with no operation erroring.
func TestConcurrentDisjointWritersAndReaders(t *testing.T) {
	eng := newTestEngine(t)

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-key%d", worker, i)
				value := fmt.Sprintf("w%d-value%d", worker, i)
				if err := eng.Set(key, []byte(value)); err != nil {
					errCh <- err
					return
				}
			}

			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-key%d", worker, i)
				want := fmt.Sprintf("w%d-value%d", worker, i)
				got, err := eng.Get(key)
				if err != nil {
					errCh <- err
					return
				}
				if string(got) != want {
					errCh <- fmt.Errorf("worker %d key %s: got %q want %q", worker, key, got, want)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}
}

// A small, fixed key space overwritten repeatedly from many goroutines
// forces frequent compactions while reads are in flight, exercising Get's
// retry path when a read races a compaction that moves its key to a newer
// generation out from under it.
func TestGetSurvivesConcurrentCompaction(t *testing.T) {
	eng := newTestEngine(t, options.WithCompactionThreshold(options.MinCompactionThreshold))

	const keys = 8
	for i := 0; i < keys; i++ {
		require.NoError(t, eng.Set(fmt.Sprintf("hot-%d", i), []byte("seed")))
	}

	const writers = 4
	const readers = 4
	const rounds = 2000

	var wg sync.WaitGroup
	errCh := make(chan error, writers+readers)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := fmt.Sprintf("hot-%d", i%keys)
				value := fmt.Sprintf("w%d-r%d", worker, i)
				if err := eng.Set(key, []byte(value)); err != nil {
					errCh <- err
					return
				}
			}
		}(w)
	}

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := fmt.Sprintf("hot-%d", i%keys)
				if _, err := eng.Get(key); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}
}

func TestWrongEngineSentinelIsRejected(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "CURRENT"), []byte("leveldb"), 0644))

	o := options.NewDefaultOptions()
	o.DataDir = dataDir

	_, err := New(&Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.Error(t, err)
	ee, ok := errors.AsEngineError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeWrongEngine, ee.Code())
}

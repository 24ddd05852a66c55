// Package index provides the in-memory hash table that maps every live key
// to the Position describing where its current value lives on disk. This
// embodies the core Bitcask architectural principle: keep all keys in
// memory with minimal metadata while the values themselves stay on disk.
//
// Index is deliberately storage-agnostic: it knows nothing about segment
// files, readers, or writers, only about keys and Positions. internal/engine
// and internal/compaction are the callers that give those Positions meaning,
// using the Positions internal/storage produces.
package index

import (
	stdErrors "errors"

	"github.com/iamNilotpal/ignite/pkg/errors"
)

var ErrIndexClosed = stdErrors.New("operation failed: cannot access closed index")

// New creates and initializes a new Index instance. The returned Index is
// immediately ready for concurrent use.
func New(config *Config) (*Index, error) {
	if config == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "index configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	return &Index{
		log:     config.Logger,
		entries: make(map[string]Position, 2046),
	}, nil
}

// Insert records or overwrites the Position for key, returning the
// previous Position and whether one existed. Callers use the previous
// Position's Length to account for the bytes it just made stale.
func (idx *Index) Insert(key string, pos Position) (previous Position, existed bool, err error) {
	if idx.closed.Load() {
		return Position{}, false, ErrIndexClosed
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	previous, existed = idx.entries[key]
	idx.entries[key] = pos
	return previous, existed, nil
}

// Remove deletes key from the index, returning its last Position and
// whether it was present. Removing an absent key is reported via existed,
// not an error, so callers decide how to treat a no-op delete.
func (idx *Index) Remove(key string) (previous Position, existed bool, err error) {
	if idx.closed.Load() {
		return Position{}, false, ErrIndexClosed
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	previous, existed = idx.entries[key]
	if existed {
		delete(idx.entries, key)
	}
	return previous, existed, nil
}

// Get returns the current Position for key.
func (idx *Index) Get(key string) (pos Position, found bool, err error) {
	if idx.closed.Load() {
		return Position{}, false, ErrIndexClosed
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pos, found = idx.entries[key]
	return pos, found, nil
}

// CompareAndSwap replaces key's Position with next only if its current
// Position still equals old, mirroring sync/atomic's CompareAndSwap
// semantics at key granularity. Compaction uses this to install a
// rewritten record's new location without clobbering a concurrent write
// that landed on the same key after the compaction snapshot was taken.
func (idx *Index) CompareAndSwap(key string, old, next Position) (swapped bool, err error) {
	if idx.closed.Load() {
		return false, ErrIndexClosed
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	current, found := idx.entries[key]
	if !found || current != old {
		return false, nil
	}

	idx.entries[key] = next
	return true, nil
}

// Snapshot returns a point-in-time copy of every key and its Position.
// Compaction walks this copy rather than the live map so rewriting a
// segment never holds the index lock for the duration of the rewrite.
func (idx *Index) Snapshot() (map[string]Position, error) {
	if idx.closed.Load() {
		return nil, ErrIndexClosed
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snap := make(map[string]Position, len(idx.entries))
	for k, v := range idx.entries {
		snap[k] = v
	}
	return snap, nil
}

// Len returns the number of live keys currently indexed.
func (idx *Index) Len() (int, error) {
	if idx.closed.Load() {
		return 0, ErrIndexClosed
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries), nil
}

// TotalLength returns the sum of every live Position's Length: the number
// of bytes across all segments that are still reachable from the index.
// Subtracting this from the total bytes written across every generation
// yields the store's overall stale byte count without needing to replay
// deletions incrementally.
func (idx *Index) TotalLength() (int64, error) {
	if idx.closed.Load() {
		return 0, ErrIndexClosed
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	for _, pos := range idx.entries {
		total += pos.Length
	}
	return total, nil
}

// Close gracefully shuts down the Index, releasing its backing map and
// ensuring the index cannot be used after closure.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrIndexClosed
	}

	idx.log.Infow("closing index")

	idx.mu.Lock()
	defer idx.mu.Unlock()

	clear(idx.entries)
	idx.entries = nil

	idx.log.Infow("index closed")
	return nil
}

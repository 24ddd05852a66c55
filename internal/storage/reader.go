package storage

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
	"github.com/tysonmote/gommap"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// frozenHandle is a read-only mmap of a generation that is no longer the
// active segment. A frozen generation never changes again for the rest of
// its life, making it an ideal mmap candidate: the OS page cache serves
// repeat reads without another syscall per lookup. Because the mapping
// never changes, it is safe to share one frozenHandle across every
// borrower that reads that generation; refs tracks how many HandleCaches
// currently hold it so the pool only unmaps it once the last one lets go.
type frozenHandle struct {
	generation uint64
	file       *os.File
	mmap       gommap.MMap
	refs       atomic.Int32
}

func (h *frozenHandle) readAt(offset, length int64) ([]byte, error) {
	end := offset + length
	if offset < 0 || length < 0 || end > int64(len(h.mmap)) {
		return nil, errors.NewStorageError(
			nil, errors.ErrorCodeIO, "record extends past segment bounds",
		).WithOffset(int(offset)).WithFileName(h.file.Name())
	}
	out := make([]byte, length)
	copy(out, h.mmap[offset:end])
	return out, nil
}

func (h *frozenHandle) unmap() error {
	if err := h.mmap.UnsafeUnmap(); err != nil {
		return err
	}
	return h.file.Close()
}

// HandleCache is a per-borrower set of generations currently in use. It is
// borrowed from the ReaderPool for one read (or one compaction pass),
// returned, and handed to later borrowers, so its held handles are reused
// across calls. Go has no thread-local storage, so rather than imitate one,
// a HandleCache is modeled as an object explicitly borrowed from a
// sync.Pool and used exclusively by one goroutine until Return: cheap
// repeated reads without ever sharing a file cursor across goroutines.
type HandleCache struct {
	held  map[uint64]*frozenHandle
	limit int
	order []uint64 // recency order, oldest first, for simple LRU eviction
}

func newHandleCache(limit int) *HandleCache {
	return &HandleCache{held: make(map[uint64]*frozenHandle), limit: limit}
}

func (c *HandleCache) touch(generation uint64) {
	for i, g := range c.order {
		if g == generation {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, generation)
}

func (c *HandleCache) evictIfNeeded(pool *ReaderPool) {
	for c.limit > 0 && len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		if h, ok := c.held[oldest]; ok {
			delete(c.held, oldest)
			pool.release(h)
		}
	}
}

// ReaderPool serves point reads against every generation on disk: the
// live active segment is read through Writer directly (it is still being
// appended to, so mmap'ing it would race with growth), while every frozen
// generation below it is served here via a shared, refcounted mmap.
type ReaderPool struct {
	dir     string
	log     *zap.SugaredLogger
	cacheSz int
	floor   atomic.Uint64 // lowest generation still on disk

	mu     sync.Mutex
	shared map[uint64]*frozenHandle

	pool      sync.Pool
	openGroup singleflight.Group // collapses concurrent first-opens of the same generation
}

// NewReaderPool builds a ReaderPool rooted at dir. cacheSize bounds how
// many generation handles a single borrowed HandleCache keeps pinned
// before evicting the least recently used one.
func NewReaderPool(dir string, cacheSize int, log *zap.SugaredLogger) *ReaderPool {
	rp := &ReaderPool{dir: dir, log: log, cacheSz: cacheSize, shared: make(map[uint64]*frozenHandle)}
	rp.pool.New = func() any { return newHandleCache(cacheSize) }
	return rp
}

// Borrow checks out a HandleCache for exclusive use by the calling
// goroutine. The caller must call Return when done.
func (rp *ReaderPool) Borrow() *HandleCache {
	return rp.pool.Get().(*HandleCache)
}

// Return releases a HandleCache back to the pool for reuse.
func (rp *ReaderPool) Return(c *HandleCache) {
	rp.pool.Put(c)
}

// ReadFrozen reads length bytes at offset from generation's on-disk
// segment, mapping it into the shared pool on first use by any borrower.
func (rp *ReaderPool) ReadFrozen(cache *HandleCache, generation uint64, offset, length int64) ([]byte, error) {
	if generation < rp.floor.Load() {
		return nil, errors.NewStorageError(
			nil, errors.ErrorCodeGenerationCompacted, "generation has been compacted away",
		).WithDetail("generation", generation)
	}

	h, ok := cache.held[generation]
	if !ok {
		acquired, err := rp.acquire(generation)
		if err != nil {
			return nil, err
		}
		h = acquired
		cache.held[generation] = h
		cache.touch(generation)
		cache.evictIfNeeded(rp)
	} else {
		cache.touch(generation)
	}

	return h.readAt(offset, length)
}

// acquire returns the shared frozenHandle for generation, mmap'ing it the
// first time any borrower asks for it. singleflight collapses concurrent
// first-opens from different goroutines into a single mmap syscall;
// every caller here, whether it led the flight or rode along, gets the
// same handle with its refcount bumped exactly once.
func (rp *ReaderPool) acquire(generation uint64) (*frozenHandle, error) {
	rp.mu.Lock()
	if h, ok := rp.shared[generation]; ok {
		h.refs.Add(1)
		rp.mu.Unlock()
		return h, nil
	}
	rp.mu.Unlock()

	key := seginfo.FileName(generation)
	v, err, _ := rp.openGroup.Do(key, func() (any, error) {
		rp.mu.Lock()
		if h, ok := rp.shared[generation]; ok {
			rp.mu.Unlock()
			return h, nil
		}
		rp.mu.Unlock()

		path := seginfo.Path(rp.dir, generation)
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "open frozen segment").
				WithFileName(key).WithPath(path)
		}

		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "stat frozen segment").WithPath(path)
		}

		h := &frozenHandle{generation: generation, file: file}
		if info.Size() > 0 {
			mm, err := gommap.Map(file.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
			if err != nil {
				file.Close()
				return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "mmap frozen segment").WithPath(path)
			}
			h.mmap = mm
		}

		rp.mu.Lock()
		rp.shared[generation] = h
		rp.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}

	h := v.(*frozenHandle)
	h.refs.Add(1)
	return h, nil
}

// release decrements h's refcount, unmapping and closing it once the last
// holder has let go.
func (rp *ReaderPool) release(h *frozenHandle) {
	if h.refs.Add(-1) > 0 {
		return
	}

	rp.mu.Lock()
	if cur, ok := rp.shared[h.generation]; ok && cur == h {
		delete(rp.shared, h.generation)
	}
	rp.mu.Unlock()

	if h.mmap != nil {
		if err := h.unmap(); err != nil {
			rp.log.Warnw("unmap frozen segment", "generation", h.generation, "error", err)
		}
	} else {
		h.file.Close()
	}
}

// Evict forcibly drops generation from the shared map regardless of
// refcount, used by compaction immediately before deleting the file from
// disk so no borrower can acquire a handle to a path that is about to
// stop existing.
func (rp *ReaderPool) Evict(generation uint64) {
	rp.mu.Lock()
	h, ok := rp.shared[generation]
	if ok {
		delete(rp.shared, generation)
	}
	rp.mu.Unlock()

	if ok && h.mmap != nil {
		if err := h.unmap(); err != nil {
			rp.log.Warnw("unmap evicted segment", "generation", generation, "error", err)
		}
	} else if ok {
		h.file.Close()
	}
}

// Close unmaps and closes every frozen generation still held by the pool,
// regardless of outstanding refcount. Called once by the engine at
// shutdown, after every goroutine using the engine has stopped issuing
// reads, so there is no remaining borrower to race with.
func (rp *ReaderPool) Close() error {
	rp.mu.Lock()
	handles := rp.shared
	rp.shared = make(map[uint64]*frozenHandle)
	rp.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if h.mmap != nil {
			if err := h.unmap(); err != nil {
				errs = append(errs, err)
			}
		} else if err := h.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

// AdvanceFloor raises the lowest generation still considered live on
// disk. Called by compaction just before it deletes the superseded
// generations, so a stale HandleCache entry for a generation being deleted
// is rejected instead of reading through a dangling mapping.
func (rp *ReaderPool) AdvanceFloor(generation uint64) {
	for {
		cur := rp.floor.Load()
		if generation <= cur {
			return
		}
		if rp.floor.CompareAndSwap(cur, generation) {
			return
		}
	}
}

// Package compaction implements the synchronous compactor that reclaims
// stale bytes by rewriting every live key into a fresh generation.
//
// Compaction never blocks readers for longer than one atomic index swap
// per key: concurrent reads against the generations being compacted away
// keep resolving through their existing handles until the very last step,
// when the safe-generation floor advances and those generations are
// deleted. Grounded on the indexed-rewrite-then-delete shape common to
// bitcask-style compactors in the pack (gtarraga-kv-store,
// intellect4all-storage-engines).
package compaction

import (
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/internal/storage"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
	"go.uber.org/zap"
)

// Run executes one compaction pass: it rewrites every key currently in
// idx into a new generation, rotates the writer onto a fresh active
// segment beyond it, advances pool's floor, and deletes every segment
// file that is no longer reachable.
//
// dir is the segment directory, activeGeneration is the generation the
// writer was appending to when compaction was triggered, and
// onDiskGenerations is every generation currently present (as returned by
// storage.Open / seginfo.DiscoverGenerations) so superseded files can be
// computed as a set difference rather than a manual scan.
func Run(
	dir string,
	activeGeneration uint64,
	onDiskGenerations []uint64,
	idx *index.Index,
	writer *storage.Writer,
	pool *storage.ReaderPool,
	log *zap.SugaredLogger,
) error {
	compactGen := activeGeneration + 1
	newActiveGen := activeGeneration + 2

	log.Infow("compaction starting", "activeGeneration", activeGeneration, "compactGeneration", compactGen)

	rewriter, err := newCompactSegment(dir, compactGen)
	if err != nil {
		return err
	}

	snap, err := idx.Snapshot()
	if err != nil {
		rewriter.close()
		return err
	}

	cache := pool.Borrow()
	defer pool.Return(cache)

	for key, oldPos := range snap {
		buf, err := readVerbatim(writer, pool, cache, oldPos)
		if err != nil {
			rewriter.close()
			return err
		}

		newOffset, err := rewriter.append(buf)
		if err != nil {
			rewriter.close()
			return err
		}

		newPos := index.Position{Generation: compactGen, Offset: newOffset, Length: oldPos.Length}

		swapped, err := idx.CompareAndSwap(key, oldPos, newPos)
		if err != nil {
			rewriter.close()
			return err
		}
		if !swapped {
			// A concurrent writer updated this key after the snapshot was
			// taken; the bytes we just wrote are harmless, unreachable
			// stale data in compactGen, and the index already points
			// elsewhere.
			log.Warnw("compaction lost race on key, discarding rewritten record", "key", key)
		}
	}

	if err := rewriter.close(); err != nil {
		return err
	}

	if err := writer.Rotate(newActiveGen); err != nil {
		return err
	}

	pool.AdvanceFloor(compactGen)

	superseded := mapset.NewSet[uint64]()
	for _, gen := range onDiskGenerations {
		if gen < compactGen {
			superseded.Add(gen)
		}
	}

	for gen := range superseded.Iter() {
		pool.Evict(gen)
		if err := storage.DeleteGeneration(dir, gen); err != nil {
			log.Warnw("delete superseded generation", "generation", gen, "error", err)
		}
	}

	writer.ResetStaleBytes()

	log.Infow(
		"compaction finished",
		"compactGeneration", compactGen,
		"newActiveGeneration", newActiveGen,
		"deletedGenerations", superseded.Cardinality(),
	)

	return nil
}

func readVerbatim(writer *storage.Writer, pool *storage.ReaderPool, cache *storage.HandleCache, pos index.Position) ([]byte, error) {
	if pos.Generation == writer.Generation() {
		return writer.ReadActive(pos.Offset, pos.Length)
	}
	return pool.ReadFrozen(cache, pos.Generation, pos.Offset, pos.Length)
}

// compactSegment is a bare append-only file used only by the compactor:
// unlike storage.Writer it carries no stale-byte accounting or fsync
// policy, since it is discarded the moment compaction finishes and
// becomes just another frozen generation.
type compactSegment struct {
	file *os.File
	size int64
}

func newCompactSegment(dir string, generation uint64) (*compactSegment, error) {
	path := seginfo.Path(dir, generation)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "create compaction segment").WithPath(path)
	}
	return &compactSegment{file: f}, nil
}

func (c *compactSegment) append(b []byte) (int64, error) {
	offset := c.size

	n, err := c.file.Write(b)
	if err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "write compaction segment").
			WithOffset(int(offset)).WithPath(c.file.Name())
	}
	c.size += int64(n)
	return offset, nil
}

func (c *compactSegment) close() error {
	if err := c.file.Sync(); err != nil {
		c.file.Close()
		return errors.NewStorageError(err, errors.ErrorCodeIO, "sync compaction segment").WithPath(c.file.Name())
	}
	return c.file.Close()
}

// Package engine provides the core database engine implementation for the
// Ignite storage system.
//
// The engine serves as the central coordinator and entry point for all
// database operations. It orchestrates the interaction between three main
// subsystems:
//   - Index: the in-memory hash table mapping keys to disk positions.
//   - Storage: the append-only segment writer and the read-side handle pool.
//   - Compaction: synchronous reclamation of stale bytes once a threshold
//     is crossed mid-write.
//
// The engine owns the one piece of coordination none of those three
// packages can express on their own: the single mutex that makes "a write,
// and the compaction it may trigger" one atomic unit from every other
// caller's point of view.
package engine

import (
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iamNilotpal/ignite/internal/compaction"
	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/internal/storage"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/filesys"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/iamNilotpal/ignite/pkg/record"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned when attempting to perform operations on a
// closed engine.
var ErrEngineClosed = stdErrors.New("operation failed: cannot access closed engine")

// sentinelFile marks a data directory as owned by this engine. Its
// presence (or absence alongside some other backend's marker) is how Open
// decides whether to proceed or fail with WrongEngine per §6.3.
const sentinelFile = "IGNITE_ENGINE"

// Engine coordinates the index, storage, and compaction subsystems behind
// a single write mutex. Reads never take that mutex; they're served
// directly by the index and the reader pool, which are both safe for
// concurrent use on their own.
type Engine struct {
	log    *zap.SugaredLogger
	opts   *options.Options
	dir    string
	closed atomic.Bool

	idx    *index.Index
	writer *storage.Writer
	pool   *storage.ReaderPool

	writeMu sync.Mutex // serializes Set/Remove and any compaction they trigger

	onDiskGenerations []uint64 // refreshed after every compaction pass
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New opens (or creates) the engine's data directory and rebuilds the
// index by replaying every segment generation found there in order.
func New(config *Config) (*Engine, error) {
	if config == nil || config.Options == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "engine configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	opts := config.Options
	log := config.Logger

	if err := filesys.CreateDir(opts.DataDir, 0755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, opts.DataDir)
	}

	if err := claimDirectory(opts.DataDir); err != nil {
		return nil, err
	}

	segDir := filepath.Join(opts.DataDir, opts.SegmentOptions.Directory)
	if err := filesys.CreateDir(segDir, 0755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, segDir)
	}

	idx, err := index.New(&index.Config{Logger: log})
	if err != nil {
		return nil, err
	}

	writer, pool, generations, err := storage.Open(segDir, opts, log)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		log: log, opts: opts, dir: segDir,
		idx: idx, writer: writer, pool: pool,
		onDiskGenerations: generations,
	}

	if err := eng.replay(generations); err != nil {
		return nil, err
	}

	log.Infow("engine opened", "dir", opts.DataDir, "generations", len(generations))
	return eng, nil
}

// claimDirectory writes this engine's sentinel into dir the first time it
// sees a fresh directory, and fails with WrongEngine if some other
// backend's marker is already present.
func claimDirectory(dir string) error {
	path := filepath.Join(dir, sentinelFile)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "inspect data directory").WithPath(dir)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == sentinelFile {
			continue
		}
		if isForeignSentinel(e.Name()) {
			return errors.NewWrongEngineError(dir)
		}
	}

	// CreateExclusive no-ops (created=false) when this directory was
	// already claimed by an earlier open; that's the common case and not
	// an error.
	if _, err := filesys.CreateExclusive(path, []byte(sentinelFile+"\n")); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "claim data directory").WithPath(path)
	}
	return nil
}

// isForeignSentinel recognizes the well-known marker files of a few
// common embedded-storage backends, so opening their data directory by
// mistake fails loudly instead of corrupting it.
func isForeignSentinel(name string) bool {
	switch name {
	case "CURRENT", "MANIFEST", "LOCK", "IDENTITY": // leveldb/rocksdb family
		return true
	case "bitcask.lock", "bitcask.meta": // bitcask family
		return true
	}
	return false
}

// replay rebuilds the index from every on-disk generation in order,
// tracking total bytes seen so staleBytes can be seeded as
// totalBytesSeen - index.TotalLength() once replay completes, rather than
// re-deriving it record by record.
func (e *Engine) replay(generations []uint64) error {
	var totalBytes int64

	for _, gen := range generations {
		r, err := storage.OpenForReplay(e.dir, gen)
		if err != nil {
			return err
		}

		dec := record.NewStreamDecoder(r)
		for {
			entry, err := dec.Next()
			if err != nil {
				if stdErrors.Is(err, io.EOF) {
					break // io.EOF (clean end or a torn final record) stops replay for this generation
				}
				r.Close()
				return err
			}

			totalBytes += entry.Length
			pos := index.Position{Generation: gen, Offset: entry.Offset, Length: entry.Length}

			switch entry.Record.Kind {
			case record.KindSet, record.KindSetExpiring:
				if _, _, err := e.idx.Insert(entry.Record.Key, pos); err != nil {
					r.Close()
					return err
				}
			case record.KindRemove:
				if _, _, err := e.idx.Remove(entry.Record.Key); err != nil {
					r.Close()
					return err
				}
			default:
				r.Close()
				return errors.NewCorruptError(nil, fmt.Sprintf("unknown record kind %q in generation %d", entry.Record.Kind, gen))
			}
		}

		if err := r.Close(); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "close replayed segment")
		}
	}

	liveLength, err := e.idx.TotalLength()
	if err != nil {
		return err
	}
	e.writer.AddStaleBytes(totalBytes - liveLength)

	return nil
}

// Set stores key/value, indexing the new Position and running compaction
// synchronously if this write pushes staleBytes past the configured
// threshold.
func (e *Engine) Set(key string, value []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	prior, existed, err := e.idx.Get(key)
	if err != nil {
		return err
	}
	var priorLength int64
	if existed {
		priorLength = prior.Length
	}

	result, err := e.writer.Set(key, value, priorLength)
	if err != nil {
		return err
	}

	if _, _, err := e.idx.Insert(key, result.Position); err != nil {
		return err
	}

	if result.Crossed {
		return e.compactLocked()
	}
	return nil
}

// SetExpiring stores key/value with an absolute Unix-seconds expiry. It
// is only reachable when the engine was configured with
// options.WithExpiringKeysEnabled; otherwise it returns a feature-disabled
// error instead of writing anything, keeping the default configuration
// free of the TTL code path entirely.
func (e *Engine) SetExpiring(key string, value []byte, expiresAt int64) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if !e.opts.ExpiringKeysEnabled {
		return errors.NewEngineError(nil, errors.ErrorCodeFeatureDisabled, "expiring keys are not enabled for this engine").WithKey(key)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	prior, existed, err := e.idx.Get(key)
	if err != nil {
		return err
	}
	var priorLength int64
	if existed {
		priorLength = prior.Length
	}

	result, err := e.writer.SetExpiring(key, value, expiresAt, priorLength)
	if err != nil {
		return err
	}

	if _, _, err := e.idx.Insert(key, result.Position); err != nil {
		return err
	}

	if result.Crossed {
		return e.compactLocked()
	}
	return nil
}

// maxCompactionRaceRetries bounds how many times Get re-consults the index
// after losing a race with compaction. One retry covers the common case
// (the floor advanced once between the index read and the disk read); a
// small bound guards against livelock if compaction were somehow running
// back-to-back without ever letting the retry observe a stable Position.
const maxCompactionRaceRetries = 8

// Get resolves key through the index and reads its record from whichever
// generation currently holds it, never taking writeMu.
//
// Because reads are lockless, a Get can race a concurrent compaction: the
// index lookup returns a Position in generation G, and before the disk
// read happens compaction rewrites the key into a newer generation and
// deletes G. The stale Position then resolves to ErrorCodeGenerationCompacted
// rather than the value. Per §4.4/§5, the key is still live (compaction only
// ever moves a live key, never removes it), so this is retried by
// re-consulting the index rather than surfaced as a read failure.
func (e *Engine) Get(key string) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	var pos index.Position
	var buf []byte

	for attempt := 0; ; attempt++ {
		p, found, err := e.idx.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.NewEngineKeyNotFoundError(key)
		}
		pos = p

		buf, err = e.readPosition(pos)
		if err == nil {
			break
		}

		if se, ok := errors.AsStorageError(err); ok && se.Code() == errors.ErrorCodeGenerationCompacted && attempt < maxCompactionRaceRetries {
			continue
		}
		return nil, err
	}

	rec, err := record.Decode(buf)
	if err != nil {
		return nil, err
	}
	if rec.Kind == record.KindRemove {
		return nil, errors.NewUnexpectedCommandError(key, pos.Generation)
	}

	if e.opts.ExpiringKeysEnabled && rec.Kind == record.KindSetExpiring && rec.ExpiresAt != 0 && time.Now().Unix() >= rec.ExpiresAt {
		return nil, errors.NewEngineKeyNotFoundError(key)
	}

	return rec.Value, nil
}

func (e *Engine) readPosition(pos index.Position) ([]byte, error) {
	if pos.Generation == e.writer.Generation() {
		return e.writer.ReadActive(pos.Offset, pos.Length)
	}

	cache := e.pool.Borrow()
	defer e.pool.Return(cache)
	return e.pool.ReadFrozen(cache, pos.Generation, pos.Offset, pos.Length)
}

// Remove deletes key. Per §4.5, issuing a tombstone for an absent key
// would grow the log without changing state, so an absent key fails with
// KeyNotFound before anything is written.
func (e *Engine) Remove(key string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	prior, existed, err := e.idx.Get(key)
	if err != nil {
		return err
	}
	if !existed {
		return errors.NewEngineKeyNotFoundError(key)
	}

	result, err := e.writer.Remove(key, prior.Length)
	if err != nil {
		return err
	}

	if _, _, err := e.idx.Remove(key); err != nil {
		return err
	}
	// result.Position is the tombstone's own location; nothing ever
	// indexes a Remove record, so it is discarded here.

	if result.Crossed {
		return e.compactLocked()
	}
	return nil
}

// compactLocked runs one compaction pass. Callers must already hold
// writeMu, which is what gives compaction's snapshot-then-rewrite loop
// the same serialization-with-writes guarantee the algorithm in §4.6
// assumes.
func (e *Engine) compactLocked() error {
	active := e.writer.Generation()

	if err := compaction.Run(e.dir, active, e.onDiskGenerations, e.idx, e.writer, e.pool, e.log); err != nil {
		return err
	}

	generations, err := seginfo.DiscoverGenerations(e.dir)
	if err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "rediscover generations after compaction").WithPath(e.dir)
	}
	e.onDiskGenerations = generations
	return nil
}

// Close releases every resource the engine holds: the active segment, the
// reader pool's shared mappings, and the index. Partial failures are
// aggregated rather than dropped so a caller sees every subsystem that
// failed to close cleanly, not just the first.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var errs []error
	if err := e.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.idx.Close(); err != nil {
		errs = append(errs, err)
	}

	e.log.Infow("engine closed")
	return multierr.Combine(errs...)
}

package storage

import (
	"path/filepath"

	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/record"
)

// NewWriter opens generation as the active segment and returns a Writer
// ready to accept appends. Callers are responsible for discovering which
// generation should be active (internal/engine does this at Open time by
// inspecting the directory via pkg/seginfo).
func NewWriter(dir string, generation uint64, config *Config) (*Writer, error) {
	if config == nil || config.Options == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "writer configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	active, err := openActiveSegment(dir, generation)
	if err != nil {
		return nil, err
	}

	w := &Writer{active: active, dir: dir, opts: config.Options, log: config.Logger}
	return w, nil
}

// Generation returns the generation currently being appended to.
func (w *Writer) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.generation
}

// StaleBytes returns the current count of bytes written across all
// generations that are no longer reachable from the index.
func (w *Writer) StaleBytes() int64 {
	return w.staleBytes.Load()
}

// AddStaleBytes folds n additional stale bytes into the running total,
// used once at Open time to seed the counter from the bytes-seen-minus-live
// formula computed during replay.
func (w *Writer) AddStaleBytes(n int64) {
	w.staleBytes.Add(n)
}

// Set appends a Set record for key/value, returning the Position the
// caller should install in the index and whether this append pushed
// staleBytes at or past the configured compaction threshold.
//
// priorLength is the Length of the Position this key previously occupied,
// or zero if the key is new; it is added to staleBytes since the old
// record is now superseded and unreachable.
func (w *Writer) Set(key string, value []byte, priorLength int64) (Result, error) {
	if w.closed.Load() {
		return Result{}, ErrSegmentClosed
	}

	enc, err := record.Encode(record.Record{Kind: record.KindSet, Key: key, Value: value})
	if err != nil {
		return Result{}, err
	}

	return w.appendLocked(key, enc, priorLength)
}

// SetExpiring appends a KindSetExpiring record carrying expiresAt, the
// same Unix-seconds deadline record.Decode will later surface to callers
// so they can treat an expired read as absent.
func (w *Writer) SetExpiring(key string, value []byte, expiresAt int64, priorLength int64) (Result, error) {
	if w.closed.Load() {
		return Result{}, ErrSegmentClosed
	}

	enc, err := record.Encode(record.Record{
		Kind: record.KindSetExpiring, Key: key, Value: value, ExpiresAt: expiresAt,
	})
	if err != nil {
		return Result{}, err
	}

	return w.appendLocked(key, enc, priorLength)
}

// Remove appends a tombstone for key. priorLength is the Length of the
// Position being deleted; both that length and the tombstone's own length
// become stale the instant this call returns, since a removed key has no
// live Position at all.
func (w *Writer) Remove(key string, priorLength int64) (Result, error) {
	if w.closed.Load() {
		return Result{}, ErrSegmentClosed
	}

	enc, err := record.Encode(record.Record{Kind: record.KindRemove, Key: key})
	if err != nil {
		return Result{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.active.append(enc, w.opts.FsyncOnWrite)
	if err != nil {
		return Result{}, err
	}

	tombstoneLen := int64(len(enc))
	w.staleBytes.Add(priorLength + tombstoneLen)

	pos := index.Position{Generation: w.active.generation, Offset: offset, Length: tombstoneLen}
	crossed := w.staleBytes.Load() >= int64(w.opts.CompactionThreshold)

	return Result{Position: pos, Crossed: crossed}, nil
}

func (w *Writer) appendLocked(key string, enc []byte, priorLength int64) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.active.append(enc, w.opts.FsyncOnWrite)
	if err != nil {
		return Result{}, err
	}

	if priorLength > 0 {
		w.staleBytes.Add(priorLength)
	}

	pos := index.Position{Generation: w.active.generation, Offset: offset, Length: int64(len(enc))}
	crossed := w.staleBytes.Load() >= int64(w.opts.CompactionThreshold)

	return Result{Position: pos, Crossed: crossed}, nil
}

// ReadActive reads length bytes at offset from the active segment. Unlike
// a frozen generation, the active segment is still growing, so every read
// goes through the plain file handle with a positional read rather than a
// cached mmap.
func (w *Writer) ReadActive(offset, length int64) ([]byte, error) {
	w.mu.Lock()
	f := w.active.file
	w.mu.Unlock()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "read active segment").
			WithOffset(int(offset)).WithFileName(filepath.Base(f.Name()))
	}
	return buf, nil
}

// Rotate closes the current active segment and opens generation as the
// new one, used by compaction once it has rewritten every live key into a
// fresh generation and wants subsequent writes to continue past it.
func (w *Writer) Rotate(generation uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active.close(); err != nil {
		w.log.Warnw("close rotated-out segment", "generation", w.active.generation, "error", err)
	}

	active, err := openActiveSegment(w.dir, generation)
	if err != nil {
		return err
	}
	w.active = active
	return nil
}

// ResetStaleBytes zeroes the stale byte counter, used by compaction once
// every superseded generation has been deleted and its stale contribution
// no longer exists anywhere on disk.
func (w *Writer) ResetStaleBytes() {
	w.staleBytes.Store(0)
}

// Close closes the active segment file.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return ErrSegmentClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return w.active.close()
}

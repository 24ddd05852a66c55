package options

const (
	// DefaultDataDir is used when no directory is supplied to NewInstance.
	// Callers of the library are expected to override this in all but the
	// simplest local tooling.
	DefaultDataDir = "/var/lib/ignitedb"

	// DefaultSegmentDirectory names the subdirectory within DataDir where
	// generation segment files (`<generation>.log`) live.
	DefaultSegmentDirectory = "segments"

	// DefaultCompactionThreshold is the amount of stale bytes that
	// accumulates before a write triggers synchronous compaction. The spec
	// requires 1 MiB for the concrete test scenarios; any value in
	// [MinCompactionThreshold, MaxCompactionThreshold] is an accepted override.
	DefaultCompactionThreshold uint64 = 1024 * 1024

	// MinCompactionThreshold is the smallest accepted compaction threshold (256 KiB).
	MinCompactionThreshold uint64 = 256 * 1024

	// MaxCompactionThreshold is the largest accepted compaction threshold (16 MiB).
	MaxCompactionThreshold uint64 = 16 * 1024 * 1024

	// DefaultReaderCacheSize bounds how many open read handles a single
	// borrowed reader cache keeps before evicting the least recently used one.
	DefaultReaderCacheSize = 32

	// DefaultFsyncOnWrite controls whether every append is flushed to the
	// OS with fsync before the call returns. The spec permits either
	// behavior (§9); we default to off, matching the teacher's buffered
	// writes posture, and let callers opt into stricter durability.
	DefaultFsyncOnWrite = false

	// DefaultExpiringKeysEnabled gates the SetX/expiry code path. It
	// defaults to off so the engine's default configuration honors the
	// spec's "no TTLs" non-goal exactly; see SPEC_FULL.md §4.
	DefaultExpiringKeysEnabled = false
)

// defaultOptions holds the baseline configuration applied before any
// functional options supplied by the caller are processed.
var defaultOptions = Options{
	DataDir:             DefaultDataDir,
	CompactionThreshold: DefaultCompactionThreshold,
	FsyncOnWrite:        DefaultFsyncOnWrite,
	ReaderCacheSize:     DefaultReaderCacheSize,
	ExpiringKeysEnabled: DefaultExpiringKeysEnabled,
	SegmentOptions: &segmentOptions{
		Directory: DefaultSegmentDirectory,
	},
}

// NewDefaultOptions returns a fresh copy of the baseline configuration. A
// fresh SegmentOptions is allocated per call so that callers mutating one
// Options value never affect another.
func NewDefaultOptions() Options {
	opts := defaultOptions
	segOpts := *defaultOptions.SegmentOptions
	opts.SegmentOptions = &segOpts
	return opts
}

// Package options provides data structures and functions for configuring
// the Ignite database. It defines the parameters that control Ignite's
// storage behavior, durability, and compaction triggers.
package options

import "strings"

// segmentOptions defines configurable parameters for segment file
// placement. Segment file names themselves are never configurable: the
// on-disk format fixes them to `<generation>.log` so recovery can enumerate
// and order generations from the directory listing alone.
type segmentOptions struct {
	// Directory is the subdirectory, relative to DataDir, where segment
	// files are stored.
	//
	// Default: "segments"
	Directory string `json:"directory"`
}

// Options defines the configuration parameters for an Ignite engine
// instance. It controls on-disk layout, durability, and compaction.
type Options struct {
	// DataDir is the base path where the engine's directory lives.
	//
	// Default: "/var/lib/ignitedb"
	DataDir string `json:"dataDir"`

	// CompactionThreshold is the number of stale bytes that must
	// accumulate before a write triggers synchronous compaction.
	//
	// Default: 1 MiB
	CompactionThreshold uint64 `json:"compactionThreshold"`

	// FsyncOnWrite controls whether every append is fsync'd before the
	// call returns. See §9 of the specification for the durability
	// tradeoff this weakens when disabled.
	//
	// Default: false
	FsyncOnWrite bool `json:"fsyncOnWrite"`

	// ReaderCacheSize bounds how many open read handles a single borrowed
	// reader cache keeps before evicting the least recently used one.
	//
	// Default: 32
	ReaderCacheSize int `json:"readerCacheSize"`

	// ExpiringKeysEnabled gates the optional SetX/expiry code path. Off by
	// default so the default configuration carries no TTL behavior.
	//
	// Default: false
	ExpiringKeysEnabled bool `json:"expiringKeysEnabled"`

	// SegmentOptions configures segment file placement.
	SegmentOptions *segmentOptions `json:"segmentOptions"`
}

// OptionFunc is a function type that modifies the engine's configuration.
type OptionFunc func(*Options)

// WithDefaultOptions resets every field to the package defaults. Useful
// when composing option lists where a later option should discard earlier
// overrides.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// WithDataDir sets the base directory for the engine's on-disk state.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithSegmentDir sets the subdirectory, relative to DataDir, that holds
// segment files.
func WithSegmentDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.SegmentOptions.Directory = directory
		}
	}
}

// WithCompactionThreshold sets the stale-byte threshold that triggers
// synchronous compaction. Values outside [MinCompactionThreshold,
// MaxCompactionThreshold] are ignored, keeping the engine inside the
// spec's accepted range.
func WithCompactionThreshold(bytes uint64) OptionFunc {
	return func(o *Options) {
		if bytes >= MinCompactionThreshold && bytes <= MaxCompactionThreshold {
			o.CompactionThreshold = bytes
		}
	}
}

// WithFsyncOnWrite enables or disables fsync-per-append durability.
func WithFsyncOnWrite(enabled bool) OptionFunc {
	return func(o *Options) {
		o.FsyncOnWrite = enabled
	}
}

// WithReaderCacheSize sets how many open read handles a borrowed reader
// cache keeps before evicting the least recently used one.
func WithReaderCacheSize(size int) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.ReaderCacheSize = size
		}
	}
}

// WithExpiringKeysEnabled opts into the SetX/expiry code path. Disabled by
// default to keep the core engine free of TTL behavior per the
// specification's non-goals.
func WithExpiringKeysEnabled(enabled bool) OptionFunc {
	return func(o *Options) {
		o.ExpiringKeysEnabled = enabled
	}
}

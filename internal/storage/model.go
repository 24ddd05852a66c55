package storage

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/pkg/options"
	"go.uber.org/zap"
)

// ActiveSegment is the single generation a Writer is currently appending to.
// Exactly one ActiveSegment exists at a time; once compaction or a fresh
// open replaces it, the old file is only ever read through the ReaderPool.
type ActiveSegment struct {
	generation uint64
	file       *os.File
	size       int64 // current length of file, the offset the next append lands at
}

// Writer owns the single active segment and is the only component permitted
// to append to it. Every mutation of the store funnels through one Writer;
// its internal mutex guards the active segment and is held for the length
// of each append. Readers take it only briefly, in Generation and
// ReadActive, to look up the active file. Serializing whole writes (and the
// compaction they may trigger) is done by internal/engine's write mutex.
type Writer struct {
	mu      sync.Mutex
	active  *ActiveSegment
	dir     string
	opts    *options.Options
	log     *zap.SugaredLogger
	closed  atomic.Bool

	// staleBytes tracks bytes written across all generations that are no
	// longer reachable from the index: superseded Set records and the
	// tombstone+superseded-value pairs left behind by Remove.
	staleBytes atomic.Int64
}

// Config encapsulates the configuration parameters required to initialize a
// Writer.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// Result is what a single append produces: the Position to index the
// record under, and whether this write pushed staleBytes past the
// configured compaction threshold. internal/engine checks Crossed after
// every write and is the only place compaction actually gets triggered,
// keeping this package free of any dependency on internal/compaction.
type Result struct {
	Position index.Position
	Crossed  bool
}

package index

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Position contains the absolute minimum metadata required to locate and
// retrieve a data entry from disk storage. This structure is the primary
// memory consumer in the entire system, making every field choice critical
// for overall scalability.
//
// Each Position serves as a precise "address" that tells the system exactly
// where to find a piece of data without requiring any scanning or additional
// lookups: which generation's segment file, the byte offset within it, and
// how many bytes the record occupies.
type Position struct {
	// Generation identifies which segment file holds this record. Segment
	// files are named `<generation>.log`; this is that same integer, never
	// a filename, so the index stays compact even as segment directories
	// accumulate many generations over the engine's lifetime.
	Generation uint64

	// Offset is the exact byte position within the generation's segment
	// file where this record's encoding begins.
	Offset int64

	// Length is the total number of bytes the record occupies on disk.
	// Knowing the exact length lets a point read fetch an entry in a
	// single I/O call instead of streaming through the JSON decoder.
	Length int64
}

// Index is the in-memory hash table mapping every live key to its current
// Position. This is the central structure of the storage engine: all keys
// are kept in memory for O(1) lookup while the values they point to live on
// disk, so the engine's resident footprint grows with key count and record
// metadata, not with the size of the data itself.
type Index struct {
	log      *zap.SugaredLogger     // Structured logging for index lifecycle events.
	entries  map[string]Position    // Maps live keys to their current disk location.
	mu       sync.RWMutex           // Protects concurrent access to entries.
	closed   atomic.Bool            // Set once the index has been closed.
}

// Config encapsulates the configuration parameters required to initialize
// an Index.
type Config struct {
	Logger *zap.SugaredLogger // Structured logging for index lifecycle events.
}

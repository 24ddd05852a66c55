// Package seginfo provides utilities for naming and discovering the
// append-only segment files that back an Ignite engine directory.
//
// Filename Format: <generation>.log
//
// Where generation is a non-negative decimal integer with no padding and no
// leading zeros, e.g. "1.log", "17.log". The format is fixed by the
// specification so that recovery can enumerate and order every segment from
// the directory listing alone, without reading a separate manifest.
package seginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/iamNilotpal/ignite/pkg/filesys"
)

// segmentPattern matches exactly the filenames the engine itself produces:
// one or more digits followed by the fixed ".log" extension. Anything else
// in the directory (subdirectories, sentinel files, stray siblings) is
// ignored rather than treated as an error, per §4.2 of the specification.
var segmentPattern = regexp.MustCompile(`^(\d+)\.log$`)

// FileName returns the filename a segment of the given generation is
// stored under.
func FileName(generation uint64) string {
	return fmt.Sprintf("%d.log", generation)
}

// Path joins dir and the generation's filename.
func Path(dir string, generation uint64) string {
	return filepath.Join(dir, FileName(generation))
}

// ParseGeneration extracts the generation number from a bare filename
// (not a full path). It returns ok=false for any name that doesn't match
// the fixed `<generation>.log` grammar, allowing callers to silently skip
// unrelated directory entries.
func ParseGeneration(name string) (generation uint64, ok bool) {
	m := segmentPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DiscoverGenerations lists dir and returns every generation number found,
// sorted ascending. A missing directory is reported as "no generations",
// not an error, so callers can distinguish "couldn't list" from "empty".
func DiscoverGenerations(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read segment directory %s: %w", dir, err)
	}

	var gens []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if gen, ok := ParseGeneration(entry.Name()); ok {
			gens = append(gens, gen)
		}
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// Exists reports whether a segment file for the given generation is
// present in dir.
func Exists(dir string, generation uint64) (bool, error) {
	return filesys.Exists(Path(dir, generation))
}

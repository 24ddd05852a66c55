package filesys

import (
	"os"
)

// CreateExclusive atomically creates path with contents if and only if it
// does not already exist, using O_EXCL so the check-then-create is a single
// syscall rather than a TOCTOU-prone Exists+Write pair. It reports whether
// this call was the one that created the file.
func CreateExclusive(path string, contents []byte) (created bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if _, err := f.Write(contents); err != nil {
		return true, err
	}
	return true, nil
}

package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
)

// openActiveSegment opens (creating if absent) the segment file for
// generation in append mode, seeks to its end, and reports its current
// size so the writer knows where the next record will land.
func openActiveSegment(dir string, generation uint64) (*ActiveSegment, error) {
	path := seginfo.Path(dir, generation)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "seek to end of active segment").
			WithFileName(filepath.Base(path)).
			WithPath(path)
	}

	return &ActiveSegment{generation: generation, file: file, size: size}, nil
}

// append writes b to the end of the active segment and returns the offset
// it was written at. Callers hold Writer.mu for the duration.
func (s *ActiveSegment) append(b []byte, fsync bool) (offset int64, err error) {
	offset = s.size

	n, err := s.file.Write(b)
	if err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "append record").
			WithOffset(int(offset)).
			WithPath(s.file.Name())
	}

	s.size += int64(n)

	if fsync {
		if err := s.file.Sync(); err != nil {
			return 0, errors.ClassifySyncError(err, filepath.Base(s.file.Name()), s.file.Name(), int(offset))
		}
	}

	return offset, nil
}

func (s *ActiveSegment) close() error {
	return s.file.Close()
}

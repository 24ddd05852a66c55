package errors

// EngineError is a specialized error type for failures surfaced by the
// top-level engine coordinator: missing keys, index/disk skew, recovery
// failures, disabled features, and directory-ownership conflicts with a
// foreign backend. Record encode/decode failures are CodecErrors instead.
type EngineError struct {
	*baseError

	// generation identifies which segment was involved, if applicable.
	generation uint64

	// key identifies which key was being processed, if applicable.
	key string
}

// NewEngineError creates a new engine-specific error.
func NewEngineError(err error, code ErrorCode, msg string) *EngineError {
	return &EngineError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while preserving the EngineError type.
func (ee *EngineError) WithMessage(msg string) *EngineError {
	ee.baseError.WithMessage(msg)
	return ee
}

// WithCode sets the error code while preserving the EngineError type.
func (ee *EngineError) WithCode(code ErrorCode) *EngineError {
	ee.baseError.WithCode(code)
	return ee
}

// WithDetail adds contextual information while preserving the EngineError type.
func (ee *EngineError) WithDetail(key string, value any) *EngineError {
	ee.baseError.WithDetail(key, value)
	return ee
}

// WithGeneration records which segment generation was involved in the error.
func (ee *EngineError) WithGeneration(generation uint64) *EngineError {
	ee.generation = generation
	return ee
}

// WithKey records which key was being processed when the error occurred.
func (ee *EngineError) WithKey(key string) *EngineError {
	ee.key = key
	return ee
}

// Generation returns the segment generation associated with the error.
func (ee *EngineError) Generation() uint64 {
	return ee.generation
}

// Key returns the key associated with the error.
func (ee *EngineError) Key() string {
	return ee.key
}

// NewEngineKeyNotFoundError creates the error returned when remove (and
// optionally get) is issued against a key absent from the index.
func NewEngineKeyNotFoundError(key string) *EngineError {
	return NewEngineError(nil, ErrorCodeIndexKeyNotFound, "key not found").WithKey(key)
}

// NewUnexpectedCommandError creates the error returned when a Position
// resolves to a record that decodes to the wrong command variant.
func NewUnexpectedCommandError(key string, generation uint64) *EngineError {
	return NewEngineError(nil, ErrorCodeUnexpectedCommand, "record at position decoded to unexpected command").
		WithKey(key).
		WithGeneration(generation)
}

// NewWrongEngineError creates the error returned when a data directory is
// already owned by a different storage backend.
func NewWrongEngineError(path string) *EngineError {
	return NewEngineError(nil, ErrorCodeWrongEngine, "data directory is owned by a different engine backend").
		WithDetail("path", path)
}

// NewCorruptError creates a generic recovery-failure error for conditions
// that don't fit a more specific code.
func NewCorruptError(err error, detail string) *EngineError {
	return NewEngineError(err, ErrorCodeCorrupt, "recovery failed: "+detail)
}

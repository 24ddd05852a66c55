// Package ignite provides a high-performance key/value data store
// designed for fast read and write operations, inspired by Bitcask.
// It combines an in-memory hash table (index) with an append-only log
// structure on disk to achieve high throughput. It is designed for
// applications requiring fast read and write operations, such as caching,
// session management, and real-time data processing, aiming to provide a
// simple, efficient, and reliable solution for persistent key/value
// storage in Go applications.
package ignite

import (
	"time"

	"github.com/iamNilotpal/ignite/internal/engine"
	"github.com/iamNilotpal/ignite/pkg/options"
	"go.uber.org/zap"
)

// Instance represents an instance of the Ignite key/value data store.
// It encapsulates the core engine responsible for data handling and the
// configuration options for this specific database instance.
//
// Instance is the primary entry point for interacting with the Ignite
// store, providing methods for setting, getting, and deleting key-value
// pairs.
type Instance struct {
	engine  *engine.Engine   // The underlying database engine handling read/write operations.
	options *options.Options // Configuration options applied to this DB instance.
}

// NewInstance creates and initializes a new Ignite DB instance rooted at
// the directory given via options.WithDataDir (or the package default).
func NewInstance(service string, opts ...options.OptionFunc) (*Instance, error) {
	log, err := newLogger(service)
	if err != nil {
		return nil, err
	}

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.New(&engine.Config{Logger: log, Options: &defaultOpts})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &defaultOpts}, nil
}

// newLogger builds the *zap.SugaredLogger threaded through every
// subsystem's Config. There is no standalone logging-setup package
// anywhere in the pack to ground a dedicated one on, so construction
// lives here as a small unexported helper instead, following zap's own
// documented production-logger idiom rather than stdlib's log package.
func newLogger(service string) (*zap.SugaredLogger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return base.Sugar().With("service", service), nil
}

// Set stores a key-value pair in the database. If the key already
// exists, its value is updated. The write is appended to the active
// segment before this call returns.
func (i *Instance) Set(key string, value []byte) error {
	return i.engine.Set(key, value)
}

// SetX stores a key-value pair with an expiration. The entry is treated
// as absent by Get once expiry has passed. This is an optional, opt-in
// code path: it only succeeds when the instance was configured with
// options.WithExpiringKeysEnabled; otherwise it returns a
// feature-disabled error without writing anything.
func (i *Instance) SetX(key string, value []byte, expiry time.Duration) error {
	return i.engine.SetExpiring(key, value, time.Now().Add(expiry).Unix())
}

// Get retrieves the value associated with the given key.
func (i *Instance) Get(key string) ([]byte, error) {
	return i.engine.Get(key)
}

// Delete removes a key-value pair from the database. Removing a key that
// does not exist fails with a not-found error rather than silently
// succeeding, per the store's tombstone-avoidance rule.
func (i *Instance) Delete(key string) error {
	return i.engine.Remove(key)
}

// Close gracefully shuts down the Ignite DB instance, releasing all
// associated resources and closing open file handles in the engine.
func (i *Instance) Close() error {
	return i.engine.Close()
}

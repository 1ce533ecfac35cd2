// Package store persists JSON records under string keys. Writes never fail
// from the caller's point of view and reads degrade to the zero value.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oficiogen/backend/pkg/logger"
)

// ErrNotFound is returned by a Backend when the key is absent
var ErrNotFound = errors.New("store: key not found")

// Backend is a durable string-keyed store
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// FailureFunc is notified of every swallowed failure
type FailureFunc func(ctx context.Context, op string)

// Store wraps a Backend with JSON encoding, per-operation timeouts and the
// fail-silent policy.
type Store struct {
	backend   Backend
	timeout   time.Duration
	log       *logger.Logger
	onFailure FailureFunc
}

// Option configures a Store
type Option func(*Store)

// WithTimeout bounds every backend call
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithLogger sets the logger used for swallowed failures
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithFailureHook registers a callback for swallowed failures
func WithFailureHook(fn FailureFunc) Option {
	return func(s *Store) { s.onFailure = fn }
}

// New creates a Store over backend
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		timeout: 3 * time.Second,
		log:     logger.GetGlobal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save encodes value and writes it under key. Failures are logged and dropped.
func (s *Store) Save(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.fail(ctx, "save", key, fmt.Errorf("encode: %w", err))
		return
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.backend.Set(ctx, key, string(data))
	}); err != nil {
		s.fail(ctx, "save", key, err)
	}
}

// Delete removes key. Failures are logged and dropped.
func (s *Store) Delete(ctx context.Context, key string) {
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	}); err != nil {
		s.fail(ctx, "delete", key, err)
	}
}

// Ping checks the backend
func (s *Store) Ping(ctx context.Context) error {
	return s.call(ctx, s.backend.Ping)
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// Load reads and decodes the record under key. Absence, backend errors and
// malformed data all yield the zero value and false.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T

	var raw string
	err := s.call(ctx, func(ctx context.Context) error {
		v, err := s.backend.Get(ctx, key)
		raw = v
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return zero, false
	}
	if err != nil {
		s.fail(ctx, "load", key, err)
		return zero, false
	}

	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.fail(ctx, "decode", key, err)
		return zero, false
	}
	return out, true
}

// call runs fn under the store timeout and converts a backend panic into an error
func (s *Store) call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store backend panic: %v", r)
		}
	}()

	return fn(ctx)
}

func (s *Store) fail(ctx context.Context, op, key string, err error) {
	s.log.Warn("Persistence failure ignored", "op", op, "key", key, "error", err.Error())
	if s.onFailure != nil {
		s.onFailure(ctx, op)
	}
}

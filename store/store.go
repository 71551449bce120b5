package store

import (
	"context"
	"sync"
)

// Store is an in-memory catalog of tables guarded by a single-writer,
// multiple-reader lock.
type Store struct {
	mu       sync.RWMutex
	config   Config
	cat      *catalog
	registry *Registry
}

// New creates a new empty Store.
func New(config Config) *Store {
	config.validate()
	return &Store{
		config: config,
		cat:    newCatalog(),
	}
}

// NewWithRegistry creates a new Store whose updates are passed to the
// registry's commit hooks.
func NewWithRegistry(config Config, registry *Registry) *Store {
	s := New(config)
	s.registry = registry
	return s
}

// SetRegistry sets the commit hook registry.
func (s *Store) SetRegistry(registry *Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = registry
}

// Registry returns the commit hook registry, or nil if not set.
func (s *Store) Registry() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// View runs fn with shared access. Any number of View calls run together;
// none of them overlaps an Update.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := &Tx{cat: s.cat, config: &s.config}
	return fn(tx)
}

// Update runs fn with exclusive access. If fn or a commit hook returns an
// error every change fn made is undone before the lock is released.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{cat: s.cat, config: &s.config, writable: true}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if len(tx.changes) > 0 && s.registry != nil {
		if err := s.registry.commit(ctx, tx.changes); err != nil {
			tx.rollback()
			return err
		}
	}
	return nil
}

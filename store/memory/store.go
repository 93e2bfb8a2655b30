// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/mailboxer/store"
)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Stored records are never mutated in
// place: writers replace them with updated copies under the record's lock,
// so readers only need to clone what they load.
type Store struct {
	notifications sync.Map // map[string]*store.Notification
	receipts      sync.Map // map[string]*store.Receipt
	conversations sync.Map // map[string]*store.Conversation
	optOuts       sync.Map // map[string]*store.OptOut
	locks         sync.Map // map[string]*sync.Mutex (per-record locks for mutations)
	connected     int32
}

var _ store.Store = (*Store)(nil)

// getLock returns the mutex for a record ID, creating one if needed.
// Uses LoadOrStore for atomic get-or-create.
func (s *Store) getLock(id string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

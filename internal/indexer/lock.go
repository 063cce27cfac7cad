package indexer

import (
	"errors"
	"sync/atomic"

	"github.com/dshills/lorekeeper/pkg/types"
)

// ErrIndexingInProgress is returned when a pass is requested for a corpus
// that is already being indexed.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// IndexLock provides non-blocking lock semantics using atomic operations.
// This replaces sync.Mutex.TryLock() which doesn't exist in Go 1.25.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether the lock is currently taken.
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}

// lockSet holds one IndexLock per corpus. The map is fixed at construction,
// so lookups need no further synchronization.
type lockSet map[types.Corpus]*IndexLock

func newLockSet() lockSet {
	s := make(lockSet, len(types.AllCorpora))
	for _, c := range types.AllCorpora {
		s[c] = &IndexLock{}
	}
	return s
}

// acquire takes the lock of corpus and returns its release func.
func (s lockSet) acquire(corpus types.Corpus) (func(), error) {
	l, ok := s[corpus]
	if !ok {
		return nil, types.ErrUnknownCorpus
	}
	if !l.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	return l.Release, nil
}

func (s lockSet) held(corpus types.Corpus) bool {
	l, ok := s[corpus]
	return ok && l.Held()
}

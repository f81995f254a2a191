// Package syncx holds concurrency helpers that the stdlib primitives do not
// quite cover.
package syncx

import (
	"context"

	"golang.org/x/sync/semaphore"
)

const maxReaders = 1 << 30

// SessionLock is a reader/writer lock that, unlike sync.RWMutex, is not
// bound to a goroutine: it can be acquired before a blocking network call
// and released from whichever goroutine finishes the work. Operations that
// only consult session state take it shared; operations that replace the
// session's connection take it exclusive.
//
// Acquisition order is FIFO, so a waiting writer is never starved by a
// stream of readers.
type SessionLock struct {
	sem *semaphore.Weighted
}

func NewSessionLock() *SessionLock {
	return &SessionLock{sem: semaphore.NewWeighted(maxReaders)}
}

// RLock acquires the lock shared. It fails only when ctx is done first.
func (l *SessionLock) RLock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// RUnlock releases a shared hold.
func (l *SessionLock) RUnlock() {
	l.sem.Release(1)
}

// Lock acquires the lock exclusive, waiting out every current shared hold.
func (l *SessionLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, maxReaders)
}

// Unlock releases the exclusive hold.
func (l *SessionLock) Unlock() {
	l.sem.Release(maxReaders)
}

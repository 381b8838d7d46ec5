package indexer

import "sync/atomic"

// IndexLock is a non-blocking mutual exclusion flag. A second ingest run
// fails fast with ErrIndexingInProgress instead of queueing behind the first.
type IndexLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free and reports whether it did
func (l *IndexLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.held.Store(false)
}

// Held reports whether an ingest run currently holds the lock
func (l *IndexLock) Held() bool {
	return l.held.Load()
}

package queue

import (
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

type lockEntry struct {
	mu        deadlock.Mutex
	refs      int
	forgotten bool
}

// Locks is a registry of exclusive per-instance locks. Entries are reference
// counted so that Forget never drops a lock that is held or awaited.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// NewLocks creates a lock registry
func NewLocks() *Locks {
	return &Locks{entries: map[string]*lockEntry{}}
}

// Lock acquires the instance lock, creating it on first use
func (l *Locks) Lock(instanceID string) {
	l.mu.Lock()
	entry, ok := l.entries[instanceID]
	if !ok {
		entry = &lockEntry{}
		l.entries[instanceID] = entry
	}
	entry.refs++
	entry.forgotten = false
	l.mu.Unlock()
	entry.mu.Lock()
}

// Unlock releases the instance lock
func (l *Locks) Unlock(instanceID string) {
	l.mu.Lock()
	entry, ok := l.entries[instanceID]
	if !ok {
		l.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs <= 0 && entry.forgotten {
		delete(l.entries, instanceID)
	}
	l.mu.Unlock()
	entry.mu.Unlock()
}

// Forget removes the entry once no holder or waiter remains
func (l *Locks) Forget(instanceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[instanceID]
	if !ok {
		return
	}
	if entry.refs <= 0 {
		delete(l.entries, instanceID)
		return
	}
	entry.forgotten = true
}

// Len returns number of registered locks
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

var deadlockOnce sync.Once

func init() {
	deadlock.Opts.Disable = true
}

// ConfigureDeadlockDetection sets the process wide go-deadlock options used by
// instance locks. Only the first call takes effect; it reports whether this
// call applied the options. Call it before any queue manager is started.
func ConfigureDeadlockDetection(enabled bool, timeout time.Duration) bool {
	applied := false
	deadlockOnce.Do(func() {
		deadlock.Opts.Disable = !enabled
		if timeout > 0 {
			deadlock.Opts.DeadlockTimeout = timeout
		}
		applied = true
	})
	return applied
}

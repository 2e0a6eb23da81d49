package ledger

import "sync"

// Locks hands out one mutex per service ID. Every component that reads a
// service's status and writes a new one holds the service's lock for the
// whole sequence. Mutexes are never removed; the key space is the service
// catalog, which is small and bounded.
type Locks struct {
	locks sync.Map
}

// NewLocks creates an empty lock set.
func NewLocks() *Locks {
	return &Locks{}
}

// Lock blocks until the service's mutex is held and returns its unlock func.
func (l *Locks) Lock(serviceID string) func() {
	v, _ := l.locks.LoadOrStore(serviceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

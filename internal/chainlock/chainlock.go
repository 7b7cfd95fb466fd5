// Package chainlock provides a small mutex wrapper that allows lock/unlock
// to be chained inline at the call site instead of as separate statements,
// the way the rest of the rebalancer's mutex-guarded collections (the
// active-transfers map, the running-executions set) want to use it.
package chainlock

import "sync"

// L is a mutex that returns itself from Lock, so callers can write
// `defer l.Lock().Unlock()`.
type L struct {
	mtx sync.Mutex
}

// Lock acquires the lock and returns l so Unlock can be deferred inline.
func (l *L) Lock() *L {
	l.mtx.Lock()
	return l
}

// Unlock releases the lock.
func (l *L) Unlock() {
	l.mtx.Unlock()
}

// NewL constructs an unlocked L. Present for symmetry with other
// constructors; the zero value is already usable.
func NewL() *L {
	return &L{}
}

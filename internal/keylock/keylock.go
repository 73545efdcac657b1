// Package keylock provides per-key mutual exclusion with entries freed when unused.
package keylock

import "sync"

// Locker hands out one mutex per key.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sync.Mutex
	refs int
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: map[string]*entry{}}
}

// Lock blocks until key is free and returns the matching unlock function.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()

	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}

	e.refs++
	l.mu.Unlock()

	e.Lock()

	return func() {
		e.Unlock()

		l.mu.Lock()
		e.refs--

		if e.refs == 0 {
			delete(l.locks, key)
		}

		l.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}

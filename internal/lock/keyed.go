// Package lock provides per-key mutual exclusion.
package lock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed serializes work per user id. Entries are dropped once unused.
type Keyed struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[int64]*entry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *Keyed) Lock(key int64) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

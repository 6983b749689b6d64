package bracket

import "sync"

// keyedLocks hands out one mutex per bracket id so mutating operations on the
// same bracket are serialized while distinct brackets proceed in parallel.
// Entries are never evicted; the map is bounded by the number of brackets the
// process has touched.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}

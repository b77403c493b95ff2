package ifcb

import (
	"slices"
	"sync"
)

// destLocks serializes writes to the same destination files.
var destLocks = lockTable{locks: make(map[string]*destLock)}

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*destLock
}

type destLock struct {
	mu   sync.Mutex
	refs int
}

// lock takes the exclusive lock of every path, in sorted order, and returns
// a function that releases them.
func (t *lockTable) lock(paths ...string) (unlock func()) {
	keys := slices.Clone(paths)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*destLock, len(keys))
	for i, k := range keys {
		t.mu.Lock()
		l, ok := t.locks[k]
		if !ok {
			l = &destLock{}
			t.locks[k] = l
		}
		l.refs++
		t.mu.Unlock()

		l.mu.Lock()
		held[i] = l
	}

	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			t.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(t.locks, keys[i])
			}
			t.mu.Unlock()
		}
	}
}

// size returns the number of destinations currently locked or waited on.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

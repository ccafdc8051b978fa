package attendance

import "sync"

// keyedLock serialises work per key (student id).
type keyedLock struct {
	mu   sync.Mutex
	byID map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{byID: make(map[string]*keyedEntry)}
}

// lock blocks until key is free and returns the unlock func.
// Entries are dropped once no goroutine holds or waits on them.
func (l *keyedLock) lock(key string) func() {
	l.mu.Lock()
	e, ok := l.byID[key]
	if !ok {
		e = &keyedEntry{}
		l.byID[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.byID, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}

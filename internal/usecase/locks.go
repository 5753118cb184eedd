package usecase

import "sync"

// sessionLocks serializes work per session id within the process. Entries
// are reference counted and dropped when the last holder unlocks.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: map[string]*sessionLock{}}
}

// lock blocks until sessionID is free and returns the matching unlock.
func (l *sessionLocks) lock(sessionID string) func() {
	l.mu.Lock()
	e, ok := l.entries[sessionID]
	if !ok {
		e = &sessionLock{}
		l.entries[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, sessionID)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

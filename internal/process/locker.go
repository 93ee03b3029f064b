package process

import "sync"

// Locker keeps track of the processes currently being worked on.
type Locker struct {
	inProcess map[int64]bool
	mu        sync.Mutex
}

// NewLocker creates an empty locker.
func NewLocker() *Locker {
	return &Locker{
		inProcess: make(map[int64]bool),
	}
}

// TryLock marks a process as being worked on. It returns false if the
// process is already marked.
func (l *Locker) TryLock(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProcess[id] {
		return false
	}
	l.inProcess[id] = true
	return true
}

// IsLocked reports whether a process is being worked on.
func (l *Locker) IsLocked(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inProcess[id]
}

// Unlock releases a process.
func (l *Locker) Unlock(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inProcess, id)
}

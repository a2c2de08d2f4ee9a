package atomicstore

import (
	"context"
	"sync"
)

type keyLock struct {
	sem     chan struct{}
	waiters int // guarded by lockTable.mu
	refs    int // guarded by lockTable.mu
}

// lockTable hands out one exclusive lock per key. Entries are dropped once no
// caller holds or waits on them.
type lockTable struct {
	mu       sync.Mutex
	locks    map[string]*keyLock
	maxQueue int
}

func newLockTable(maxQueue int) *lockTable {
	return &lockTable{locks: make(map[string]*keyLock), maxQueue: maxQueue}
}

// acquire blocks until the caller owns key. queued reports whether another
// caller held the lock on arrival.
func (t *lockTable) acquire(ctx context.Context, key string) (release func(), queued bool, err error) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++

	select {
	case l.sem <- struct{}{}:
		t.mu.Unlock()
		return t.releaser(key, l), false, nil
	default:
	}

	if t.maxQueue > 0 && l.waiters >= t.maxQueue {
		t.dropLocked(key, l)
		t.mu.Unlock()
		return nil, true, ErrQueueFull
	}
	l.waiters++
	t.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		t.mu.Lock()
		l.waiters--
		t.mu.Unlock()
		return t.releaser(key, l), true, nil
	case <-ctx.Done():
		t.mu.Lock()
		l.waiters--
		t.dropLocked(key, l)
		t.mu.Unlock()
		return nil, true, ctx.Err()
	}
}

func (t *lockTable) releaser(key string, l *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			t.mu.Lock()
			t.dropLocked(key, l)
			t.mu.Unlock()
		})
	}
}

func (t *lockTable) dropLocked(key string, l *keyLock) {
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

// size reports how many keys currently have a lock entry.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

package lock

import (
	"context"
	"sync"
)

type memoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemory returns a Locker for a single process.
func NewMemory() Locker {
	return &memoryLocker{slots: make(map[string]*slot)}
}

func (l *memoryLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &memoryLease{l: l, key: key, s: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *memoryLocker) unref(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

type memoryLease struct {
	l    *memoryLocker
	key  string
	s    *slot
	once sync.Once
}

func (m *memoryLease) Release(context.Context) error {
	released := false
	m.once.Do(func() {
		<-m.s.ch
		m.l.unref(m.key, m.s)
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}

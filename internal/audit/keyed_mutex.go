package audit

import (
	"context"
	"sync"
)

// KeyedMutex is an in-process Locker holding one mutex per key. Entries are
// dropped once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the key is free or ctx ends.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { k.release(key, l, true) })
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyedLock, held bool) {
	if held {
		<-l.ch
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

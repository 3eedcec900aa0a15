package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/saga-orchestrator/shared/saga"
)

var _ saga.Locker = (*LocalLocker)(nil)

type localLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. It only serializes work inside
// one process; across processes the version check still applies.
type LocalLocker struct {
	mux   sync.Mutex
	locks map[string]*localLock
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (saga.ReleaseFunc, error) {
	l.mux.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mux.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-lock.ch
			l.unref(key, lock)
		})
		return nil
	}, nil
}

func (l *LocalLocker) unref(key string, lock *localLock) {
	l.mux.Lock()
	defer l.mux.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// size is the number of keys currently tracked
func (l *LocalLocker) size() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return len(l.locks)
}
